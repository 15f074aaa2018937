package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, barcode, category, price_cents, selling_price_cents,
		       quantity, sold, balance, COALESCE(image_url, '')
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.PriceCents,
			&p.SellingPriceCents, &p.Quantity, &p.Sold, &p.Balance, &p.ImageURL); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SellingPriceCents < 1 || product.Quantity < 0 || product.Sold < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.Sold > product.Quantity {
		return nil, store.ErrInvalidInput
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Balance = product.Quantity - product.Sold

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, category, price_cents, selling_price_cents,
		                      quantity, sold, balance, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	`, product.ID, product.Name, product.Barcode, product.Category, product.PriceCents,
		product.SellingPriceCents, product.Quantity, product.Sold, product.Balance,
		nullIfEmpty(product.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, barcode, category, price_cents, selling_price_cents,
		       quantity, sold, balance, COALESCE(image_url, '')
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.PriceCents,
		&p.SellingPriceCents, &p.Quantity, &p.Sold, &p.Balance, &p.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	// Counters are deliberately absent from the SET list; they only move
	// through AdjustProductCounters. Balance is re-derived from the new
	// quantity against the current sold count.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, category = $4, price_cents = $5,
		    selling_price_cents = $6, quantity = $7, balance = $7 - sold,
		    image_url = $8, updated_at = now()
		WHERE id = $1 AND sold <= $7
	`, product.ID, product.Name, product.Barcode, product.Category,
		product.PriceCents, product.SellingPriceCents, product.Quantity,
		nullIfEmpty(product.ImageURL))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetProductByID(ctx, product.ID); errors.Is(getErr, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrInvalidInput
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AdjustProductCounters is the store's atomic increment primitive: a single
// guarded UPDATE, never a read followed by a write, so concurrent sales of
// the same product cannot lose updates.
func (s *Store) AdjustProductCounters(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sold = sold + $2, balance = balance - $2, updated_at = now()
		WHERE id = $1 AND balance >= $2
	`, id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.GetProductByID(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || sale.TotalCents < 1 {
		return nil, store.ErrInvalidInput
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_name, customer_phone, customer_email,
		                   payment_method, transaction_ref, total_cents, paid_cents,
		                   balance_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.Customer.Name, nullIfEmpty(sale.Customer.Phone),
		nullIfEmpty(sale.Customer.Email), sale.PaymentMethod, sale.TransactionRef,
		sale.TotalCents, sale.PaidCents, sale.BalanceCents, sale.Status, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range sale.Lines {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, line.ProductID, line.Name, line.Quantity, line.UnitPriceCents, line.LineTotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var phone, email sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_phone, customer_email, payment_method,
		       transaction_ref, total_cents, paid_cents, balance_cents, status, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.Customer.Name, &phone, &email, &sale.PaymentMethod,
		&sale.TransactionRef, &sale.TotalCents, &sale.PaidCents, &sale.BalanceCents,
		&sale.Status, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Customer.Phone = phone.String
	sale.Customer.Email = email.String

	lines, err := s.saleLines(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) saleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, qty, unit_price_cents, line_total_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity,
			&line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_phone, customer_email, payment_method,
		       transaction_ref, total_cents, paid_cents, balance_cents, status, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var phone, email sql.NullString
		if err := rows.Scan(&sale.ID, &sale.Customer.Name, &phone, &email,
			&sale.PaymentMethod, &sale.TransactionRef, &sale.TotalCents, &sale.PaidCents,
			&sale.BalanceCents, &sale.Status, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.Customer.Phone = phone.String
		sale.Customer.Email = email.String
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		lines, err := s.saleLines(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Lines = lines
	}
	return sales, nil
}

func (s *Store) UpdateSalePayment(ctx context.Context, id string, paidCents int64, balanceCents int64, status string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET paid_cents = $2, balance_cents = $3, status = $4
		WHERE id = $1
	`, id, paidCents, balanceCents, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSaleByID(ctx, id)
}

func (s *Store) CreateCustomerBalance(ctx context.Context, balance domain.CustomerBalance) (*domain.CustomerBalance, error) {
	if balance.SaleID == "" || balance.CustomerName == "" || balance.BalanceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	if balance.ID == "" {
		balance.ID = xid.New("bal")
	}
	if balance.PurchaseDate.IsZero() {
		balance.PurchaseDate = time.Now().UTC()
	}
	if balance.Status == "" {
		balance.Status = domain.BalanceStatusPending
	}

	linesJSON, err := json.Marshal(balance.Lines)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customer_balances (id, customer_name, customer_phone, customer_email,
		                               lines, total_cents, paid_cents, balance_cents,
		                               purchase_date, sale_id, status, last_payment_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, balance.ID, balance.CustomerName, nullIfEmpty(balance.CustomerPhone),
		nullIfEmpty(balance.CustomerEmail), linesJSON, balance.TotalCents,
		balance.PaidCents, balance.BalanceCents, balance.PurchaseDate, balance.SaleID,
		balance.Status, balance.LastPaymentDate)
	if err != nil {
		// sale_id carries a unique constraint: one balance per sale.
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := balance
	return &created, nil
}

func (s *Store) GetCustomerBalanceByID(ctx context.Context, id string) (*domain.CustomerBalance, error) {
	return s.getBalance(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetCustomerBalanceBySaleID(ctx context.Context, saleID string) (*domain.CustomerBalance, error) {
	return s.getBalance(ctx, `WHERE sale_id = $1`, saleID)
}

func (s *Store) getBalance(ctx context.Context, where string, arg any) (*domain.CustomerBalance, error) {
	var balance domain.CustomerBalance
	var phone, email sql.NullString
	var linesRaw []byte
	var cleared sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_phone, customer_email, lines, total_cents,
		       paid_cents, balance_cents, purchase_date, sale_id, status,
		       last_payment_date, cleared_date
		FROM customer_balances
		`+where, arg).Scan(&balance.ID, &balance.CustomerName, &phone, &email, &linesRaw,
		&balance.TotalCents, &balance.PaidCents, &balance.BalanceCents,
		&balance.PurchaseDate, &balance.SaleID, &balance.Status,
		&balance.LastPaymentDate, &cleared)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	balance.CustomerPhone = phone.String
	balance.CustomerEmail = email.String
	if cleared.Valid {
		clearedAt := cleared.Time
		balance.ClearedDate = &clearedAt
	}
	if err := json.Unmarshal(linesRaw, &balance.Lines); err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *Store) ListCustomerBalances(ctx context.Context, pendingOnly bool, limit int) ([]domain.CustomerBalance, error) {
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT id, customer_name, customer_phone, customer_email, lines, total_cents,
		       paid_cents, balance_cents, purchase_date, sale_id, status,
		       last_payment_date, cleared_date
		FROM customer_balances`
	args := []any{limit}
	if pendingOnly {
		query += `
		WHERE status = $2`
		args = append(args, domain.BalanceStatusPending)
	}
	query += `
		ORDER BY purchase_date DESC, id DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]domain.CustomerBalance, 0, limit)
	for rows.Next() {
		var balance domain.CustomerBalance
		var phone, email sql.NullString
		var linesRaw []byte
		var cleared sql.NullTime
		if err := rows.Scan(&balance.ID, &balance.CustomerName, &phone, &email, &linesRaw,
			&balance.TotalCents, &balance.PaidCents, &balance.BalanceCents,
			&balance.PurchaseDate, &balance.SaleID, &balance.Status,
			&balance.LastPaymentDate, &cleared); err != nil {
			return nil, err
		}
		balance.CustomerPhone = phone.String
		balance.CustomerEmail = email.String
		if cleared.Valid {
			clearedAt := cleared.Time
			balance.ClearedDate = &clearedAt
		}
		if err := json.Unmarshal(linesRaw, &balance.Lines); err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}

func (s *Store) UpdateCustomerBalancePayment(ctx context.Context, id string, paidCents int64, balanceCents int64, status string, lastPayment time.Time, cleared *time.Time) (*domain.CustomerBalance, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customer_balances
		SET paid_cents = $2, balance_cents = $3, status = $4,
		    last_payment_date = $5, cleared_date = COALESCE($6, cleared_date)
		WHERE id = $1
	`, id, paidCents, balanceCents, status, lastPayment, nullTime(cleared))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomerBalanceByID(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
