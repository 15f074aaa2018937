package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	salesByID      map[string]domain.Sale
	balancesByID   map[string]domain.CustomerBalance
	balanceBySale  map[string]string
	usersByName    map[string]domain.UserAccount
	writeLog       []string
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. The in-memory
// store is never used in production (postgres takes over when DATABASE_URL
// is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		salesByID:     make(map[string]domain.Sale),
		balancesByID:  make(map[string]domain.CustomerBalance),
		balanceBySale: make(map[string]string),
		usersByName:   seedUsers(),
	}
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-sugar-1kg", Name: "Sugar 1kg", Barcode: "6001087340011", Category: "grocery", PriceCents: 14500, SellingPriceCents: 17500, Quantity: 80, Sold: 12},
		{ID: "prod-maize-2kg", Name: "Maize Flour 2kg", Barcode: "6001087340028", Category: "grocery", PriceCents: 15800, SellingPriceCents: 18900, Quantity: 120, Sold: 34},
		{ID: "prod-oil-1l", Name: "Cooking Oil 1L", Barcode: "6001087340035", Category: "grocery", PriceCents: 31000, SellingPriceCents: 36500, Quantity: 60, Sold: 8},
		{ID: "prod-tea-250g", Name: "Tea Leaves 250g", Barcode: "6001087340042", Category: "beverage", PriceCents: 19500, SellingPriceCents: 23000, Quantity: 50, Sold: 5},
		{ID: "prod-milk-500ml", Name: "Long Life Milk 500ml", Barcode: "6001087340059", Category: "dairy", PriceCents: 5200, SellingPriceCents: 6500, Quantity: 200, Sold: 61},
		{ID: "prod-bread-400g", Name: "White Bread 400g", Barcode: "6001087340066", Category: "bakery", PriceCents: 5000, SellingPriceCents: 6000, Quantity: 90, Sold: 40},
		{ID: "prod-soap-bar", Name: "Laundry Soap Bar", Barcode: "6001087340073", Category: "household", PriceCents: 8500, SellingPriceCents: 11000, Quantity: 70, Sold: 9},
		{ID: "prod-rice-1kg", Name: "Rice 1kg", Barcode: "6001087340080", Category: "grocery", PriceCents: 16000, SellingPriceCents: 19500, Quantity: 100, Sold: 22},
	}

	s := New()
	for _, p := range products {
		p.Balance = p.Quantity - p.Sold
		s.products[p.ID] = p
	}
	return s
}

// WriteLog returns the collection names touched by writes, in order. Tests
// use it to assert that settlement updates the ledger before the sale.
func (s *Store) WriteLog() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.writeLog))
	copy(out, s.writeLog)
	return out
}

func (s *Store) record(collection string) {
	s.writeLog = append(s.writeLog, collection)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SellingPriceCents < 1 || product.Quantity < 0 || product.Sold < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.Sold > product.Quantity {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	product.Balance = product.Quantity - product.Sold

	s.products[product.ID] = product
	s.record("products")
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Counters survive a catalog update; they only move through
	// AdjustProductCounters.
	product.Sold = existing.Sold
	product.Balance = product.Quantity - product.Sold
	if product.Balance < 0 {
		return nil, store.ErrInvalidInput
	}

	s.products[product.ID] = product
	s.record("products")
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	s.record("products")
	return nil
}

func (s *Store) AdjustProductCounters(_ context.Context, id string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	if product.Balance < qty {
		return store.ErrInsufficientStock
	}
	product.Sold += qty
	product.Balance -= qty
	s.products[id] = product
	s.record("products")
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || sale.TotalCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	s.record("sales")
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) UpdateSalePayment(_ context.Context, id string, paidCents int64, balanceCents int64, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale.PaidCents = paidCents
	sale.BalanceCents = balanceCents
	sale.Status = status
	s.salesByID[id] = sale
	s.record("sales")
	updated := cloneSale(sale)
	return &updated, nil
}

func (s *Store) CreateCustomerBalance(_ context.Context, balance domain.CustomerBalance) (*domain.CustomerBalance, error) {
	if balance.SaleID == "" || balance.CustomerName == "" || balance.BalanceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.balanceBySale[balance.SaleID]; exists {
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

	s.balancesByID[balance.ID] = cloneBalance(balance)
	s.balanceBySale[balance.SaleID] = balance.ID
	s.record("customer_balances")
	created := cloneBalance(balance)
	return &created, nil
}

func (s *Store) GetCustomerBalanceByID(_ context.Context, id string) (*domain.CustomerBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, exists := s.balancesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBalance := cloneBalance(balance)
	return &copyBalance, nil
}

func (s *Store) GetCustomerBalanceBySaleID(_ context.Context, saleID string) (*domain.CustomerBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.balanceBySale[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	balance := s.balancesByID[id]
	copyBalance := cloneBalance(balance)
	return &copyBalance, nil
}

func (s *Store) ListCustomerBalances(_ context.Context, pendingOnly bool, limit int) ([]domain.CustomerBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	balances := make([]domain.CustomerBalance, 0, limit)
	for _, balance := range s.balancesByID {
		if pendingOnly && balance.Status != domain.BalanceStatusPending {
			continue
		}
		balances = append(balances, cloneBalance(balance))
	}
	slices.SortFunc(balances, func(a, b domain.CustomerBalance) int {
		if a.PurchaseDate.Equal(b.PurchaseDate) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.PurchaseDate.After(b.PurchaseDate) {
			return -1
		}
		return 1
	})
	if len(balances) > limit {
		balances = balances[:limit]
	}
	return balances, nil
}

func (s *Store) UpdateCustomerBalancePayment(_ context.Context, id string, paidCents int64, balanceCents int64, status string, lastPayment time.Time, cleared *time.Time) (*domain.CustomerBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, exists := s.balancesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	balance.PaidCents = paidCents
	balance.BalanceCents = balanceCents
	balance.Status = status
	balance.LastPaymentDate = lastPayment
	if cleared != nil {
		clearedCopy := *cleared
		balance.ClearedDate = &clearedCopy
	}
	s.balancesByID[id] = balance
	s.record("customer_balances")
	updated := cloneBalance(balance)
	return &updated, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByName[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByName[user.Username] = user
	s.record("users")
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, user := range s.usersByName {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	s.record("users")
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Lines = make([]domain.SaleLine, len(sale.Lines))
	copy(out.Lines, sale.Lines)
	return out
}

func cloneBalance(balance domain.CustomerBalance) domain.CustomerBalance {
	out := balance
	out.Lines = make([]domain.SaleLine, len(balance.Lines))
	copy(out.Lines, balance.Lines)
	if balance.ClearedDate != nil {
		cleared := *balance.ClearedDate
		out.ClearedDate = &cleared
	}
	return out
}
