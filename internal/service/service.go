package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"dukapos/backend/internal/blob"
	"dukapos/backend/internal/cache"
	"dukapos/backend/internal/cart"
	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/metrics"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
)

const catalogCacheTTL = 5 * time.Minute

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	catalog cache.CatalogCache
	media   blob.Store
	logger  *zap.Logger
}

func New(repo store.Repository, catalog cache.CatalogCache, media blob.Store, logger *zap.Logger) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if media == nil {
		media = blob.NoopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:    repo,
		catalog: catalog,
		media:   media,
		logger:  logger,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.catalog.GetProducts(ctx); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.SetProducts(ctx, products, catalogCacheTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.SellingPriceCents < 1 || req.PriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Quantity < 0 || req.Sold < 0 || req.Sold > req.Quantity {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		Name:              req.Name,
		Barcode:           req.Barcode,
		Category:          req.Category,
		PriceCents:        req.PriceCents,
		SellingPriceCents: req.SellingPriceCents,
		Quantity:          req.Quantity,
		Sold:              req.Sold,
		Balance:           req.Quantity - req.Sold,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("name", created.Name),
		zap.String("actor", actor.Username),
	)

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.SellingPriceCents != nil {
		if *req.SellingPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if req.Quantity != nil {
		if *req.Quantity < existing.Sold {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Quantity = *req.Quantity
		updated.Balance = *req.Quantity - existing.Sold
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product updated",
		zap.String("product_id", saved.ID),
		zap.String("actor", actor.Username),
	)

	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product deleted",
		zap.String("product_id", id),
		zap.String("actor", actor.Username),
	)
	return nil
}

func imageExtension(fileName string) string {
	return filepath.Ext(fileName)
}

// AttachProductImage uploads the image bytes to the blob store and records
// the returned URL on the product.
func (s *Service) AttachProductImage(ctx context.Context, id string, fileName string, data []byte) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" || len(data) == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	name := fmt.Sprintf("%s%s", existing.ID, imageExtension(fileName))
	url, err := s.media.Upload(ctx, name, data)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	updated.ImageURL = url
	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	return *saved, nil
}

// Checkout runs the reconciliation flow: validate, derive payment figures,
// write the sale, decrement inventory per line, and open a balance record
// when the customer still owes money. The sale write is the commit point.
// Everything before it leaves no trace on failure; everything after it is
// reported through StepError and never rolled back.
func (s *Service) Checkout(ctx context.Context, c *cart.Cart, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	if c == nil || c.IsEmpty() {
		return domain.CheckoutResponse{}, ErrEmptyCart
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !isSupportedPaymentMethod(method) {
		return domain.CheckoutResponse{}, ErrMissingPaymentMethod
	}

	customer := req.Customer
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return domain.CheckoutResponse{}, ErrMissingCustomer
	}

	ref := strings.TrimSpace(req.TransactionRef)
	if method == domain.PaymentMobileMoney && ref == "" {
		return domain.CheckoutResponse{}, ErrMissingReference
	}
	if ref == "" {
		ref = domain.NoReference
	}

	total := c.TotalCents()
	paid := total
	if req.Partial {
		if req.PaidCents <= 0 || req.PaidCents > total {
			return domain.CheckoutResponse{}, ErrInvalidPartialAmount
		}
		paid = req.PaidCents
	}
	balance := total - paid

	status := domain.SaleStatusCompleted
	switch {
	case method == domain.PaymentCredit:
		status = domain.SaleStatusPending
	case balance > 0:
		status = domain.SaleStatusPartial
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		Lines:          saleLinesFromCart(c.Lines()),
		Customer:       customer,
		PaymentMethod:  method,
		TransactionRef: ref,
		TotalCents:     total,
		PaidCents:      paid,
		BalanceCents:   balance,
		Status:         status,
		CreatedAt:      now,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		metrics.CheckoutFailuresTotal.WithLabelValues("sale").Inc()
		return domain.CheckoutResponse{}, &StepError{Step: "sale", Err: err}
	}

	// The sale is durable. The cart's job is done even if a later step
	// fails; re-running checkout would double-sell.
	c.Clear()

	for _, line := range created.Lines {
		if err := s.repo.AdjustProductCounters(ctx, line.ProductID, line.Quantity); err != nil {
			metrics.CheckoutFailuresTotal.WithLabelValues("inventory").Inc()
			s.logger.Error("inventory adjustment failed after sale write",
				zap.String("sale_id", created.ID),
				zap.String("product_id", line.ProductID),
				zap.Int("qty", line.Quantity),
				zap.Error(err),
			)
			return domain.CheckoutResponse{}, &StepError{Step: "inventory", SaleID: created.ID, Err: err}
		}
	}
	s.invalidateCatalog(ctx)

	balanceID := ""
	if balance > 0 {
		record, err := s.repo.CreateCustomerBalance(ctx, domain.CustomerBalance{
			ID:              xid.New("bal"),
			CustomerName:    customer.Name,
			CustomerPhone:   customer.Phone,
			CustomerEmail:   customer.Email,
			Lines:           created.Lines,
			TotalCents:      total,
			PaidCents:       paid,
			BalanceCents:    balance,
			PurchaseDate:    now,
			SaleID:          created.ID,
			Status:          domain.BalanceStatusPending,
			LastPaymentDate: now,
		})
		if err != nil {
			metrics.CheckoutFailuresTotal.WithLabelValues("balance_record").Inc()
			s.logger.Error("balance record write failed after sale write",
				zap.String("sale_id", created.ID),
				zap.Error(err),
			)
			return domain.CheckoutResponse{}, &StepError{Step: "balance_record", SaleID: created.ID, Err: err}
		}
		balanceID = record.ID
	}

	metrics.CheckoutsTotal.WithLabelValues(method, status).Inc()
	s.logger.Info("checkout completed",
		zap.String("sale_id", created.ID),
		zap.String("payment_method", method),
		zap.String("status", status),
		zap.Int64("total_cents", total),
		zap.Int64("balance_cents", balance),
	)

	return domain.CheckoutResponse{
		Sale:      *created,
		Receipt:   BuildReceipt(*created),
		BalanceID: balanceID,
	}, nil
}

// SettleBalance records a payment against an outstanding customer balance.
// The ledger record is written first; the sale mirror follows. If the
// process dies between the two writes the ledger remains the source of
// truth and the mirror is stale, never the other way round.
func (s *Service) SettleBalance(ctx context.Context, req domain.SettlementRequest) (domain.SettlementResponse, error) {
	balanceID := strings.TrimSpace(req.BalanceID)
	if balanceID == "" {
		return domain.SettlementResponse{}, store.ErrInvalidInput
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method != domain.PaymentCash && method != domain.PaymentMobileMoney {
		return domain.SettlementResponse{}, ErrMissingPaymentMethod
	}
	ref := strings.TrimSpace(req.TransactionRef)
	if method == domain.PaymentMobileMoney && ref == "" {
		return domain.SettlementResponse{}, ErrMissingReference
	}

	record, err := s.repo.GetCustomerBalanceByID(ctx, balanceID)
	if err != nil {
		return domain.SettlementResponse{}, err
	}
	if record.Status == domain.BalanceStatusCleared || record.BalanceCents == 0 {
		return domain.SettlementResponse{}, ErrBalanceCleared
	}
	if req.AmountCents <= 0 || req.AmountCents > record.BalanceCents {
		return domain.SettlementResponse{}, ErrInvalidPaymentAmount
	}

	newPaid := record.PaidCents + req.AmountCents
	newBalance := record.BalanceCents - req.AmountCents
	now := time.Now().UTC()

	status := domain.BalanceStatusPending
	var cleared *time.Time
	if newBalance == 0 {
		status = domain.BalanceStatusCleared
		cleared = &now
	}

	updated, err := s.repo.UpdateCustomerBalancePayment(ctx, record.ID, newPaid, newBalance, status, now, cleared)
	if err != nil {
		return domain.SettlementResponse{}, &StepError{Step: "ledger", Err: err}
	}

	saleStatus := domain.SaleStatusPartial
	if status == domain.BalanceStatusCleared {
		saleStatus = domain.SaleStatusCompleted
	}
	sale, err := s.repo.UpdateSalePayment(ctx, record.SaleID, newPaid, newBalance, saleStatus)
	if err != nil {
		s.logger.Error("sale mirror update failed after ledger write",
			zap.String("balance_id", updated.ID),
			zap.String("sale_id", record.SaleID),
			zap.Error(err),
		)
		return domain.SettlementResponse{}, &StepError{Step: "sale_mirror", SaleID: record.SaleID, Err: err}
	}

	metrics.SettlementsTotal.Inc()
	if status == domain.BalanceStatusCleared {
		metrics.BalancesClearedTotal.Inc()
	}
	s.logger.Info("balance settled",
		zap.String("balance_id", updated.ID),
		zap.String("sale_id", sale.ID),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int64("remaining_cents", newBalance),
		zap.String("status", status),
	)

	return domain.SettlementResponse{Balance: *updated, Sale: *sale}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// ListSales returns the journal for a single day when date is given
// (YYYY-MM-DD), or the most recent entries otherwise.
func (s *Service) ListSales(ctx context.Context, date string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	var from, to time.Time
	if strings.TrimSpace(date) != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = day.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) ListBalances(ctx context.Context, pendingOnly bool, limit int) ([]domain.CustomerBalance, error) {
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListCustomerBalances(ctx, pendingOnly, limit)
}

func (s *Service) GetBalance(ctx context.Context, id string) (domain.CustomerBalance, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CustomerBalance{}, store.ErrInvalidInput
	}
	record, err := s.repo.GetCustomerBalanceByID(ctx, id)
	if err != nil {
		return domain.CustomerBalance{}, err
	}
	return *record, nil
}

// BuildReceipt projects a sale into its display form. Pure; reads nothing.
func BuildReceipt(sale domain.Sale) domain.Receipt {
	return domain.Receipt{
		ReceiptNumber:  fmt.Sprintf("INV-%d", sale.CreatedAt.UnixMilli()),
		SaleID:         sale.ID,
		Lines:          sale.Lines,
		Customer:       sale.Customer,
		PaymentMethod:  sale.PaymentMethod,
		TransactionRef: sale.TransactionRef,
		TotalCents:     sale.TotalCents,
		PaidCents:      sale.PaidCents,
		BalanceCents:   sale.BalanceCents,
		Status:         sale.Status,
		IssuedAt:       sale.CreatedAt,
	}
}

// HardwareReceipt renders the sale as an ESC/POS byte stream for thermal
// printers, plus a plain-text preview.
func (s *Service) HardwareReceipt(ctx context.Context, saleID string) (domain.HardwareReceiptResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.HardwareReceiptResponse{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.HardwareReceiptResponse{}, err
	}

	receipt := BuildReceipt(*sale)
	lines := []string{
		"DukaPOS",
		"========================",
		"No: " + receipt.ReceiptNumber,
		"Sale: " + sale.ID,
		"Customer: " + sale.Customer.Name,
		"Date: " + sale.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, line := range sale.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
		lines = append(lines, fmt.Sprintf("  %s", formatCents(line.LineTotalCents)))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Total   : %s", formatCents(sale.TotalCents)),
		fmt.Sprintf("Paid    : %s", formatCents(sale.PaidCents)),
		fmt.Sprintf("Balance : %s", formatCents(sale.BalanceCents)),
		fmt.Sprintf("Method  : %s", sale.PaymentMethod),
		fmt.Sprintf("Ref     : %s", sale.TransactionRef),
		"========================",
		"Thank you",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.HardwareReceiptResponse{
		SaleID:       sale.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}, nil
}

// DailyReport aggregates the sales journal for one day.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.DailyReport{}, store.ErrInvalidInput
		}
		day = parsed.UTC()
	}
	from := day
	to := from.Add(24 * time.Hour)

	sales, err := s.repo.ListSales(ctx, from, to, 10000)
	if err != nil {
		return domain.DailyReport{}, err
	}

	report := domain.DailyReport{Date: from.Format("2006-01-02")}
	byPayment := map[string]*domain.DailyReportPayment{}
	for _, sale := range sales {
		report.Sales++
		report.GrossCents += sale.TotalCents
		report.PaidCents += sale.PaidCents
		report.OutstandingCents += sale.BalanceCents

		bucket, ok := byPayment[sale.PaymentMethod]
		if !ok {
			bucket = &domain.DailyReportPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = bucket
		}
		bucket.Sales++
		bucket.TotalCents += sale.TotalCents
	}

	report.ByPayment = make([]domain.DailyReportPayment, 0, len(byPayment))
	for _, bucket := range byPayment {
		report.ByPayment = append(report.ByPayment, *bucket)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool {
		return report.ByPayment[i].PaymentMethod < report.ByPayment[j].PaymentMethod
	})

	return report, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func saleLinesFromCart(lines []domain.CartLine) []domain.SaleLine {
	out := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.SaleLine{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents,
		})
	}
	return out
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentMobileMoney, domain.PaymentCredit:
		return true
	default:
		return false
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
