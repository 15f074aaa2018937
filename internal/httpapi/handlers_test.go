package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/service"
	"dukapos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", "", nil)
}

func loginAs(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("expected access token for %s", username)
	}
	return body.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute per client IP.
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
			"password": "badpass",
		})
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last.Code)
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestListProductsAsCashier(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
	for _, p := range body.Products {
		if p.Balance != p.Quantity-p.Sold {
			t.Fatalf("product %s violates balance invariant: %d != %d - %d", p.ID, p.Balance, p.Quantity, p.Sold)
		}
	}
}

func TestCreateProductRoleEnforcement(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload := domain.ProductCreateRequest{
		Name:              "Salt 500g",
		Category:          "grocery",
		PriceCents:        2500,
		SellingPriceCents: 3200,
		Quantity:          40,
	}

	cashierToken := loginAs(t, handler, "cashier", "cashier123")
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", cashierToken, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	adminToken := loginAs(t, handler, "admin", "admin123")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Product.ID == "" || body.Product.Balance != 40 {
		t.Fatalf("unexpected created product: %+v", body.Product)
	}
}

func checkoutPayloadFor(product domain.Product, qty int) checkoutPayload {
	return checkoutPayload{
		Lines: []domain.CartLine{{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.SellingPriceCents,
			Quantity:       qty,
			MaxQuantity:    product.Balance,
			LineTotalCents: int64(qty) * product.SellingPriceCents,
		}},
		Customer:      domain.CustomerInfo{Name: "Wanjiku"},
		PaymentMethod: domain.PaymentCash,
	}
}

func seededProduct(t *testing.T, handler http.Handler, token string) domain.Product {
	t.Helper()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: %d", rec.Code)
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("no seeded products")
	}
	return body.Products[0]
}

func TestCheckoutAndReceiptFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	product := seededProduct(t, handler, token)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, checkoutPayloadFor(product, 2))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if resp.Sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed sale, got %s", resp.Sale.Status)
	}
	if resp.Sale.TotalCents != 2*product.SellingPriceCents {
		t.Fatalf("unexpected total: %d", resp.Sale.TotalCents)
	}
	if resp.BalanceID != "" {
		t.Fatalf("full payment must not open a balance, got %s", resp.BalanceID)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+resp.Sale.ID+"/receipt", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for receipt, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+resp.Sale.ID+"/receipt/escpos", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for escpos receipt, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	product := seededProduct(t, handler, token)

	empty := checkoutPayload{
		Customer:      domain.CustomerInfo{Name: "Wanjiku"},
		PaymentMethod: domain.PaymentCash,
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, empty)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty cart, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	noRef := checkoutPayloadFor(product, 1)
	noRef.PaymentMethod = domain.PaymentMobileMoney
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, noRef)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing reference, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutRejectsOverStockLine(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	product := seededProduct(t, handler, token)

	over := checkoutPayloadFor(product, product.Balance+1)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, over)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for over-stock line, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// The rejected line must not have been clamped into a partial sale.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sales: %d", rec.Code)
	}
	var body struct {
		Sales []domain.Sale `json:"sales"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode sales: %v", err)
	}
	if len(body.Sales) != 0 {
		t.Fatalf("expected no sale to be recorded, got %d", len(body.Sales))
	}
}

func TestSettlementFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	product := seededProduct(t, handler, token)

	partial := checkoutPayloadFor(product, 2)
	partial.Partial = true
	partial.PaidCents = product.SellingPriceCents

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, partial)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var checkout domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&checkout); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if checkout.BalanceID == "" {
		t.Fatalf("partial payment must open a balance record")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/balances?pending=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing balances, got %d", rec.Code)
	}

	settle := map[string]any{
		"amount_cents":   product.SellingPriceCents,
		"payment_method": domain.PaymentCash,
	}
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/balances/%s/settle", checkout.BalanceID), token, settle)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 settling, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var settled domain.SettlementResponse
	if err := json.NewDecoder(rec.Body).Decode(&settled); err != nil {
		t.Fatalf("decode settlement response: %v", err)
	}
	if settled.Balance.Status != domain.BalanceStatusCleared {
		t.Fatalf("expected cleared balance, got %s", settled.Balance.Status)
	}
	if settled.Sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed sale mirror, got %s", settled.Sale.Status)
	}

	// Paying again must be rejected.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/balances/%s/settle", checkout.BalanceID), token, settle)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 settling a cleared balance, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestDailyReportAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	cashierToken := loginAs(t, handler, "cashier", "cashier123")
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/daily", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	adminToken := loginAs(t, handler, "admin", "admin123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/daily", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
