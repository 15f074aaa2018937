package domain

import "time"

// Payment methods accepted at checkout and settlement.
const (
	PaymentCash        = "cash"
	PaymentMobileMoney = "mobile-money"
	PaymentCredit      = "credit"
)

const (
	SaleStatusPending   = "pending"
	SaleStatusPartial   = "partial"
	SaleStatusCompleted = "completed"
)

const (
	BalanceStatusPending = "pending"
	BalanceStatusCleared = "cleared"
)

// NoReference is stored on sales whose payment method carries no
// transaction reference.
const NoReference = "N/A"

type Product struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Barcode           string `json:"barcode"`
	Category          string `json:"category"`
	PriceCents        int64  `json:"price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	Quantity          int    `json:"quantity"`
	Sold              int    `json:"sold"`
	Balance           int    `json:"balance"`
	ImageURL          string `json:"image_url,omitempty"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Barcode           string `json:"barcode"`
	Category          string `json:"category"`
	PriceCents        int64  `json:"price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	Quantity          int    `json:"quantity"`
	Sold              int    `json:"sold"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Barcode           *string `json:"barcode,omitempty"`
	Category          *string `json:"category,omitempty"`
	PriceCents        *int64  `json:"price_cents,omitempty"`
	SellingPriceCents *int64  `json:"selling_price_cents,omitempty"`
	Quantity          *int    `json:"quantity,omitempty"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// CartLine is one product entry in the active session cart. UnitPriceCents
// and MaxQuantity are snapshots of the product's selling price and available
// stock taken when the line was first added.
type CartLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	MaxQuantity    int    `json:"max_quantity"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// Sale is an entry in the sales journal. Append-only except for
// PaidCents/BalanceCents/Status, which change only through balance
// settlement.
type Sale struct {
	ID             string       `json:"id"`
	Lines          []SaleLine   `json:"lines"`
	Customer       CustomerInfo `json:"customer"`
	PaymentMethod  string       `json:"payment_method"`
	TransactionRef string       `json:"transaction_ref"`
	TotalCents     int64        `json:"total_cents"`
	PaidCents      int64        `json:"paid_cents"`
	BalanceCents   int64        `json:"balance_cents"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// CustomerBalance tracks the unpaid remainder of a sale. At most one exists
// per sale. The ledger record is the source of truth for the amount owed;
// the originating sale carries a mirrored copy updated ledger-first.
type CustomerBalance struct {
	ID              string     `json:"id"`
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CustomerEmail   string     `json:"customer_email,omitempty"`
	Lines           []SaleLine `json:"lines"`
	TotalCents      int64      `json:"total_cents"`
	PaidCents       int64      `json:"paid_cents"`
	BalanceCents    int64      `json:"balance_cents"`
	PurchaseDate    time.Time  `json:"purchase_date"`
	SaleID          string     `json:"sale_id"`
	Status          string     `json:"status"`
	LastPaymentDate time.Time  `json:"last_payment_date"`
	ClearedDate     *time.Time `json:"cleared_date,omitempty"`
}

type CheckoutRequest struct {
	Customer       CustomerInfo `json:"customer"`
	PaymentMethod  string       `json:"payment_method"`
	TransactionRef string       `json:"transaction_ref,omitempty"`
	Partial        bool         `json:"partial"`
	PaidCents      int64        `json:"paid_cents,omitempty"`
}

// Receipt is a read-only projection of a sale for display and printing.
type Receipt struct {
	ReceiptNumber  string       `json:"receipt_number"`
	SaleID         string       `json:"sale_id"`
	Lines          []SaleLine   `json:"lines"`
	Customer       CustomerInfo `json:"customer"`
	PaymentMethod  string       `json:"payment_method"`
	TransactionRef string       `json:"transaction_ref"`
	TotalCents     int64        `json:"total_cents"`
	PaidCents      int64        `json:"paid_cents"`
	BalanceCents   int64        `json:"balance_cents"`
	Status         string       `json:"status"`
	IssuedAt       time.Time    `json:"issued_at"`
}

type CheckoutResponse struct {
	Sale      Sale    `json:"sale"`
	Receipt   Receipt `json:"receipt"`
	BalanceID string  `json:"balance_id,omitempty"`
}

type SettlementRequest struct {
	BalanceID      string `json:"balance_id"`
	AmountCents    int64  `json:"amount_cents"`
	PaymentMethod  string `json:"payment_method"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

type SettlementResponse struct {
	Balance CustomerBalance `json:"balance"`
	Sale    Sale            `json:"sale"`
}

type HardwareReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type DailyReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type DailyReport struct {
	Date             string               `json:"date"`
	Sales            int64                `json:"sales"`
	GrossCents       int64                `json:"gross_cents"`
	PaidCents        int64                `json:"paid_cents"`
	OutstandingCents int64                `json:"outstanding_cents"`
	ByPayment        []DailyReportPayment `json:"by_payment"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
