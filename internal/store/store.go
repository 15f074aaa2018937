package store

import (
	"context"
	"errors"
	"time"

	"dukapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository is the contract with the document store backing the catalog,
// the sales journal and the customer balance ledger.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// AdjustProductCounters applies sold += qty, balance -= qty as a single
	// atomic operation. This is the only mutation path for the two counters;
	// callers must never read-modify-write them.
	AdjustProductCounters(ctx context.Context, id string, qty int) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	UpdateSalePayment(ctx context.Context, id string, paidCents int64, balanceCents int64, status string) (*domain.Sale, error)

	CreateCustomerBalance(ctx context.Context, balance domain.CustomerBalance) (*domain.CustomerBalance, error)
	GetCustomerBalanceByID(ctx context.Context, id string) (*domain.CustomerBalance, error)
	GetCustomerBalanceBySaleID(ctx context.Context, saleID string) (*domain.CustomerBalance, error)
	ListCustomerBalances(ctx context.Context, pendingOnly bool, limit int) ([]domain.CustomerBalance, error)
	UpdateCustomerBalancePayment(ctx context.Context, id string, paidCents int64, balanceCents int64, status string, lastPayment time.Time, cleared *time.Time) (*domain.CustomerBalance, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
