package cart

import (
	"errors"

	"dukapos/backend/internal/domain"
)

var (
	// ErrStockLimit is returned when an add or quantity change would push a
	// line past the stock snapshot taken when the line was added. The cart
	// is left unchanged.
	ErrStockLimit = errors.New("quantity exceeds available stock")

	ErrOutOfStock  = errors.New("product is out of stock")
	ErrLineMissing = errors.New("no cart line for product")
)

// Cart accumulates purchase intent for a single checkout session. It is
// plain mutable state owned by the session; it is not safe for concurrent
// use and is never persisted.
type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{lines: make([]domain.CartLine, 0, 8)}
}

// AddLine adds one unit of the product. The first add snapshots the selling
// price and the available stock as the line's quantity ceiling; further adds
// increment against that snapshot and fail with ErrStockLimit once it is
// reached.
func (c *Cart) AddLine(product domain.Product) error {
	for i := range c.lines {
		if c.lines[i].ProductID != product.ID {
			continue
		}
		if c.lines[i].Quantity+1 > c.lines[i].MaxQuantity {
			return ErrStockLimit
		}
		c.lines[i].Quantity++
		c.lines[i].LineTotalCents = int64(c.lines[i].Quantity) * c.lines[i].UnitPriceCents
		return nil
	}

	if product.Balance < 1 {
		return ErrOutOfStock
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID:      product.ID,
		Name:           product.Name,
		UnitPriceCents: product.SellingPriceCents,
		Quantity:       1,
		MaxQuantity:    product.Balance,
		LineTotalCents: product.SellingPriceCents,
	})
	return nil
}

// SetLineQuantity sets the quantity of an existing line. Zero or negative
// removes the line; anything above the stock snapshot is rejected without
// mutating the line.
func (c *Cart) SetLineQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		c.RemoveLine(productID)
		return nil
	}
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		if quantity > c.lines[i].MaxQuantity {
			return ErrStockLimit
		}
		c.lines[i].Quantity = quantity
		c.lines[i].LineTotalCents = int64(quantity) * c.lines[i].UnitPriceCents
		return nil
	}
	return ErrLineMissing
}

func (c *Cart) RemoveLine(productID string) {
	kept := c.lines[:0]
	for _, line := range c.lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	c.lines = kept
}

// Lines returns a copy of the cart contents.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// TotalCents sums all line totals. Pure, no side effects.
func (c *Cart) TotalCents() int64 {
	var total int64
	for _, line := range c.lines {
		total += line.LineTotalCents
	}
	return total
}

// Clear drops every line. Called by the checkout engine once the sale is
// durably recorded, or by the session on cancel.
func (c *Cart) Clear() {
	c.lines = c.lines[:0]
}

// FromLines rebuilds a cart from previously captured lines, re-deriving
// line totals. Garbage entries (no product id, quantity below one) are
// dropped, but a line asking for more than its stock snapshot fails the
// whole rebuild with ErrStockLimit so the caller can reject the request.
// Used by the HTTP layer, which receives cart state from the client.
func FromLines(lines []domain.CartLine) (*Cart, error) {
	c := New()
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		if line.MaxQuantity > 0 && line.Quantity > line.MaxQuantity {
			return nil, ErrStockLimit
		}
		line.LineTotalCents = int64(line.Quantity) * line.UnitPriceCents
		c.lines = append(c.lines, line)
	}
	return c, nil
}
