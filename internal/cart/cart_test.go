package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukapos/backend/internal/domain"
)

func sugar() domain.Product {
	return domain.Product{
		ID:                "prod-sugar",
		Name:              "Sugar 1kg",
		SellingPriceCents: 300,
		Quantity:          10,
		Sold:              8,
		Balance:           2,
	}
}

func TestAddLineSnapshotsPriceAndStock(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(sugar()))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 2, lines[0].MaxQuantity)
	assert.Equal(t, int64(300), lines[0].UnitPriceCents)
	assert.Equal(t, int64(300), lines[0].LineTotalCents)
}

func TestAddLineIncrementsUpToSnapshot(t *testing.T) {
	c := New()
	product := sugar()

	require.NoError(t, c.AddLine(product))
	require.NoError(t, c.AddLine(product))
	require.ErrorIs(t, c.AddLine(product), ErrStockLimit)

	// The rejected add must not have mutated the line.
	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, int64(600), c.TotalCents())
}

func TestAddLineRejectsOutOfStock(t *testing.T) {
	c := New()
	product := sugar()
	product.Balance = 0

	require.ErrorIs(t, c.AddLine(product), ErrOutOfStock)
	assert.True(t, c.IsEmpty())
}

func TestAddLineNeverDuplicatesProduct(t *testing.T) {
	c := New()
	product := sugar()

	require.NoError(t, c.AddLine(product))
	require.NoError(t, c.AddLine(product))
	assert.Equal(t, 1, c.Len())
}

func TestSetLineQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(sugar()))

	require.NoError(t, c.SetLineQuantity("prod-sugar", 2))
	assert.Equal(t, int64(600), c.TotalCents())

	require.ErrorIs(t, c.SetLineQuantity("prod-sugar", 3), ErrStockLimit)
	assert.Equal(t, 2, c.Lines()[0].Quantity)

	require.ErrorIs(t, c.SetLineQuantity("prod-missing", 1), ErrLineMissing)
}

func TestSetLineQuantityZeroRemovesLine(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(sugar()))

	require.NoError(t, c.SetLineQuantity("prod-sugar", 0))
	assert.True(t, c.IsEmpty())
}

func TestRemoveLineAndClear(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(sugar()))
	other := sugar()
	other.ID = "prod-tea"
	require.NoError(t, c.AddLine(other))

	c.RemoveLine("prod-sugar")
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "prod-tea", c.Lines()[0].ProductID)

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Zero(t, c.TotalCents())
}

func TestTotalCentsSumsAllLines(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(sugar()))
	tea := domain.Product{ID: "prod-tea", Name: "Tea", SellingPriceCents: 150, Balance: 5}
	require.NoError(t, c.AddLine(tea))
	require.NoError(t, c.SetLineQuantity("prod-tea", 4))

	assert.Equal(t, int64(300+600), c.TotalCents())
}

func TestLinesReturnsCopy(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(sugar()))

	lines := c.Lines()
	lines[0].Quantity = 99

	assert.Equal(t, 1, c.Lines()[0].Quantity)
}

func TestFromLinesDropsGarbageEntries(t *testing.T) {
	c, err := FromLines([]domain.CartLine{
		{ProductID: "prod-a", Name: "A", UnitPriceCents: 100, Quantity: 2, MaxQuantity: 5},
		{ProductID: "", Quantity: 1},
		{ProductID: "prod-b", UnitPriceCents: 50, Quantity: 0, MaxQuantity: 5},
	})
	require.NoError(t, err)

	require.Equal(t, 1, c.Len())
	line := c.Lines()[0]
	assert.Equal(t, "prod-a", line.ProductID)
	assert.Equal(t, int64(200), line.LineTotalCents)
}

func TestFromLinesRejectsOverStockLine(t *testing.T) {
	c, err := FromLines([]domain.CartLine{
		{ProductID: "prod-a", Name: "A", UnitPriceCents: 100, Quantity: 2, MaxQuantity: 5},
		{ProductID: "prod-c", UnitPriceCents: 50, Quantity: 9, MaxQuantity: 5},
	})

	require.ErrorIs(t, err, ErrStockLimit)
	assert.Nil(t, c)
}
