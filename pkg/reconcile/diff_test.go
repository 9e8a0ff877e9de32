package reconcile

import (
	"database/sql"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/merge"
	"github.com/Ramsey-B/clover/pkg/models"
)

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func row(id int64, status, sku string) models.ProductRow {
	return models.ProductRow{
		ID:     id,
		Status: status,
		SKU:    nullStr(sku),
	}
}

func withImage(r models.ProductRow) models.ProductRow {
	r.ThumbnailID = nullStr("123")
	return r
}

func recordsFor(code string, stock float64, previous, current float64) map[string]merge.Record {
	return map[string]merge.Record{
		code: {
			Code:          code,
			Stock:         stock,
			PreviousPrice: decimal.NewFromFloat(previous),
			CurrentPrice:  decimal.NewFromFloat(current),
		},
	}
}

func TestNormalizeStock(t *testing.T) {
	assert.Equal(t, int64(10), NormalizeStock(10.9))
	assert.Equal(t, int64(0), NormalizeStock(-3))
	assert.Equal(t, int64(0), NormalizeStock(math.NaN()))
	assert.Equal(t, int64(0), NormalizeStock(math.Inf(1)))
}

func TestDiffPublishesStockedProductWithImage(t *testing.T) {
	r := withImage(row(1, models.PostStatusDraft, "A1"))

	directive, ok := Diff(r, recordsFor("A1", 10, 100, 80))
	require.True(t, ok)

	assert.Equal(t, int64(10), directive.Stock)
	assert.Equal(t, models.PostStatusPublish, directive.Status)
	assert.Equal(t, models.StockStatusInStock, directive.StockStatus)
	require.True(t, directive.SetPrices)
	assert.True(t, directive.RegularPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, directive.SalePrice.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "80", directive.Price)
	assert.True(t, directive.OnSale)
}

func TestDiffMissingImageForcesDraft(t *testing.T) {
	// Plenty of stock, but no featured image: the product stays a draft.
	r := row(1, models.PostStatusDraft, "A1")

	directive, ok := Diff(r, recordsFor("A1", 10, 100, 80))
	require.True(t, ok)
	assert.Empty(t, directive.Status) // already draft, nothing to write
	assert.Equal(t, int64(10), directive.Stock)
}

func TestDiffDemotesPublishedProductWithoutImage(t *testing.T) {
	r := row(1, models.PostStatusPublish, "A1")
	r.Stock = nullStr("10")
	r.RegularPrice = nullStr("100")
	r.SalePrice = nullStr("80")

	directive, ok := Diff(r, recordsFor("A1", 10, 100, 80))
	require.True(t, ok)
	assert.Equal(t, models.PostStatusDraft, directive.Status)
}

func TestDiffLowStockDrafts(t *testing.T) {
	r := withImage(row(1, models.PostStatusPublish, "A1"))
	r.Stock = nullStr("10")

	// Threshold is exclusive: a stock of exactly 3 is not enough
	directive, ok := Diff(r, recordsFor("A1", 3, 0, 0))
	require.True(t, ok)
	assert.Equal(t, models.PostStatusDraft, directive.Status)
	assert.Equal(t, int64(3), directive.Stock)
	assert.Equal(t, models.StockStatusInStock, directive.StockStatus)
}

func TestDiffUnchangedRowIsNoOp(t *testing.T) {
	r := withImage(row(1, models.PostStatusPublish, "A1"))
	r.Stock = nullStr("10")
	r.RegularPrice = nullStr("100")
	r.SalePrice = nullStr("80")

	_, ok := Diff(r, recordsFor("A1", 10, 100, 80))
	assert.False(t, ok)
}

func TestDiffForeignStatusIsPassedThrough(t *testing.T) {
	r := withImage(row(1, "trash", "A1"))

	directive, ok := Diff(r, recordsFor("A1", 10, 100, 80))
	require.True(t, ok)
	assert.Empty(t, directive.Status)
}

func TestDiffNoSaleWhenCurrentNotBelowPrevious(t *testing.T) {
	r := withImage(row(1, models.PostStatusPublish, "A1"))

	directive, ok := Diff(r, recordsFor("A1", 10, 80, 100))
	require.True(t, ok)
	require.True(t, directive.SetPrices)
	assert.True(t, directive.RegularPrice.Equal(decimal.NewFromInt(80)))
	assert.True(t, directive.SalePrice.IsZero())
	assert.Equal(t, "80", directive.Price)
	assert.False(t, directive.OnSale)
}

func TestDiffSingleTierBecomesRegularPrice(t *testing.T) {
	r := withImage(row(1, models.PostStatusPublish, "A1"))

	directive, ok := Diff(r, recordsFor("A1", 10, 0, 64))
	require.True(t, ok)
	require.True(t, directive.SetPrices)
	assert.True(t, directive.RegularPrice.Equal(decimal.NewFromInt(64)))
	assert.True(t, directive.SalePrice.IsZero())
}

func TestDiffNoFeedPricesLeavesStorePricing(t *testing.T) {
	r := withImage(row(1, models.PostStatusPublish, "A1"))
	r.RegularPrice = nullStr("55")
	r.SalePrice = nullStr("40")

	directive, ok := Diff(r, recordsFor("A1", 10, 0, 0))
	require.True(t, ok)
	assert.False(t, directive.SetPrices)
	// The always-rewritten list price metadata reflects the stored prices
	assert.Equal(t, "40", directive.Price)
	assert.True(t, directive.OnSale)
}

func TestDiffUnmatchedRowIsSuppressed(t *testing.T) {
	r := withImage(row(1, models.PostStatusPublish, "A1"))
	r.Stock = nullStr("7")

	directive, ok := Diff(r, map[string]merge.Record{})
	require.True(t, ok)
	assert.Equal(t, int64(0), directive.Stock)
	assert.Equal(t, models.PostStatusDraft, directive.Status)
	assert.Equal(t, models.StockStatusOutOfStock, directive.StockStatus)
	assert.False(t, directive.SetPrices)
}

func TestDiffUnmatchedAlreadySuppressedIsNoOp(t *testing.T) {
	r := row(1, models.PostStatusDraft, "A1")

	_, ok := Diff(r, map[string]merge.Record{})
	assert.False(t, ok)
}

func TestDiffUnmatchedForeignStatusKeepsStatus(t *testing.T) {
	r := row(1, "pending", "A1")
	r.Stock = nullStr("7")

	directive, ok := Diff(r, map[string]merge.Record{})
	require.True(t, ok)
	assert.Empty(t, directive.Status)
	assert.Equal(t, int64(0), directive.Stock)
}

func TestDiffMatchesOnTrimmedSKU(t *testing.T) {
	r := withImage(models.ProductRow{
		ID:     1,
		Status: models.PostStatusDraft,
		SKU:    nullStr("  A1  "),
	})

	directive, ok := Diff(r, recordsFor("A1", 10, 0, 64))
	require.True(t, ok)
	assert.Equal(t, models.PostStatusPublish, directive.Status)
}
