// Package reconcile computes and applies the minimal set of catalog changes
// needed to match the canonical ERP state.
package reconcile

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/clover/pkg/merge"
	"github.com/Ramsey-B/clover/pkg/models"
)

// StockPublishThreshold is the stock level a product must exceed to be
// published. Fixed by the business, not configurable.
const StockPublishThreshold = 3

// NormalizeStock clamps a feed stock value to a usable quantity: non-finite
// and negative values become 0, everything else is floored.
func NormalizeStock(x float64) int64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return int64(math.Floor(x))
}

// Diff decides whether a catalog row needs an update and returns the
// directive describing it. The second return is false when the row already
// matches the desired state, which is what makes consecutive runs over
// unchanged upstream data no-ops.
func Diff(row models.ProductRow, records map[string]merge.Record) (models.UpdateDirective, bool) {
	record, ok := records[row.TrimmedSKU()]
	if !ok {
		return suppressUnmatched(row)
	}

	stock := NormalizeStock(record.Stock)

	desiredStatus := models.PostStatusDraft
	if stock > StockPublishThreshold {
		desiredStatus = models.PostStatusPublish
	}
	// A product without an image is never published, regardless of stock.
	if !row.HasImage() {
		desiredStatus = models.PostStatusDraft
	}

	statusWrite := ""
	if desiredStatus != row.Status && statusIsOurs(row.Status) {
		statusWrite = desiredStatus
	}

	regular, sale, setPrices := derivePrices(record.PreviousPrice, record.CurrentPrice)

	priceChanged := setPrices &&
		(!regular.Equal(row.CurrentRegularPrice()) || !sale.Equal(row.CurrentSalePrice()))
	stockChanged := stock != row.CurrentStock()

	if !stockChanged && statusWrite == "" && !priceChanged {
		return models.UpdateDirective{}, false
	}

	directive := models.UpdateDirective{
		ProductID:   row.ID,
		Stock:       stock,
		Status:      statusWrite,
		StockStatus: stockStatusFor(stock),
	}
	if setPrices {
		directive.SetPrices = true
		directive.RegularPrice = regular
		directive.SalePrice = sale
		directive.Price = effectivePrice(regular, sale)
		directive.OnSale = onSale(regular, sale)
	} else {
		// Prices stay as they are; the list price metadata is still rewritten
		// from the row's current values.
		directive.Price = effectivePrice(row.CurrentRegularPrice(), row.CurrentSalePrice())
		directive.OnSale = onSale(row.CurrentRegularPrice(), row.CurrentSalePrice())
	}

	return directive, true
}

// suppressUnmatched forces rows whose SKU disappeared upstream to zero stock
// and draft. Products are suppressed, never deleted.
func suppressUnmatched(row models.ProductRow) (models.UpdateDirective, bool) {
	statusWrite := ""
	if row.Status != models.PostStatusDraft && statusIsOurs(row.Status) {
		statusWrite = models.PostStatusDraft
	}

	if row.CurrentStock() == 0 && statusWrite == "" {
		return models.UpdateDirective{}, false
	}

	return models.UpdateDirective{
		ProductID:   row.ID,
		Stock:       0,
		Status:      statusWrite,
		StockStatus: models.StockStatusOutOfStock,
		Price:       effectivePrice(row.CurrentRegularPrice(), row.CurrentSalePrice()),
		OnSale:      onSale(row.CurrentRegularPrice(), row.CurrentSalePrice()),
	}, true
}

// statusIsOurs reports whether the engine owns the row's publish state.
// Statuses outside publish/draft (trash, pending, custom) are passed through
// untouched.
func statusIsOurs(status string) bool {
	return status == models.PostStatusPublish || status == models.PostStatusDraft
}

// derivePrices applies the price-tier rule to the previous (P) and current
// (C) list prices. A sale exists only when both tiers are present and the
// current price undercuts the previous one.
func derivePrices(previous, current decimal.Decimal) (regular, sale decimal.Decimal, set bool) {
	prevSet := previous.IsPositive()
	curSet := current.IsPositive()

	switch {
	case prevSet && curSet:
		regular = previous
		if current.LessThan(previous) {
			sale = current
		}
		return regular, sale, true
	case curSet:
		return current, decimal.Zero, true
	case prevSet:
		return previous, decimal.Zero, true
	default:
		return decimal.Zero, decimal.Zero, false
	}
}

// effectivePrice is the list price the storefront displays: the sale price
// when one is set, else the regular price, else zero.
func effectivePrice(regular, sale decimal.Decimal) string {
	if sale.IsPositive() {
		return sale.String()
	}
	if regular.IsPositive() {
		return regular.String()
	}
	return "0"
}

func onSale(regular, sale decimal.Decimal) bool {
	if !sale.IsPositive() {
		return false
	}
	return !regular.IsPositive() || sale.LessThan(regular)
}

func stockStatusFor(stock int64) string {
	if stock > 0 {
		return models.StockStatusInStock
	}
	return models.StockStatusOutOfStock
}
