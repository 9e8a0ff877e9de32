package models

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Catalog store enum values. These match the storefront schema and must not
// be renamed.
const (
	PostStatusPublish = "publish"
	PostStatusDraft   = "draft"

	StockStatusInStock    = "instock"
	StockStatusOutOfStock = "outofstock"
)

// ProductRow is one catalog row joined with the metadata fields the engine
// reads. The price and stock fields carry the raw metadata strings; the
// accessors parse them leniently since the store does not enforce numeric
// values.
type ProductRow struct {
	ID           int64          `db:"id"`
	Status       string         `db:"post_status"`
	SKU          sql.NullString `db:"sku"`
	ThumbnailID  sql.NullString `db:"thumbnail_id"`
	Stock        sql.NullString `db:"stock"`
	RegularPrice sql.NullString `db:"regular_price"`
	SalePrice    sql.NullString `db:"sale_price"`
}

// TrimmedSKU returns the SKU with surrounding whitespace removed, empty when
// the metadata row is absent.
func (r ProductRow) TrimmedSKU() string {
	if !r.SKU.Valid {
		return ""
	}
	return strings.TrimSpace(r.SKU.String)
}

// HasImage reports whether the row has a featured image attached.
func (r ProductRow) HasImage() bool {
	if !r.ThumbnailID.Valid {
		return false
	}
	id := strings.TrimSpace(r.ThumbnailID.String)
	return id != "" && id != "0"
}

// CurrentStock parses the stored stock quantity, zero when absent or
// unparsable.
func (r ProductRow) CurrentStock() int64 {
	if !r.Stock.Valid {
		return 0
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(r.Stock.String), 64)
	if err != nil || value < 0 {
		return 0
	}
	return int64(value)
}

// CurrentRegularPrice parses the stored regular price, zero when absent.
func (r ProductRow) CurrentRegularPrice() decimal.Decimal {
	return parsePrice(r.RegularPrice)
}

// CurrentSalePrice parses the stored sale price, zero when absent.
func (r ProductRow) CurrentSalePrice() decimal.Decimal {
	return parsePrice(r.SalePrice)
}

func parsePrice(value sql.NullString) decimal.Decimal {
	if !value.Valid {
		return decimal.Zero
	}
	price, err := decimal.NewFromString(strings.TrimSpace(value.String))
	if err != nil {
		return decimal.Zero
	}
	return price
}

// UpdateDirective is the computed set of changes for one catalog row. It is
// created by the diff engine, consumed once by the applier, and discarded.
type UpdateDirective struct {
	ProductID int64

	// Stock is the normalized quantity to write
	Stock int64

	// Status is the desired post status; empty means the current status is
	// already correct (or not ours to touch) and no status write happens
	Status string

	// SetPrices marks the price metadata for replacement. SalePrice equal to
	// zero clears any existing sale price.
	SetPrices    bool
	RegularPrice decimal.Decimal
	SalePrice    decimal.Decimal

	// Price is the effective list price metadata value, always written
	Price string

	// StockStatus is derived from Stock, always written
	StockStatus string

	// OnSale reflects the row's post-apply sale state for the lookup
	// projection
	OnSale bool
}

// LookupRow is the denormalized projection the storefront filters on. One row
// per product, kept consistent with the metadata it mirrors.
type LookupRow struct {
	ProductID     int64  `db:"product_id"`
	StockQuantity int64  `db:"stock_quantity"`
	StockStatus   string `db:"stock_status"`
	MinPrice      string `db:"min_price"`
	MaxPrice      string `db:"max_price"`
	OnSale        bool   `db:"onsale"`
}
