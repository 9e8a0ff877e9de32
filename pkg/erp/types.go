package erp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Price list discriminators used by the feed. "05" is delivered zero-padded by
// some tenants and bare by others.
const (
	PriceListCurrent      = "05"
	PriceListCurrentShort = "5"
	PriceListPrevious     = "22"
)

// ItemRecord is one row of the items feed for the configured branch/warehouse.
type ItemRecord struct {
	Code        string
	Description string
	Stock       float64
	CompanyTag  string
}

// PriceRecord is one row of the price-list feed. A code usually appears once
// per price list.
type PriceRecord struct {
	Code         string
	PriceListTag string
	PriceWithTax decimal.Decimal
	priceValid   bool
}

// PriceValid reports whether the feed value parsed as a number.
func (p PriceRecord) PriceValid() bool {
	return p.priceValid
}

// DecodeItems converts raw feed records into ItemRecords. Field names vary by
// ERP version, so each field is resolved from an ordered candidate list.
func DecodeItems(records []map[string]any) []ItemRecord {
	items := make([]ItemRecord, 0, len(records))
	for _, record := range records {
		item := ItemRecord{
			Code:        fieldString(record, "codigo", "code"),
			Description: fieldString(record, "descripcion", "description"),
			CompanyTag:  fieldString(record, "empresa", "company"),
		}
		if stock, ok := fieldFloat(record, "existencia", "stock", "cantidad"); ok {
			item.Stock = stock
		}
		items = append(items, item)
	}
	return items
}

// DecodePrices converts raw feed records into PriceRecords.
func DecodePrices(records []map[string]any) []PriceRecord {
	prices := make([]PriceRecord, 0, len(records))
	for _, record := range records {
		price := PriceRecord{
			Code:         fieldString(record, "codigo", "code"),
			PriceListTag: fieldString(record, "cod_lis"),
		}
		if value, ok := fieldFloat(record, "precioiva"); ok {
			price.PriceWithTax = decimal.NewFromFloat(value)
			price.priceValid = true
		}
		prices = append(prices, price)
	}
	return prices
}

func fieldString(record map[string]any, candidates ...string) string {
	for _, name := range candidates {
		value, ok := record[name]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			// JSON numbers decode as float64; codes are integral
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		default:
			return strings.TrimSpace(fmt.Sprintf("%v", v))
		}
	}
	return ""
}

func fieldFloat(record map[string]any, candidates ...string) (float64, bool) {
	for _, name := range candidates {
		value, ok := record[name]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue
			}
			return parsed, true
		}
	}
	return 0, false
}
