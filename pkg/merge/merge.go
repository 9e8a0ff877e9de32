// Package merge joins the two ERP feeds into one canonical record per item
// code. It is pure: no I/O, no retained state between runs.
package merge

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/clover/pkg/erp"
)

// Record is the canonical view of one item for a reconciliation pass.
type Record struct {
	Code          string
	Description   string
	Stock         float64
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}

// Merge performs a full outer join of the feeds keyed on trimmed item code.
// Every item seeds an entry; every price record updates or creates the entry
// for its code. Records without a code are skipped. Later price writes for
// the same list overwrite earlier ones, so feed page order wins.
func Merge(items []erp.ItemRecord, prices []erp.PriceRecord) map[string]Record {
	records := make(map[string]Record, len(items))

	for _, item := range items {
		code := strings.TrimSpace(item.Code)
		if code == "" {
			continue
		}
		records[code] = Record{
			Code:        code,
			Description: item.Description,
			Stock:       item.Stock,
		}
	}

	for _, price := range prices {
		code := strings.TrimSpace(price.Code)
		if code == "" {
			continue
		}
		if !price.PriceValid() {
			continue // unparsable value, keep whatever we already have
		}

		record, ok := records[code]
		if !ok {
			record = Record{Code: code}
		}

		switch price.PriceListTag {
		case erp.PriceListCurrent, erp.PriceListCurrentShort:
			record.CurrentPrice = price.PriceWithTax
		case erp.PriceListPrevious:
			record.PreviousPrice = price.PriceWithTax
		default:
			continue // other price lists are not consumed
		}

		records[code] = record
	}

	return records
}
