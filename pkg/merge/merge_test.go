package merge

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/erp"
)

func price(code, tag string, value float64) erp.PriceRecord {
	records := erp.DecodePrices([]map[string]any{
		{"codigo": code, "cod_lis": tag, "precioiva": value},
	})
	return records[0]
}

func invalidPrice(code, tag string) erp.PriceRecord {
	records := erp.DecodePrices([]map[string]any{
		{"codigo": code, "cod_lis": tag, "precioiva": "garbage"},
	})
	return records[0]
}

func TestMergeJoinsFeedsByCode(t *testing.T) {
	items := []erp.ItemRecord{
		{Code: " A1 ", Description: "Widget", Stock: 10},
		{Code: "B2", Description: "Gadget", Stock: 0},
	}
	prices := []erp.PriceRecord{
		price("A1", "22", 100),
		price("A1", "05", 80),
	}

	records := Merge(items, prices)
	require.Len(t, records, 2)

	a1 := records["A1"]
	assert.Equal(t, 10.0, a1.Stock)
	assert.True(t, a1.PreviousPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, a1.CurrentPrice.Equal(decimal.NewFromInt(80)))

	b2 := records["B2"]
	assert.True(t, b2.PreviousPrice.IsZero())
	assert.True(t, b2.CurrentPrice.IsZero())
}

func TestMergePriceOnlyCodeCreatesRecord(t *testing.T) {
	records := Merge(nil, []erp.PriceRecord{price("C3", "05", 42)})

	require.Contains(t, records, "C3")
	assert.Equal(t, 0.0, records["C3"].Stock)
	assert.True(t, records["C3"].CurrentPrice.Equal(decimal.NewFromInt(42)))
}

func TestMergeShortCurrentListTag(t *testing.T) {
	records := Merge(
		[]erp.ItemRecord{{Code: "A1", Stock: 5}},
		[]erp.PriceRecord{price("A1", "5", 60)},
	)

	assert.True(t, records["A1"].CurrentPrice.Equal(decimal.NewFromInt(60)))
}

func TestMergeIgnoresInvalidAndForeignPrices(t *testing.T) {
	records := Merge(
		[]erp.ItemRecord{{Code: "A1", Stock: 5}},
		[]erp.PriceRecord{
			price("A1", "05", 80),
			invalidPrice("A1", "05"), // unparsable value keeps the earlier price
			price("A1", "13", 999),   // unknown price list is not consumed
		},
	)

	a1 := records["A1"]
	assert.True(t, a1.CurrentPrice.Equal(decimal.NewFromInt(80)))
	assert.True(t, a1.PreviousPrice.IsZero())
}

func TestMergeSkipsBlankCodes(t *testing.T) {
	records := Merge(
		[]erp.ItemRecord{{Code: "  ", Stock: 5}},
		[]erp.PriceRecord{price("", "05", 80)},
	)

	assert.Empty(t, records)
}

func TestMergeLastPriceWriteWins(t *testing.T) {
	records := Merge(
		[]erp.ItemRecord{{Code: "A1"}},
		[]erp.PriceRecord{
			price("A1", "05", 80),
			price("A1", "05", 75),
		},
	)

	assert.True(t, records["A1"].CurrentPrice.Equal(decimal.NewFromInt(75)))
}
