package erp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeItemsFieldCandidates(t *testing.T) {
	items := DecodeItems([]map[string]any{
		{"codigo": " A1 ", "descripcion": "Widget", "existencia": 12.0, "empresa": "EMP1"},
		{"code": "B2", "description": "Gadget", "stock": "7.5"},
		{"codigo": 3001.0, "cantidad": 4},
	})

	require.Len(t, items, 3)
	assert.Equal(t, "A1", items[0].Code)
	assert.Equal(t, "Widget", items[0].Description)
	assert.Equal(t, 12.0, items[0].Stock)
	assert.Equal(t, "EMP1", items[0].CompanyTag)

	// English field names and numeric strings
	assert.Equal(t, "B2", items[1].Code)
	assert.Equal(t, 7.5, items[1].Stock)

	// Numeric codes are rendered without a decimal point
	assert.Equal(t, "3001", items[2].Code)
	assert.Equal(t, 4.0, items[2].Stock)
}

func TestDecodePricesUnparsableValue(t *testing.T) {
	prices := DecodePrices([]map[string]any{
		{"codigo": "A1", "cod_lis": "05", "precioiva": 99.9},
		{"codigo": "A1", "cod_lis": "22", "precioiva": "not-a-number"},
		{"codigo": "A2", "cod_lis": "05"},
	})

	require.Len(t, prices, 3)
	assert.True(t, prices[0].PriceValid())
	assert.Equal(t, "99.9", prices[0].PriceWithTax.String())
	assert.False(t, prices[1].PriceValid())
	assert.False(t, prices[2].PriceValid())
}
