package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAmountCurrency(t *testing.T) {
	cases := []struct {
		in       string
		amount   float64
		currency string
	}{
		{"$1,200.50", 1200.5, "$"},
		{"500,000 VND", 500000, "VND"},
		{"42", 42, ""},
		{"€ 12.5", 12.5, "€"},
		{"1,000,000đ", 1000000, "đ"},
		{"-35.20 USD", -35.2, "USD"},
		{"USD -10", -10, "USD"},
		{"  7.  ", 7, ""},
	}

	for _, tc := range cases {
		t.Run("should parse "+tc.in, func(t *testing.T) {
			amount, currency, err := ExtractAmountCurrency(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.amount, amount, 1e-9)
			assert.Equal(t, tc.currency, currency)
		})
	}

	t.Run("should reject values without digits", func(t *testing.T) {
		for _, in := range []string{"", "free", "USD"} {
			_, _, err := ExtractAmountCurrency(in)
			assert.Error(t, err, in)
		}
	})
}
