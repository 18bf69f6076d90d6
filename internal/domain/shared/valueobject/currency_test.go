package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want Currency
	}{
		{"USD", USD},
		{"usd", USD},
		{"$", USD},
		{" $ ", USD},
		{"Rs.", PKR},
		{"pkr", PKR},
		{"", ""},
		{"chf", Currency("CHF")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCurrency(tt.in))
		})
	}
}

func TestCurrencyPolicy(t *testing.T) {
	p := NewCurrencyPolicy("PKR", "PKR")

	t.Run("defaults apply to empty codes", func(t *testing.T) {
		assert.Equal(t, PKR, p.Resolve(""))
		assert.False(t, p.IsForeign(""))
	})

	t.Run("dollar markers are foreign", func(t *testing.T) {
		assert.True(t, p.IsForeign("USD"))
		assert.True(t, p.IsForeign("$"))
		assert.False(t, p.IsForeign("PKR"))
	})

	t.Run("foreign default currency", func(t *testing.T) {
		usdDefault := NewCurrencyPolicy("PKR", "USD")
		assert.True(t, usdDefault.IsForeign(""))
	})

	t.Run("extra foreign currencies", func(t *testing.T) {
		withEuro := NewCurrencyPolicy("PKR", "PKR", "EUR", "PKR")
		assert.True(t, withEuro.IsForeign("€"))
		assert.False(t, withEuro.IsForeign("PKR"))
	})

	t.Run("empty local falls back to default currency", func(t *testing.T) {
		empty := NewCurrencyPolicy("", "")
		assert.Equal(t, DefaultCurrency, empty.Local)
		assert.Equal(t, DefaultCurrency, empty.Default)
	})
}

func TestCurrencyPolicy_ToLocal(t *testing.T) {
	p := NewCurrencyPolicy("PKR", "PKR")
	rate := decimal.NewNullDecimal(decimal.NewFromInt(300))

	t.Run("converts foreign price", func(t *testing.T) {
		got, err := p.ToLocal(decimal.NewFromInt(10), "$", rate)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(3000)))
	})

	t.Run("local price untouched without rate", func(t *testing.T) {
		got, err := p.ToLocal(decimal.NewFromInt(10), "PKR", decimal.NullDecimal{})
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(10)))
	})

	t.Run("missing rate is an error", func(t *testing.T) {
		_, err := p.ToLocal(decimal.NewFromInt(10), "USD", decimal.NullDecimal{})
		assert.ErrorIs(t, err, ErrRateUnavailable)
	})

	t.Run("zero rate is treated as missing", func(t *testing.T) {
		_, err := p.ToLocal(decimal.NewFromInt(10), "USD", decimal.NewNullDecimal(decimal.Zero))
		assert.ErrorIs(t, err, ErrRateUnavailable)
	})
}
