package valueobject

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	PKR Currency = "PKR" // Pakistani Rupee (local settlement currency)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
)

// DefaultCurrency is the settlement currency when nothing else is configured
const DefaultCurrency = PKR

// ErrRateUnavailable is returned when a foreign price must be converted but
// no exchange rate was supplied.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// symbols maps the free-form markers found on stored line items to codes.
var symbols = map[string]Currency{
	"$":   USD,
	"US$": USD,
	"USD": USD,
	"€":   EUR,
	"£":   GBP,
	"RS":  PKR,
	"RS.": PKR,
	"₨":   PKR,
	"PKR": PKR,
}

// ParseCurrency normalizes a code or symbol. Unknown values are upper-cased
// and returned as-is.
func ParseCurrency(s string) Currency {
	key := strings.ToUpper(strings.TrimSpace(s))
	if c, ok := symbols[key]; ok {
		return c
	}
	return Currency(key)
}

// CurrencyPolicy decides which currency a line item is in and whether its
// price must be converted into the local currency.
type CurrencyPolicy struct {
	Local   Currency
	Default Currency
	foreign map[Currency]struct{}
}

// NewCurrencyPolicy builds a policy. foreign lists codes or symbols that are
// converted with the exchange rate; "USD" and "$" are always included.
func NewCurrencyPolicy(local, def string, foreign ...string) CurrencyPolicy {
	p := CurrencyPolicy{
		Local:   ParseCurrency(local),
		Default: ParseCurrency(def),
		foreign: map[Currency]struct{}{USD: {}},
	}
	if p.Local == "" {
		p.Local = DefaultCurrency
	}
	if p.Default == "" {
		p.Default = p.Local
	}
	for _, f := range foreign {
		c := ParseCurrency(f)
		if c != "" && c != p.Local {
			p.foreign[c] = struct{}{}
		}
	}
	return p
}

// Resolve returns the currency of an item, applying the default when empty
func (p CurrencyPolicy) Resolve(code string) Currency {
	c := ParseCurrency(code)
	if c == "" {
		return p.Default
	}
	return c
}

// IsForeign reports whether an item priced in code needs conversion
func (p CurrencyPolicy) IsForeign(code string) bool {
	_, ok := p.foreign[p.Resolve(code)]
	return ok
}

// ToLocal converts price into the local currency. rate is local units per
// one unit of foreign currency; an invalid rate is ErrRateUnavailable.
func (p CurrencyPolicy) ToLocal(price decimal.Decimal, code string, rate decimal.NullDecimal) (decimal.Decimal, error) {
	if !p.IsForeign(code) {
		return price, nil
	}
	if !rate.Valid || !rate.Decimal.IsPositive() {
		return decimal.Zero, ErrRateUnavailable
	}
	return price.Mul(rate.Decimal), nil
}
