package classifier

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var errNoNumber = errors.New("no number")

// parseAmount reads a price such as "1,200.50", "Rs. 300" or "$12"
func parseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, errNoNumber
	}
	return decimal.NewFromString(cleaned)
}

// parseQuantity reads a whole quantity; blank yields nil
func parseQuantity(s string) (*int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := parseAmount(s)
	if err != nil {
		return nil, err
	}
	q := d.IntPart()
	return &q, nil
}
