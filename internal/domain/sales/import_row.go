package sales

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ImportRow is one item recovered from an uploaded spreadsheet. Quantity is
// nil when the source had no quantity column or the cell was blank.
type ImportRow struct {
	StyleNo     string
	Description string
	Quantity    *int64
	UnitPrice   decimal.Decimal
}

// ImportDefaults are the values applied to missing import fields
type ImportDefaults struct {
	Quantity int64
	Currency string
}

// DefaultImportDefaults returns quantity 1 and no explicit currency
func DefaultImportDefaults() ImportDefaults {
	return ImportDefaults{Quantity: 1}
}

// ToLineItem converts the row applying defaults to missing fields
func (r ImportRow) ToLineItem(d ImportDefaults) LineItem {
	qty := d.Quantity
	if r.Quantity != nil && *r.Quantity > 0 {
		qty = *r.Quantity
	}
	return LineItem{
		Code:        strings.TrimSpace(r.StyleNo),
		Name:        strings.TrimSpace(r.Description),
		Description: strings.TrimSpace(r.Description),
		Quantity:    qty,
		UnitPrice:   r.UnitPrice,
		Currency:    d.Currency,
	}
}

// MergeImported appends imported rows to an editing buffer. A row whose code
// and price match an existing entry adds to that entry's quantity.
func MergeImported(buffer []LineItem, rows []ImportRow, d ImportDefaults) []LineItem {
	out := append([]LineItem(nil), buffer...)
	for _, r := range rows {
		item := r.ToLineItem(d)
		merged := false
		for i := range out {
			if out[i].Key() != "" && out[i].Key() == item.Key() &&
				out[i].UnitPrice.Equal(item.UnitPrice) && out[i].Currency == item.Currency {
				out[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, item)
		}
	}
	return out
}
