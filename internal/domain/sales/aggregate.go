package sales

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/domain/shared/valueobject"
)

// FXRateField names the exchange rate setting in precondition errors
const FXRateField = "usdRate"

// AggregatedLineItem is one invoice row built from one or more order items
// that share the same key and the same local unit price.
type AggregatedLineItem struct {
	Code        string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// Aggregation is the result of merging the items of a set of orders
type Aggregation struct {
	Items []AggregatedLineItem
	// SourceOrderIDs lists every eligible order passed in, including orders
	// whose items were all skipped. Invoicing marks each of them so an
	// empty order does not stay eligible forever.
	SourceOrderIDs []string
	// Skipped counts items left out because of a non-positive quantity or
	// a negative price.
	Skipped  int
	Subtotal decimal.Decimal
}

// SourceOrderCount returns the number of distinct orders consumed
func (a *Aggregation) SourceOrderCount() int {
	return len(a.SourceOrderIDs)
}

// IsEmpty reports whether no invoice row was produced
func (a *Aggregation) IsEmpty() bool {
	return len(a.Items) == 0
}

// Aggregator merges order line items into invoice rows in the local currency
type Aggregator struct {
	currencies valueobject.CurrencyPolicy
}

// NewAggregator creates an aggregator using the given currency policy
func NewAggregator(currencies valueobject.CurrencyPolicy) *Aggregator {
	return &Aggregator{currencies: currencies}
}

// NeedsRate reports whether any valid item in orders is priced in a foreign
// currency, i.e. whether Aggregate requires an exchange rate.
func (a *Aggregator) NeedsRate(orders []Order) bool {
	for i := range orders {
		for _, item := range orders[i].Items {
			if item.IsValid() && a.currencies.IsForeign(item.Currency) {
				return true
			}
		}
	}
	return false
}

// Aggregate merges the valid items of orders. Invalid items are skipped
// silently. Rows keep the order in which their key was first seen. Every
// order is recorded as a source, whether or not it contributed a row.
func (a *Aggregator) Aggregate(orders []Order, rate decimal.NullDecimal) (*Aggregation, error) {
	type rowKey struct {
		item  string
		price string
	}

	result := &Aggregation{Subtotal: decimal.Zero}
	index := make(map[rowKey]int)
	seen := make(map[string]struct{}, len(orders))

	for i := range orders {
		o := &orders[i]
		if _, dup := seen[o.ID]; !dup {
			seen[o.ID] = struct{}{}
			result.SourceOrderIDs = append(result.SourceOrderIDs, o.ID)
		}

		for _, item := range o.Items {
			if !item.IsValid() {
				result.Skipped++
				continue
			}

			price, err := a.currencies.ToLocal(item.UnitPrice, item.Currency, rate)
			if err != nil {
				if errors.Is(err, valueobject.ErrRateUnavailable) {
					return nil, shared.NewPreconditionError("aggregate line items", FXRateField)
				}
				return nil, err
			}

			k := rowKey{item: item.Key(), price: price.String()}
			if pos, ok := index[k]; ok {
				row := &result.Items[pos]
				row.Quantity += item.Quantity
				if row.Description == "" {
					row.Description = item.Label()
				}
				continue
			}
			index[k] = len(result.Items)
			result.Items = append(result.Items, AggregatedLineItem{
				Code:        item.Key(),
				Description: item.Label(),
				Quantity:    item.Quantity,
				UnitPrice:   price,
			})
		}
	}

	for i := range result.Items {
		row := &result.Items[i]
		row.Total = row.UnitPrice.Mul(decimal.NewFromInt(row.Quantity))
		result.Subtotal = result.Subtotal.Add(row.Total)
	}
	return result, nil
}
