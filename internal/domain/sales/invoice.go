package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/textile/backend/internal/domain/shared"
)

// InvoiceStatus represents the payment status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusCreated InvoiceStatus = "created"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusCreated, InvoiceStatusPending, InvoiceStatusPaid:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	switch s {
	case InvoiceStatusCreated:
		return target == InvoiceStatusPending || target == InvoiceStatusPaid
	case InvoiceStatusPending:
		return target == InvoiceStatusPaid
	case InvoiceStatusPaid:
		return false
	}
	return false
}

// Invoice is the consolidated billing document for one customer
type Invoice struct {
	Number           int64
	CustomerID       string
	CustomerName     string
	Items            []AggregatedLineItem
	Subtotal         decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	IssuedOn         time.Time
	DueOn            time.Time
	Status           InvoiceStatus
	SourceOrderIDs   []string
	SourceOrderCount int
}

// NewInvoice builds an invoice from an aggregation. The total is the subtotal;
// there is no tax step.
func NewInvoice(number int64, customer Customer, agg *Aggregation, currency string, issuedOn, dueOn time.Time) (*Invoice, error) {
	if agg == nil || agg.IsEmpty() {
		return nil, shared.NewDomainError("EMPTY_INVOICE", "Invoice must have at least one line item")
	}

	inv := &Invoice{
		Number:           number,
		CustomerID:       customer.ID,
		CustomerName:     customer.DisplayName(),
		Items:            append([]AggregatedLineItem(nil), agg.Items...),
		Subtotal:         agg.Subtotal,
		Total:            agg.Subtotal,
		Currency:         currency,
		IssuedOn:         issuedOn,
		DueOn:            dueOn,
		Status:           InvoiceStatusCreated,
		SourceOrderIDs:   append([]string(nil), agg.SourceOrderIDs...),
		SourceOrderCount: agg.SourceOrderCount(),
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// LinesTotal sums the line totals
func (i *Invoice) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range i.Items {
		sum = sum.Add(item.Total)
	}
	return sum
}

// Validate checks the invoice invariants
func (i *Invoice) Validate() error {
	if i.Number <= 0 {
		return shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number must be positive")
	}
	if i.CustomerID == "" {
		return shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	for _, item := range i.Items {
		if !item.Total.Equal(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))) {
			return shared.NewDomainError("INVALID_LINE_TOTAL",
				fmt.Sprintf("Line %s total does not equal quantity x unit price", item.Code))
		}
	}
	if !i.Total.Equal(i.LinesTotal()) {
		return shared.NewDomainError("INVALID_TOTAL", "Invoice total does not equal the sum of its lines")
	}
	if !i.Status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown invoice status %q", i.Status))
	}
	return nil
}

// SetStatus moves the invoice to a new payment status
func (i *Invoice) SetStatus(target InvoiceStatus) error {
	if !target.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown invoice status %q", target))
	}
	if !i.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot change invoice status from %s to %s", i.Status, target))
	}
	i.Status = target
	return nil
}

// HasSourceOrder reports whether orderID was consumed by this invoice
func (i *Invoice) HasSourceOrder(orderID string) bool {
	for _, id := range i.SourceOrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}
