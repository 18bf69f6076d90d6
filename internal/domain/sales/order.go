package sales

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/textile/backend/internal/domain/shared"
)

// OrderStatus represents the workflow status of a customer order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusInProgress OrderStatus = "in-progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusInvoiced   OrderStatus = "invoiced"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusReady, OrderStatusInProgress,
		OrderStatusCompleted, OrderStatusInvoiced, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// ErrOrderAlreadyInvoiced is returned when an order that already points at an
// invoice is linked again.
var ErrOrderAlreadyInvoiced = shared.NewDomainError("ORDER_ALREADY_INVOICED", "Order is already invoiced")

// LineItem is one entry on an order. Prices are in Currency, which may be
// empty (the workflow's default currency applies).
type LineItem struct {
	Code        string
	Name        string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Currency    string
}

// Key returns the item identity used for aggregation: the code, or the name
// when the item has no code.
func (li LineItem) Key() string {
	if code := strings.TrimSpace(li.Code); code != "" {
		return code
	}
	return strings.TrimSpace(li.Name)
}

// Label returns the best human-readable text for the item
func (li LineItem) Label() string {
	if d := strings.TrimSpace(li.Description); d != "" {
		return d
	}
	return strings.TrimSpace(li.Name)
}

// IsValid reports whether the item can be invoiced. Items with a
// non-positive quantity or a negative price are excluded from invoices.
func (li LineItem) IsValid() bool {
	return li.Quantity > 0 && !li.UnitPrice.IsNegative()
}

// Total returns quantity x unit price in the item's own currency
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// Order represents a confirmed customer purchase awaiting invoicing
type Order struct {
	ID            string
	CustomerID    string
	OrderedOn     time.Time
	Status        OrderStatus
	Items         []LineItem
	Invoiced      bool
	InvoiceNumber int64
}

// IsInvoiced reports whether the order is already linked to an invoice
func (o *Order) IsInvoiced() bool {
	return o.Invoiced || o.InvoiceNumber != 0 || o.Status == OrderStatusInvoiced
}

// MarkInvoiced links the order to an invoice. An order is linked exactly once.
func (o *Order) MarkInvoiced(number int64) error {
	if number <= 0 {
		return shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number must be positive")
	}
	if o.IsInvoiced() {
		return ErrOrderAlreadyInvoiced
	}
	o.Invoiced = true
	o.InvoiceNumber = number
	return nil
}

// Detach removes the link to invoice number. It is used when an invoice is
// deleted by an administrator; an order linked to another invoice is left alone.
func (o *Order) Detach(number int64) bool {
	if o.InvoiceNumber != number {
		return false
	}
	o.Invoiced = false
	o.InvoiceNumber = 0
	if o.Status == OrderStatusInvoiced {
		o.Status = OrderStatusCompleted
	}
	return true
}
