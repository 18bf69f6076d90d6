package sales

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository reads the orders of one workflow
type OrderRepository interface {
	// Get loads a single order. Returns shared.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Order, error)
	// ListByCustomer returns the customer's orders in storage key order
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
}

// CustomerRepository reads invoice recipients
type CustomerRepository interface {
	Get(ctx context.Context, id string) (*Customer, error)
}

// InvoiceEvent is a change to a stored invoice
type InvoiceEvent struct {
	Number  int64
	Invoice *Invoice
	Deleted bool
}

// InvoiceRepository persists the invoices of one workflow and their links
// to source orders.
type InvoiceRepository interface {
	Get(ctx context.Context, number int64) (*Invoice, error)
	List(ctx context.Context) ([]Invoice, error)

	// LinkAtomic writes the invoice and marks every source order invoiced in
	// one atomic step. It fails with ErrOrderAlreadyInvoiced, writing
	// nothing, if any source order was linked in the meantime.
	LinkAtomic(ctx context.Context, inv *Invoice) error

	// Create writes the invoice only; shared.ErrAlreadyExists if the number is taken.
	Create(ctx context.Context, inv *Invoice) error
	// MarkOrderInvoiced links one order, only if it is not linked yet.
	// Linking an order that already points at number is a no-op.
	MarkOrderInvoiced(ctx context.Context, orderID string, number int64) error

	UpdateStatus(ctx context.Context, number int64, status InvoiceStatus) (*Invoice, error)

	// Delete removes the invoice and detaches the orders that point at it,
	// atomically. It returns the detached order ids.
	Delete(ctx context.Context, number int64) ([]string, error)

	// Watch streams invoice changes until ctx is done
	Watch(ctx context.Context) (<-chan InvoiceEvent, error)
}

// CounterRepository hands out values from shared sequences
type CounterRepository interface {
	// Reserve atomically advances ns and returns the new value
	Reserve(ctx context.Context, ns CounterNamespace) (int64, error)
	// Current returns the last value handed out, false if never used
	Current(ctx context.Context, ns CounterNamespace) (int64, bool, error)
}

// SettingsRepository reads business settings
type SettingsRepository interface {
	// FXRate returns local currency units per US dollar; invalid when unset
	FXRate(ctx context.Context) (decimal.NullDecimal, error)
}
