package invoicing

import (
	"time"

	"github.com/textile/backend/internal/domain/sales"
)

// CreateInvoiceRequest selects the orders to consolidate. StatusFilter and
// the date bounds only apply to workflows without fixed eligible statuses.
type CreateInvoiceRequest struct {
	Workflow     string
	CustomerID   string
	StatusFilter string
	From         *time.Time
	To           *time.Time
	// IssuedOn defaults to today; DueOn to IssuedOn plus the configured days
	IssuedOn *time.Time
	DueOn    *time.Time
}

// CreateInvoiceResult is the outcome of one invoicing attempt
type CreateInvoiceResult struct {
	Outcome string
	// Reason is set when Outcome is OutcomeNothingToDo
	Reason  string
	Invoice *sales.Invoice
	// Skipped counts order items left out as invalid
	Skipped int
}

// Created reports whether an invoice was written
func (r *CreateInvoiceResult) Created() bool {
	return r.Outcome == OutcomeCreated
}

func nothingToDo(reason string) *CreateInvoiceResult {
	return &CreateInvoiceResult{Outcome: OutcomeNothingToDo, Reason: reason}
}

// RelinkResult lists the orders linked by RelinkOrders
type RelinkResult struct {
	Invoice *sales.Invoice
	Linked  []string
}

// RenderedInvoice is a printed invoice
type RenderedInvoice struct {
	Invoice  *sales.Invoice
	Document *sales.InvoiceDocument
	PDF      []byte
	// URL is set when the document was archived
	URL string
}

// Filename is the suggested download name
func (r *RenderedInvoice) Filename() string {
	if r.Document == nil || r.Document.Number == "" {
		return "invoice.pdf"
	}
	return "invoice-" + r.Document.Number + ".pdf"
}
