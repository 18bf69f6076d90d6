package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/textile/backend/internal/application/invoicing"
	"github.com/textile/backend/internal/domain/sales"
)

// DateLayout is the calendar-date format used by request and response bodies
const DateLayout = "2006-01-02"

// CreateInvoiceRequest selects the orders to consolidate
type CreateInvoiceRequest struct {
	CustomerID string `json:"customer_id" binding:"required,max=256"`
	// Status and the date range apply to workflows without fixed statuses
	Status   string `json:"status" binding:"omitempty,max=64"`
	From     string `json:"from" binding:"omitempty,datetime=2006-01-02"`
	To       string `json:"to" binding:"omitempty,datetime=2006-01-02"`
	IssuedOn string `json:"issued_on" binding:"omitempty,datetime=2006-01-02"`
	DueOn    string `json:"due_on" binding:"omitempty,datetime=2006-01-02"`
}

// ToCommand converts the request for the invoicing service. Dates are
// validated by binding before this is called.
func (r CreateInvoiceRequest) ToCommand(workflow string) invoicing.CreateInvoiceRequest {
	return invoicing.CreateInvoiceRequest{
		Workflow:     workflow,
		CustomerID:   r.CustomerID,
		StatusFilter: r.Status,
		From:         parseDate(r.From),
		To:           parseDate(r.To),
		IssuedOn:     parseDate(r.IssuedOn),
		DueOn:        parseDate(r.DueOn),
	}
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// UpdateStatusRequest moves an invoice along its payment states
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=created pending paid"`
}

// InvoiceLineResponse is one aggregated invoice line
type InvoiceLineResponse struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// InvoiceResponse is the API view of a stored invoice
type InvoiceResponse struct {
	Number         int64                 `json:"number"`
	CustomerID     string                `json:"customer_id"`
	CustomerName   string                `json:"customer_name,omitempty"`
	Items          []InvoiceLineResponse `json:"items"`
	Subtotal       decimal.Decimal       `json:"subtotal"`
	Total          decimal.Decimal       `json:"total"`
	Currency       string                `json:"currency"`
	IssuedOn       string                `json:"issued_on"`
	DueOn          string                `json:"due_on"`
	Status         string                `json:"status"`
	SourceOrderIDs []string              `json:"source_order_ids"`
}

// FromInvoice converts a domain invoice
func FromInvoice(inv *sales.Invoice) *InvoiceResponse {
	if inv == nil {
		return nil
	}
	items := make([]InvoiceLineResponse, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, InvoiceLineResponse{
			Code:        it.Code,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
		})
	}
	return &InvoiceResponse{
		Number:         inv.Number,
		CustomerID:     inv.CustomerID,
		CustomerName:   inv.CustomerName,
		Items:          items,
		Subtotal:       inv.Subtotal,
		Total:          inv.Total,
		Currency:       inv.Currency,
		IssuedOn:       formatDate(inv.IssuedOn),
		DueOn:          formatDate(inv.DueOn),
		Status:         inv.Status.String(),
		SourceOrderIDs: inv.SourceOrderIDs,
	}
}

// FromInvoices converts a list of invoices
func FromInvoices(invoices []sales.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, *FromInvoice(&invoices[i]))
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// CreateInvoiceResponse reports the outcome of an invoicing attempt
type CreateInvoiceResponse struct {
	Outcome string           `json:"outcome"`
	Reason  string           `json:"reason,omitempty"`
	Skipped int              `json:"skipped_items,omitempty"`
	Invoice *InvoiceResponse `json:"invoice,omitempty"`
}

// FromCreateResult converts the invoicing result
func FromCreateResult(r *invoicing.CreateInvoiceResult) CreateInvoiceResponse {
	return CreateInvoiceResponse{
		Outcome: r.Outcome,
		Reason:  r.Reason,
		Skipped: r.Skipped,
		Invoice: FromInvoice(r.Invoice),
	}
}

// PartialCompletionResponse is returned with 207 when an invoice was written
// but some of its orders could not be linked
type PartialCompletionResponse struct {
	InvoiceNumber  int64    `json:"invoice_number"`
	FailedOrderIDs []string `json:"failed_order_ids"`
	Warning        string   `json:"warning"`
}

// RelinkResponse lists the orders linked by a relink
type RelinkResponse struct {
	Invoice *InvoiceResponse `json:"invoice"`
	Linked  []string         `json:"linked_order_ids"`
}

// DeleteInvoiceResponse lists the orders released by a deletion
type DeleteInvoiceResponse struct {
	Number   int64    `json:"number"`
	Detached []string `json:"detached_order_ids"`
}

// ReserveNumberResponse carries a reserved sequence value
type ReserveNumberResponse struct {
	Namespace string `json:"namespace"`
	Value     int64  `json:"value"`
}

// InvoiceEventResponse is one server-sent invoice change
type InvoiceEventResponse struct {
	Number  int64            `json:"number"`
	Deleted bool             `json:"deleted"`
	Invoice *InvoiceResponse `json:"invoice,omitempty"`
}

// FromInvoiceEvent converts a store change
func FromInvoiceEvent(ev sales.InvoiceEvent) InvoiceEventResponse {
	return InvoiceEventResponse{
		Number:  ev.Number,
		Deleted: ev.Deleted,
		Invoice: FromInvoice(ev.Invoice),
	}
}
