package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/textile/backend/internal/domain/sales"
)

// Stored documents are written by several front-end flows, so numbers and
// dates appear both as JSON numbers and as strings. Fields not listed in
// the records below are ignored on read.

// FlexInt decodes an integer stored as a number or a numeric string
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	if !d.Equal(d.Truncate(0)) {
		return fmt.Errorf("invalid integer %q: has a fractional part", s)
	}
	*f = FlexInt(d.IntPart())
	return nil
}

// FlexDate decodes a date stored as YYYY-MM-DD or RFC 3339
type FlexDate struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalJSON implements json.Unmarshaler
func (d *FlexDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, dateLayout, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	return fmt.Errorf("invalid date %q", s)
}

// MarshalJSON writes the date as YYYY-MM-DD
func (d FlexDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// LineItemRecord is the stored form of an order line item
type LineItemRecord struct {
	ItemCode    string          `json:"itemCode,omitempty"`
	ItemName    string          `json:"itemName,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    FlexInt         `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency,omitempty"`
}

// OrderRecord is the stored form of an order
type OrderRecord struct {
	CustomerID    string           `json:"customerId"`
	Date          FlexDate         `json:"date"`
	Status        string           `json:"status"`
	Items         []LineItemRecord `json:"items"`
	Invoiced      bool             `json:"invoiced"`
	InvoiceNumber FlexInt          `json:"invoiceNumber,omitempty"`
}

// ToDomain converts the record to a sales.Order
func (r *OrderRecord) ToDomain(id string) sales.Order {
	items := make([]sales.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, sales.LineItem{
			Code:        it.ItemCode,
			Name:        it.ItemName,
			Description: it.Description,
			Quantity:    int64(it.Quantity),
			UnitPrice:   it.Price,
			Currency:    it.Currency,
		})
	}
	return sales.Order{
		ID:            id,
		CustomerID:    r.CustomerID,
		OrderedOn:     r.Date.Time,
		Status:        sales.OrderStatus(strings.ToLower(strings.TrimSpace(r.Status))),
		Items:         items,
		Invoiced:      r.Invoiced,
		InvoiceNumber: int64(r.InvoiceNumber),
	}
}

// InvoiceLineRecord is the stored form of an aggregated invoice row
type InvoiceLineRecord struct {
	ItemCode    string          `json:"itemCode"`
	Description string          `json:"description"`
	Quantity    FlexInt         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// InvoiceRecord is the stored form of an invoice
type InvoiceRecord struct {
	InvoiceNumber FlexInt             `json:"invoiceNumber"`
	CustomerID    string              `json:"customerId"`
	CustomerName  string              `json:"customerName"`
	Items         []InvoiceLineRecord `json:"items"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Total         decimal.Decimal     `json:"total"`
	Currency      string              `json:"currency,omitempty"`
	Date          FlexDate            `json:"date"`
	DueDate       FlexDate            `json:"dueDate"`
	Status        string              `json:"status"`
	OrderIDs      []string            `json:"orderIds"`
	OrderCount    int                 `json:"orderCount"`
}

// NewInvoiceRecord converts a sales.Invoice for storage
func NewInvoiceRecord(inv *sales.Invoice) InvoiceRecord {
	lines := make([]InvoiceLineRecord, 0, len(inv.Items))
	for _, it := range inv.Items {
		lines = append(lines, InvoiceLineRecord{
			ItemCode:    it.Code,
			Description: it.Description,
			Quantity:    FlexInt(it.Quantity),
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
		})
	}
	return InvoiceRecord{
		InvoiceNumber: FlexInt(inv.Number),
		CustomerID:    inv.CustomerID,
		CustomerName:  inv.CustomerName,
		Items:         lines,
		Subtotal:      inv.Subtotal,
		Total:         inv.Total,
		Currency:      inv.Currency,
		Date:          FlexDate{inv.IssuedOn},
		DueDate:       FlexDate{inv.DueOn},
		Status:        string(inv.Status),
		OrderIDs:      append([]string(nil), inv.SourceOrderIDs...),
		OrderCount:    inv.SourceOrderCount,
	}
}

// ToDomain converts the record to a sales.Invoice. number is used when the
// stored document does not carry its own number.
func (r *InvoiceRecord) ToDomain(number int64) *sales.Invoice {
	if r.InvoiceNumber != 0 {
		number = int64(r.InvoiceNumber)
	}
	items := make([]sales.AggregatedLineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, sales.AggregatedLineItem{
			Code:        it.ItemCode,
			Description: it.Description,
			Quantity:    int64(it.Quantity),
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
		})
	}
	status := sales.InvoiceStatus(strings.ToLower(r.Status))
	if status == "" {
		status = sales.InvoiceStatusCreated
	}
	count := r.OrderCount
	if count == 0 {
		count = len(r.OrderIDs)
	}
	return &sales.Invoice{
		Number:           number,
		CustomerID:       r.CustomerID,
		CustomerName:     r.CustomerName,
		Items:            items,
		Subtotal:         r.Subtotal,
		Total:            r.Total,
		Currency:         r.Currency,
		IssuedOn:         r.Date.Time,
		DueOn:            r.DueDate.Time,
		Status:           status,
		SourceOrderIDs:   append([]string(nil), r.OrderIDs...),
		SourceOrderCount: count,
	}
}

// CustomerRecord is the stored form of a customer
type CustomerRecord struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// ToDomain converts the record to a sales.Customer
func (r *CustomerRecord) ToDomain(id string) *sales.Customer {
	return &sales.Customer{
		ID:      id,
		Name:    r.Name,
		Address: r.Address,
		Phone:   r.Phone,
		Email:   r.Email,
	}
}
