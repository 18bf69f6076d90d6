package dto

import (
	"github.com/shopspring/decimal"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/domain/sales"
)

// ImportRowResponse is one row recovered from an upload. Quantity is null
// when the file had none.
type ImportRowResponse struct {
	StyleNo     string          `json:"style_no"`
	Description string          `json:"description"`
	Quantity    *int64          `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineItemResponse is an order line item ready for the editing buffer
type LineItemResponse struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// ImportResponse reports the outcome of one upload
type ImportResponse struct {
	Outcome    string              `json:"outcome"`
	Reason     string              `json:"reason,omitempty"`
	Kind       string              `json:"kind,omitempty"`
	Sheet      string              `json:"sheet,omitempty"`
	SourceRows int                 `json:"source_rows"`
	Rows       []ImportRowResponse `json:"rows"`
	Items      []LineItemResponse  `json:"items"`
	// Merged is the editing buffer sent with the upload, with Rows added
	Merged []LineItemResponse `json:"merged,omitempty"`
}

// LineItemRequest is one entry of the editing buffer sent with an upload
type LineItemRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// ToLineItems converts the buffer to domain line items
func ToLineItems(reqs []LineItemRequest) []sales.LineItem {
	items := make([]sales.LineItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, sales.LineItem{
			Code:        r.Code,
			Name:        r.Name,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
		})
	}
	return items
}

// FromLineItems converts domain line items
func FromLineItems(items []sales.LineItem) []LineItemResponse {
	out := make([]LineItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, LineItemResponse{
			Code:        it.Code,
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}

// FromIngestResult converts the ingestion outcome
func FromIngestResult(r *importapp.IngestResult) ImportResponse {
	resp := ImportResponse{
		Outcome:    r.Outcome,
		Reason:     r.Reason,
		Kind:       string(r.Kind),
		Sheet:      r.Sheet,
		SourceRows: r.SourceRows,
		Rows:       make([]ImportRowResponse, 0, len(r.Rows)),
		Items:      FromLineItems(r.Items),
	}
	for _, row := range r.Rows {
		resp.Rows = append(resp.Rows, ImportRowResponse{
			StyleNo:     row.StyleNo,
			Description: row.Description,
			Quantity:    row.Quantity,
			UnitPrice:   row.UnitPrice,
		})
	}
	return resp
}
