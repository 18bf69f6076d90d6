package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/domain/sales"
	csvimport "github.com/textile/backend/internal/infrastructure/import"
)

// Header names recognised per field, compared with csvimport.HeaderKey
var (
	styleHeaders       = []string{"style no", "style number", "style", "item code", "code", "article no", "article", "sku", "item no"}
	descriptionHeaders = []string{"description", "desc", "item name", "item", "name", "product", "details"}
	quantityHeaders    = []string{"quantity", "qty", "pcs", "pieces", "units"}
	priceHeaders       = []string{"unit price", "price", "rate", "price per unit", "unit cost", "amount"}
)

// HeaderClassifier maps columns by their header names. It works offline and
// is used when no language model is configured.
type HeaderClassifier struct {
	logger *zap.Logger
}

// NewHeaderClassifier creates a HeaderClassifier
func NewHeaderClassifier(logger *zap.Logger) *HeaderClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeaderClassifier{logger: logger.Named("header-classifier")}
}

// Classify reads the first non-empty row as headers. Rows without a style
// number and description, or with an unreadable price, are skipped.
func (c *HeaderClassifier) Classify(_ context.Context, text string) ([]sales.ImportRow, error) {
	p, err := csvimport.ParseFromBytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", importapp.ErrClassificationFailed, err)
	}
	if err := p.ParseHeader(); err != nil {
		return nil, fmt.Errorf("%w: %v", importapp.ErrClassificationFailed, err)
	}

	styleCol, hasStyle := p.Column(styleHeaders...)
	descCol, hasDesc := p.Column(descriptionHeaders...)
	priceCol, hasPrice := p.Column(priceHeaders...)
	qtyCol, _ := p.Column(quantityHeaders...)
	if !hasPrice || (!hasStyle && !hasDesc) {
		return nil, fmt.Errorf("%w: headers %q have no style or price column",
			importapp.ErrClassificationFailed, p.Headers())
	}

	rows, err := p.ReadAllRows()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", importapp.ErrClassificationFailed, err)
	}

	rejected := csvimport.NewErrorCollection(20)
	out := make([]sales.ImportRow, 0, len(rows))
	for _, row := range rows {
		style, desc := row.Get(styleCol), row.Get(descCol)
		if style == "" && desc == "" {
			rejected.Add(csvimport.RowError{Row: row.LineNumber, Message: "missing style number and description"})
			continue
		}
		price, err := parseAmount(row.Get(priceCol))
		if err != nil {
			rejected.Add(csvimport.RowError{Row: row.LineNumber, Column: p.Headers()[priceCol], Message: "not a price", Value: row.Get(priceCol)})
			continue
		}
		quantity, err := parseQuantity(row.Get(qtyCol))
		if err != nil {
			rejected.Add(csvimport.RowError{Row: row.LineNumber, Column: p.Headers()[qtyCol], Message: "not a quantity", Value: row.Get(qtyCol)})
			continue
		}
		out = append(out, sales.ImportRow{
			StyleNo:     style,
			Description: desc,
			Quantity:    quantity,
			UnitPrice:   price,
		})
	}

	if rejected.HasErrors() {
		c.logger.Debug("Rows skipped",
			zap.Int("count", rejected.TotalCount()),
			zap.String("errors", rejected.String()),
		)
	}
	return out, nil
}

var _ importapp.Classifier = (*HeaderClassifier)(nil)
