package importapp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/textile/backend/internal/domain/sales"
	csvimport "github.com/textile/backend/internal/infrastructure/import"
)

// Outcomes of Ingest
const (
	OutcomeImported    = "imported"
	OutcomeNothingToDo = "nothing_to_do"
)

// Reasons reported with OutcomeNothingToDo
const (
	ReasonEmptyFile        = "empty_file"
	ReasonNoRows           = "no_rows"
	ReasonNoClassifiedRows = "no_classified_rows"
)

// DefaultExtensions are the upload types accepted when none are configured
var DefaultExtensions = []string{".csv", ".xlsx", ".xls"}

// Classifier recovers item rows from canonical comma-separated text
type Classifier interface {
	Classify(ctx context.Context, text string) ([]sales.ImportRow, error)
}

// Metrics records ingestion events
type Metrics interface {
	RowsIngested(ctx context.Context, kind string, rows int)
}

type noopMetrics struct{}

func (noopMetrics) RowsIngested(context.Context, string, int) {}

// IngestResult is the outcome of one upload
type IngestResult struct {
	Outcome string
	Reason  string
	Kind    csvimport.SourceKind
	Sheet   string
	// SourceRows counts the spreadsheet rows kept by normalization
	SourceRows int
	Rows       []sales.ImportRow
	// Items are Rows with the import defaults applied
	Items []sales.LineItem
}

// IngestionService turns spreadsheet uploads into order line items
type IngestionService struct {
	normalizer *csvimport.Normalizer
	classifier Classifier
	defaults   sales.ImportDefaults
	allowed    map[string]struct{}
	metrics    Metrics
	logger     *zap.Logger
}

// NewIngestionService creates a new IngestionService. An empty extensions
// list means DefaultExtensions.
func NewIngestionService(
	normalizer *csvimport.Normalizer,
	classifier Classifier,
	defaults sales.ImportDefaults,
	extensions []string,
	logger *zap.Logger,
) *IngestionService {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	if defaults.Quantity <= 0 {
		defaults.Quantity = sales.DefaultImportDefaults().Quantity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		normalizer: normalizer,
		classifier: classifier,
		defaults:   defaults,
		allowed:    allowed,
		metrics:    noopMetrics{},
		logger:     logger.Named("ingestion"),
	}
}

// SetMetrics sets the metrics recorder
func (s *IngestionService) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	s.metrics = m
}

// Defaults returns the values applied to missing import fields
func (s *IngestionService) Defaults() sales.ImportDefaults {
	return s.defaults
}

// Accepts reports whether filename has an allowed extension
func (s *IngestionService) Accepts(filename string) bool {
	_, ok := s.allowed[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Ingest normalizes and classifies an upload. Empty files and files without
// recognisable rows are an OutcomeNothingToDo result, not an error.
func (s *IngestionService) Ingest(ctx context.Context, filename string, data []byte) (*IngestResult, error) {
	if !s.Accepts(filename) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(filename))
	}
	log := s.logger.With(zap.String("filename", filename), zap.Int("size", len(data)))
	if len(strings.TrimSpace(string(data))) == 0 {
		return &IngestResult{Outcome: OutcomeNothingToDo, Reason: ReasonEmptyFile}, nil
	}

	norm, err := s.normalizer.Normalize(filename, data)
	if err != nil {
		return nil, err
	}
	result := &IngestResult{Kind: norm.Kind, Sheet: norm.Sheet, SourceRows: norm.Rows}
	if norm.IsEmpty() {
		log.Info("No rows in upload", zap.String("kind", string(norm.Kind)))
		result.Outcome, result.Reason = OutcomeNothingToDo, ReasonNoRows
		return result, nil
	}

	rows, err := s.classifier.Classify(ctx, norm.Text)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", filename, err)
	}
	if len(rows) == 0 {
		log.Info("Classifier found no item rows")
		result.Outcome, result.Reason = OutcomeNothingToDo, ReasonNoClassifiedRows
		return result, nil
	}

	result.Outcome = OutcomeImported
	result.Rows = rows
	result.Items = make([]sales.LineItem, 0, len(rows))
	for _, r := range rows {
		result.Items = append(result.Items, r.ToLineItem(s.defaults))
	}
	s.metrics.RowsIngested(ctx, string(norm.Kind), len(rows))
	log.Info("Upload ingested", zap.String("kind", string(norm.Kind)), zap.Int("rows", len(rows)))
	return result, nil
}

// MergeLineItems adds imported rows to an editing buffer; a row matching an
// entry by item key and price increases that entry's quantity.
func (s *IngestionService) MergeLineItems(buffer []sales.LineItem, rows []sales.ImportRow) []sales.LineItem {
	return sales.MergeImported(buffer, rows, s.defaults)
}
