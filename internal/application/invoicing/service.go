package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/domain/shared/valueobject"
)

// LinkMode selects how a new invoice is tied to its source orders
type LinkMode string

const (
	// LinkAtomic writes the invoice and every order in one transaction
	LinkAtomic LinkMode = "atomic"
	// LinkSequential writes the invoice, then each order on its own
	LinkSequential LinkMode = "sequential"
)

// DocumentRenderer turns an invoice document into PDF bytes
type DocumentRenderer interface {
	RenderInvoice(ctx context.Context, doc *sales.InvoiceDocument) ([]byte, error)
}

// DocumentArchive keeps rendered invoices and returns a download URL
type DocumentArchive interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// Config holds the invoicing policies
type Config struct {
	LinkMode       LinkMode
	Currencies     valueobject.CurrencyPolicy
	DefaultDueDays int
	Company        sales.Company
	Language       language.Tag
}

// Service consolidates eligible orders into invoices
type Service struct {
	cfg        Config
	workflows  workflowSet
	customers  sales.CustomerRepository
	counters   sales.CounterRepository
	settings   sales.SettingsRepository
	aggregator *sales.Aggregator
	formatter  *documentFormatter
	validate   *validator.Validate
	renderer   DocumentRenderer
	archive    DocumentArchive
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new invoicing Service
func NewService(
	cfg Config,
	workflows []*Workflow,
	customers sales.CustomerRepository,
	counters sales.CounterRepository,
	settings sales.SettingsRepository,
	logger *zap.Logger,
) *Service {
	if cfg.LinkMode == "" {
		cfg.LinkMode = LinkAtomic
	}
	if cfg.Language == language.Und {
		cfg.Language = language.English
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		workflows:  newWorkflowSet(workflows),
		customers:  customers,
		counters:   counters,
		settings:   settings,
		aggregator: sales.NewAggregator(cfg.Currencies),
		formatter:  newDocumentFormatter(cfg.Language),
		validate:   newDocumentValidator(),
		metrics:    noopMetrics{},
		logger:     logger.Named("invoicing"),
		now:        time.Now,
	}
}

// SetRenderer sets the PDF renderer used by RenderInvoice
func (s *Service) SetRenderer(r DocumentRenderer) {
	s.renderer = r
}

// SetArchive sets where rendered invoices are kept
func (s *Service) SetArchive(a DocumentArchive) {
	s.archive = a
}

// SetMetrics sets the business metrics recorder
func (s *Service) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	s.metrics = m
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Workflows returns the configured workflow names
func (s *Service) Workflows() []string {
	return s.workflows.names()
}

// CreateInvoice consolidates the customer's eligible orders into one invoice.
// No invoice or order is written when the result is OutcomeNothingToDo or an
// error other than PartialCompletionError is returned. A number reserved
// before a failed link is not reused.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResult, error) {
	wf, err := s.workflows.get(req.Workflow)
	if err != nil {
		return nil, err
	}
	if req.CustomerID == "" {
		return nil, shared.NewPreconditionError("create invoice", "customerId")
	}
	log := s.logger.With(zap.String("workflow", wf.Name), zap.String("customer_id", req.CustomerID))

	orders, err := wf.Orders.ListByCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	eligible := sales.FilterEligible(orders, req.CustomerID,
		wf.eligibility(req.StatusFilter, sales.DateRange{From: req.From, To: req.To}))
	if len(eligible) == 0 {
		log.Info("No eligible orders")
		s.metrics.NothingToDo(ctx, wf.Name, ReasonNoEligibleOrders)
		return nothingToDo(ReasonNoEligibleOrders), nil
	}

	var rate decimal.NullDecimal
	if s.aggregator.NeedsRate(eligible) {
		if rate, err = s.settings.FXRate(ctx); err != nil {
			return nil, fmt.Errorf("read exchange rate: %w", err)
		}
	}
	agg, err := s.aggregator.Aggregate(eligible, rate)
	if err != nil {
		return nil, err
	}
	if agg.IsEmpty() {
		log.Info("No valid line items", zap.Int("skipped", agg.Skipped))
		s.metrics.NothingToDo(ctx, wf.Name, ReasonNoValidLineItems)
		result := nothingToDo(ReasonNoValidLineItems)
		result.Skipped = agg.Skipped
		return result, nil
	}

	customer, err := s.loadCustomer(ctx, req.CustomerID, log)
	if err != nil {
		return nil, err
	}
	issuedOn, dueOn := s.invoiceDates(req.IssuedOn, req.DueOn)

	number, err := s.counters.Reserve(ctx, wf.Counter)
	if err != nil {
		return nil, fmt.Errorf("reserve invoice number: %w", err)
	}
	s.metrics.NumberReserved(ctx, wf.Counter.String())
	log = log.With(zap.Int64("invoice_number", number))

	inv, err := sales.NewInvoice(number, *customer, agg, string(s.cfg.Currencies.Local), issuedOn, dueOn)
	if err != nil {
		return nil, err
	}

	switch s.cfg.LinkMode {
	case LinkSequential:
		err = s.linkSequential(ctx, wf, inv, log)
	default:
		err = s.linkAtomic(ctx, wf, inv, log)
	}

	result := &CreateInvoiceResult{Outcome: OutcomeCreated, Invoice: inv, Skipped: agg.Skipped}
	var partial *PartialCompletionError
	if errors.As(err, &partial) {
		return result, err
	}
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceCreated(ctx, wf.Name, inv.SourceOrderCount)
	log.Info("Invoice created",
		zap.Int("orders", inv.SourceOrderCount),
		zap.Int("lines", len(inv.Items)),
		zap.String("total", inv.Total.String()),
	)
	return result, nil
}

func (s *Service) linkAtomic(ctx context.Context, wf *Workflow, inv *sales.Invoice, log *zap.Logger) error {
	err := wf.Invoices.LinkAtomic(ctx, inv)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrdersAlreadyInvoiced) {
		s.metrics.LinkFailed(ctx, wf.Name, "already_invoiced")
		log.Warn("Orders invoiced concurrently, number skipped", zap.Error(err))
	} else {
		s.metrics.LinkFailed(ctx, wf.Name, "store")
	}
	return fmt.Errorf("link invoice %d: %w", inv.Number, err)
}

func (s *Service) linkSequential(ctx context.Context, wf *Workflow, inv *sales.Invoice, log *zap.Logger) error {
	if err := wf.Invoices.Create(ctx, inv); err != nil {
		s.metrics.LinkFailed(ctx, wf.Name, "store")
		return fmt.Errorf("write invoice %d: %w", inv.Number, err)
	}
	_, err := s.markOrders(ctx, wf, inv, log)
	return err
}

// markOrders links every source order of inv, one write per order
func (s *Service) markOrders(ctx context.Context, wf *Workflow, inv *sales.Invoice, log *zap.Logger) ([]string, error) {
	var (
		linked []string
		failed []string
		causes []error
	)
	for _, id := range inv.SourceOrderIDs {
		if err := wf.Invoices.MarkOrderInvoiced(ctx, id, inv.Number); err != nil {
			failed = append(failed, id)
			causes = append(causes, fmt.Errorf("order %s: %w", id, err))
			continue
		}
		linked = append(linked, id)
	}
	if len(failed) == 0 {
		return linked, nil
	}

	s.metrics.LinkFailed(ctx, wf.Name, "partial")
	log.Warn("Invoice written with unlinked orders",
		zap.Strings("failed_order_ids", failed),
		zap.Errors("causes", causes),
	)
	return linked, &PartialCompletionError{
		Workflow:       wf.Name,
		InvoiceNumber:  inv.Number,
		FailedOrderIDs: failed,
		Causes:         causes,
	}
}

// RelinkOrders links the orders of an existing invoice that are still
// unlinked, without reserving a new number.
func (s *Service) RelinkOrders(ctx context.Context, workflow string, number int64) (*RelinkResult, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, err
	}
	inv, err := wf.Invoices.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("workflow", wf.Name), zap.Int64("invoice_number", number))
	linked, err := s.markOrders(ctx, wf, inv, log)
	result := &RelinkResult{Invoice: inv, Linked: linked}
	if err != nil {
		return result, err
	}
	log.Info("Invoice orders relinked", zap.Int("orders", len(linked)))
	return result, nil
}

// UpdatePaymentStatus moves an invoice along created -> pending -> paid
func (s *Service) UpdatePaymentStatus(ctx context.Context, workflow string, number int64, status sales.InvoiceStatus) (*sales.Invoice, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, err
	}
	inv, err := wf.Invoices.UpdateStatus(ctx, number, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Invoice status updated",
		zap.String("workflow", wf.Name),
		zap.Int64("invoice_number", number),
		zap.String("status", status.String()),
	)
	return inv, nil
}

// DeleteInvoice removes an invoice and detaches its orders so they can be
// invoiced again. The number is not reused.
func (s *Service) DeleteInvoice(ctx context.Context, workflow string, number int64) ([]string, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, err
	}
	detached, err := wf.Invoices.Delete(ctx, number)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("Invoice deleted",
		zap.String("workflow", wf.Name),
		zap.Int64("invoice_number", number),
		zap.Strings("detached_order_ids", detached),
	)
	return detached, nil
}

// ReserveNumber hands out the next value of a shared sequence
func (s *Service) ReserveNumber(ctx context.Context, ns sales.CounterNamespace) (int64, error) {
	n, err := s.counters.Reserve(ctx, ns)
	if err != nil {
		return 0, err
	}
	s.metrics.NumberReserved(ctx, ns.String())
	return n, nil
}

// GetInvoice loads one invoice
func (s *Service) GetInvoice(ctx context.Context, workflow string, number int64) (*sales.Invoice, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, err
	}
	return wf.Invoices.Get(ctx, number)
}

// ListInvoices returns the workflow's invoices by number
func (s *Service) ListInvoices(ctx context.Context, workflow string) ([]sales.Invoice, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, err
	}
	return wf.Invoices.List(ctx)
}

// WatchInvoices streams the workflow's invoice changes until ctx is done
func (s *Service) WatchInvoices(ctx context.Context, workflow string) (<-chan sales.InvoiceEvent, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, err
	}
	return wf.Invoices.Watch(ctx)
}

// BuildDocument lays out a stored invoice for print and checks that every
// required header field is present.
func (s *Service) BuildDocument(ctx context.Context, workflow string, number int64) (*sales.Invoice, *sales.InvoiceDocument, error) {
	wf, err := s.workflows.get(workflow)
	if err != nil {
		return nil, nil, err
	}
	inv, err := wf.Invoices.Get(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	log := s.logger.With(zap.String("workflow", wf.Name), zap.Int64("invoice_number", number))
	customer := s.lookupCustomer(ctx, inv.CustomerID, log)

	doc := s.formatter.buildDocument(s.cfg.Company, inv, customer)
	if err := checkDocument(s.validate, doc); err != nil {
		return inv, doc, err
	}
	return inv, doc, nil
}

// RenderInvoice prints a stored invoice to PDF and archives it when an
// archive is configured. An archive failure is logged, not returned.
func (s *Service) RenderInvoice(ctx context.Context, workflow string, number int64) (*RenderedInvoice, error) {
	inv, doc, err := s.BuildDocument(ctx, workflow, number)
	if err != nil {
		return nil, err
	}
	if s.renderer == nil {
		return nil, ErrRendererUnavailable
	}

	pdf, err := s.renderer.RenderInvoice(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("render invoice %d: %w", number, err)
	}
	out := &RenderedInvoice{Invoice: inv, Document: doc, PDF: pdf}

	if s.archive != nil {
		key := fmt.Sprintf("%s/%d.pdf", workflow, number)
		url, err := s.archive.Store(ctx, key, pdf)
		if err != nil {
			s.logger.Warn("Failed to archive invoice", zap.String("key", key), zap.Error(err))
		} else {
			out.URL = url
		}
	}
	return out, nil
}

// loadCustomer reads the customer for a new invoice. A missing record
// invoices by id; any other read failure stops the operation before a
// number is reserved.
func (s *Service) loadCustomer(ctx context.Context, id string, log *zap.Logger) (*sales.Customer, error) {
	customer, err := s.customers.Get(ctx, id)
	switch {
	case err == nil:
		return customer, nil
	case errors.Is(err, shared.ErrNotFound):
		log.Warn("Customer record missing, invoicing by id")
		return &sales.Customer{ID: id}, nil
	default:
		return nil, fmt.Errorf("read customer %s: %w", id, err)
	}
}

// lookupCustomer is the lenient read used when printing a stored invoice
func (s *Service) lookupCustomer(ctx context.Context, id string, log *zap.Logger) *sales.Customer {
	customer, err := s.customers.Get(ctx, id)
	if err == nil {
		return customer
	}
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("Customer record missing, printing by id")
	} else {
		log.Warn("Failed to load customer, printing by id", zap.Error(err))
	}
	return &sales.Customer{ID: id}
}

func (s *Service) invoiceDates(issued, due *time.Time) (time.Time, time.Time) {
	issuedOn := dateOnly(s.now())
	if issued != nil {
		issuedOn = dateOnly(*issued)
	}
	if due != nil {
		return issuedOn, dateOnly(*due)
	}
	return issuedOn, issuedOn.AddDate(0, 0, s.cfg.DefaultDueDays)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
