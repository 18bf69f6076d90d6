package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/application/invoicing"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared/valueobject"
	"github.com/textile/backend/internal/infrastructure/auth"
	"github.com/textile/backend/internal/infrastructure/classifier"
	"github.com/textile/backend/internal/infrastructure/config"
	"github.com/textile/backend/internal/infrastructure/docstore"
	csvimport "github.com/textile/backend/internal/infrastructure/import"
	"github.com/textile/backend/internal/infrastructure/logger"
	"github.com/textile/backend/internal/infrastructure/persistence"
	"github.com/textile/backend/internal/infrastructure/printing"
	"github.com/textile/backend/internal/infrastructure/storage"
	"github.com/textile/backend/internal/infrastructure/telemetry"
	"github.com/textile/backend/internal/interfaces/http/handler"
	"github.com/textile/backend/internal/interfaces/http/middleware"
	"github.com/textile/backend/internal/interfaces/http/router"
)

// application is everything the HTTP server needs, plus what must be
// released on shutdown
type application struct {
	handlers      router.Handlers
	validator     middleware.TokenValidator
	uploadLimiter *middleware.RateLimiter
	closers       []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (a *application) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// close releases resources in reverse order of acquisition
func (a *application) close(log *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			log.Warn("Error closing "+c.name, zap.Error(err))
		}
	}
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger, meters *telemetry.MeterProvider) (*application, error) {
	app := &application{}
	checks := map[string]handler.HealthCheck{}

	store, err := openStore(ctx, cfg, log, app, checks)
	if err != nil {
		return nil, err
	}

	business, err := telemetry.NewBusinessMetrics(meters.Meter("business"))
	if err != nil {
		return nil, fmt.Errorf("business metrics: %w", err)
	}

	invoices, err := newInvoicingService(ctx, cfg, store, log, app)
	if err != nil {
		return nil, err
	}
	invoices.SetMetrics(business)

	ingestion := newIngestionService(cfg, log)
	ingestion.SetMetrics(business)

	if cfg.JWT.Enabled {
		app.validator = auth.NewJWTService(cfg.JWT)
	}
	if cfg.Ingestion.RateLimit > 0 {
		app.uploadLimiter = middleware.NewRateLimiter(cfg.Ingestion.RateLimit, time.Minute)
		app.onClose("upload limiter", func() error {
			app.uploadLimiter.Stop()
			return nil
		})
	}

	app.handlers = router.Handlers{
		Invoices: handler.NewInvoiceHandler(invoices, handler.WithInvoiceLogger(log)),
		Counters: handler.NewCounterHandler(invoices),
		Imports:  handler.NewImportHandler(ingestion, cfg.Ingestion.MaxUploadSize),
		Health:   handler.NewHealthHandler(version, invoices.Workflows(), checks),
	}
	return app, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, app *application, checks map[string]handler.HealthCheck) (docstore.Store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("Using in-memory document store; data is lost on restart")
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	h, err := persistence.OpenStore(ctx, cfg, gormLog, log)
	if err != nil {
		return nil, err
	}
	app.onClose("document store", h.Close)
	for name, check := range h.Checks {
		checks[name] = check
	}

	if h.Database != nil {
		dbSystem := "postgresql"
		if h.Database.Driver == config.StoreDriverSQLite {
			dbSystem = "sqlite"
		}
		if err := telemetry.RegisterDBTracing(h.Database.DB, telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        dbSystem,
		}, log); err != nil {
			return nil, err
		}
	}
	return h.Store, nil
}

func newInvoicingService(ctx context.Context, cfg *config.Config, store docstore.Store, log *zap.Logger, app *application) (*invoicing.Service, error) {
	workflows := make([]*invoicing.Workflow, 0, len(cfg.Invoicing.Workflows))
	for _, wf := range cfg.Invoicing.Workflows {
		statuses := make([]sales.OrderStatus, 0, len(wf.EligibleStatuses))
		for _, st := range wf.EligibleStatuses {
			statuses = append(statuses, sales.OrderStatus(st))
		}
		workflows = append(workflows, &invoicing.Workflow{
			Name:             wf.Name,
			Orders:           persistence.NewDocOrderRepository(store, wf.Orders, log),
			Invoices:         persistence.NewDocInvoiceRepository(store, wf.Invoices, wf.Orders, log),
			Counter:          sales.CounterNamespace(wf.Counter),
			EligibleStatuses: statuses,
		})
	}

	svc := invoicing.NewService(
		invoicing.Config{
			LinkMode: invoicing.LinkMode(cfg.Invoicing.LinkMode),
			Currencies: valueobject.NewCurrencyPolicy(
				cfg.Invoicing.LocalCurrency,
				cfg.Invoicing.DefaultCurrency,
				cfg.Invoicing.ForeignCurrencies...,
			),
			DefaultDueDays: cfg.Invoicing.DefaultDueDays,
			Company: sales.Company{
				Name:    cfg.Printing.CompanyName,
				Address: cfg.Printing.CompanyAddress,
				Phone:   cfg.Printing.CompanyPhone,
			},
		},
		workflows,
		persistence.NewDocCustomerRepository(store, cfg.Store.CustomersPath),
		persistence.NewDocCounterRepository(store, cfg.Store.CounterRoot, cfg.Counters.Seeds()),
		persistence.NewDocSettingsRepository(store, cfg.Store.FXRatePath),
		log,
	)

	if cfg.Printing.Enabled {
		renderer := printing.NewChromedpRenderer(&printing.ChromedpConfig{
			DefaultTimeout: cfg.Printing.Timeout,
			ExecPath:       cfg.Printing.ChromePath,
			NoSandbox:      true,
			Logger:         log,
		})
		printer := printing.NewInvoicePrinter(renderer, log, printing.WithRenderTimeout(cfg.Printing.Timeout))
		app.onClose("invoice printer", printer.Close)
		svc.SetRenderer(printer)
	}

	if cfg.Storage.Enabled {
		archive, err := storage.NewS3Archive(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiry),
		)
		if err != nil {
			return nil, fmt.Errorf("invoice archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("invoice archive: %w", err)
		}
		svc.SetArchive(archive)
		log.Info("Invoice archive ready", zap.String("bucket", archive.Bucket()))
	}

	return svc, nil
}

func newIngestionService(cfg *config.Config, log *zap.Logger) *importapp.IngestionService {
	var cls importapp.Classifier
	switch cfg.Ingestion.Classifier {
	case config.ClassifierOpenAI:
		cls = classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		}, log)
	default:
		cls = classifier.NewHeaderClassifier(log)
	}

	defaults := sales.DefaultImportDefaults()
	defaults.Quantity = cfg.Ingestion.DefaultQuantity

	return importapp.NewIngestionService(
		csvimport.NewNormalizer(cfg.Ingestion.MaxUploadSize, log),
		cls,
		defaults,
		cfg.Ingestion.AllowedExtensions,
		log,
	)
}
