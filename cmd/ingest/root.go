package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/infrastructure/classifier"
	"github.com/textile/backend/internal/infrastructure/config"
	csvimport "github.com/textile/backend/internal/infrastructure/import"
	"github.com/textile/backend/internal/infrastructure/logger"
)

var version = "1.0.0"

// cli carries state shared by the subcommands
type cli struct {
	out        io.Writer
	logLevel   string
	classifier string
	store      string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "ingest",
		Short: "Spreadsheet import and counter tools for the textile back office",
		Long: `ingest runs the same pipeline as the upload endpoint against local
files, and reserves numbers from the shared counters.

Configuration is read from config.toml, .env and TEXTILE_* variables,
as for the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				logger.Sync(c.log)
			}
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&c.classifier, "classifier", "", "Override ingestion.classifier (header, openai)")
	flags.StringVar(&c.store, "store", "", "Override store.driver (memory, redis, postgres, sqlite)")

	root.AddCommand(
		newNormalizeCmd(c),
		newClassifyCmd(c),
		newReserveCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	log, err := logger.New(&logger.Config{
		Level:      c.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return err
	}
	c.log = log

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.classifier != "" {
		cfg.Ingestion.Classifier = c.classifier
	}
	if c.store != "" {
		cfg.Store.Driver = c.store
	}
	c.cfg = cfg
	return nil
}

func (c *cli) normalizer() *csvimport.Normalizer {
	return csvimport.NewNormalizer(c.cfg.Ingestion.MaxUploadSize, c.log)
}

func (c *cli) ingestion() *importapp.IngestionService {
	var cls importapp.Classifier
	switch c.cfg.Ingestion.Classifier {
	case config.ClassifierOpenAI:
		cls = classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
			APIKey:  c.cfg.OpenAI.APIKey,
			BaseURL: c.cfg.OpenAI.BaseURL,
			Model:   c.cfg.OpenAI.Model,
			Timeout: c.cfg.OpenAI.Timeout,
		}, c.log)
	default:
		cls = classifier.NewHeaderClassifier(c.log)
	}

	defaults := sales.DefaultImportDefaults()
	defaults.Quantity = c.cfg.Ingestion.DefaultQuantity
	return importapp.NewIngestionService(c.normalizer(), cls, defaults, c.cfg.Ingestion.AllowedExtensions, c.log)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
