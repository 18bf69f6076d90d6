package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/infrastructure/persistence"
	"github.com/textile/backend/internal/interfaces/http/dto"
)

func newNormalizeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [file]",
		Short: "Print an upload as the canonical CSV text fed to the classifier",
		Example: `  ingest normalize order.xlsx
  ingest normalize legacy.xls > order.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := c.normalizer().Normalize(filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			if res.Sheet != "" {
				c.log.Info("Read sheet", zap.String("sheet", res.Sheet), zap.Int("rows", res.Rows))
			}
			_, err = fmt.Fprintln(c.out, res.Text)
			return err
		},
	}
}

func newClassifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Run the full import pipeline and print the recovered line items as JSON",
		Example: `  ingest classify order.csv
  ingest classify --classifier openai scanned-order.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := c.ingestion().Ingest(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			return c.printJSON(dto.FromIngestResult(res))
		},
	}
}

func newReserveCmd(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "reserve [namespace]",
		Short: "Reserve the next number of a counter",
		Long: `Reserve advances a counter in the configured document store and prints
each reserved value. Namespaces: invoiceCounter, salesInvoiceCounter,
salesOrderCounter, orderNumberCounter.`,
		Example: `  ingest reserve orderNumberCounter
  ingest reserve --count 5 salesOrderCounter`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			ctx := cmd.Context()
			h, err := persistence.OpenStore(ctx, c.cfg, nil, c.log)
			if err != nil {
				return err
			}
			defer func() {
				if err := h.Close(); err != nil {
					c.log.Warn("Error closing document store", zap.Error(err))
				}
			}()

			counters := persistence.NewDocCounterRepository(h.Store, c.cfg.Store.CounterRoot, c.cfg.Counters.Seeds())
			ns := sales.CounterNamespace(args[0])
			for i := 0; i < count; i++ {
				n, err := counters.Reserve(ctx, ns)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(c.out, n); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of values to reserve")
	return cmd
}
