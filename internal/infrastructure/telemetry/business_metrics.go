package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/application/invoicing"
)

var (
	_ invoicing.Metrics = (*BusinessMetrics)(nil)
	_ importapp.Metrics = (*BusinessMetrics)(nil)
)

// BusinessMetrics counts invoicing and ingestion outcomes.
type BusinessMetrics struct {
	invoicesCreated metric.Int64Counter
	ordersInvoiced  metric.Float64Histogram
	nothingToDo     metric.Int64Counter
	numbersReserved metric.Int64Counter
	linkFailures    metric.Int64Counter
	rowsIngested    metric.Float64Histogram
}

// NewBusinessMetrics registers the instruments on meter
func NewBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	in := NewInstruments(meter)
	bm := &BusinessMetrics{
		invoicesCreated: in.Counter("invoicing_invoices_created_total", "Invoices created", "{invoice}"),
		ordersInvoiced: in.Histogram("invoicing_orders_per_invoice",
			"Orders consolidated into one invoice", "{order}", RowBuckets),
		nothingToDo: in.Counter("invoicing_nothing_to_do_total",
			"Invoice requests that found nothing to invoice", "{request}"),
		numbersReserved: in.Counter("counter_numbers_reserved_total", "Sequence numbers handed out", "{number}"),
		linkFailures: in.Counter("invoicing_link_failures_total",
			"Orders that could not be marked as invoiced", "{order}"),
		rowsIngested: in.Histogram("ingestion_rows_per_upload",
			"Line items recovered from one upload", "{row}", RowBuckets),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return bm, nil
}

func (bm *BusinessMetrics) InvoiceCreated(ctx context.Context, workflow string, orders int) {
	attrs := Attrs(AttrWorkflow.String(workflow))
	bm.invoicesCreated.Add(ctx, 1, attrs)
	bm.ordersInvoiced.Record(ctx, float64(orders), attrs)
}

func (bm *BusinessMetrics) NothingToDo(ctx context.Context, workflow, reason string) {
	bm.nothingToDo.Add(ctx, 1, Attrs(AttrWorkflow.String(workflow), AttrReason.String(reason)))
}

func (bm *BusinessMetrics) NumberReserved(ctx context.Context, namespace string) {
	bm.numbersReserved.Add(ctx, 1, Attrs(AttrNamespace.String(namespace)))
}

func (bm *BusinessMetrics) LinkFailed(ctx context.Context, workflow, reason string) {
	bm.linkFailures.Add(ctx, 1, Attrs(AttrWorkflow.String(workflow), AttrReason.String(reason)))
}

func (bm *BusinessMetrics) RowsIngested(ctx context.Context, kind string, rows int) {
	bm.rowsIngested.Record(ctx, float64(rows), Attrs(AttrSourceKind.String(kind)))
}
