package invoicing

import "context"

// Metrics records business events of the invoicing flow
type Metrics interface {
	InvoiceCreated(ctx context.Context, workflow string, orders int)
	NothingToDo(ctx context.Context, workflow, reason string)
	NumberReserved(ctx context.Context, namespace string)
	LinkFailed(ctx context.Context, workflow, reason string)
}

type noopMetrics struct{}

func (noopMetrics) InvoiceCreated(context.Context, string, int) {}
func (noopMetrics) NothingToDo(context.Context, string, string) {}
func (noopMetrics) NumberReserved(context.Context, string) {}
func (noopMetrics) LinkFailed(context.Context, string, string) {}
