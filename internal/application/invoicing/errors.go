package invoicing

import (
	"fmt"
	"strings"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
)

// Outcomes of CreateInvoice
const (
	OutcomeCreated     = "created"
	OutcomeNothingToDo = "nothing_to_do"
)

// Reasons reported with OutcomeNothingToDo
const (
	ReasonNoEligibleOrders = "no_eligible_orders"
	ReasonNoValidLineItems = "no_valid_line_items"
)

var (
	// ErrOrdersAlreadyInvoiced is returned when another invoice claimed one
	// of the selected orders first. The reserved number is skipped.
	ErrOrdersAlreadyInvoiced = sales.ErrOrderAlreadyInvoiced

	// ErrPartialCompletion marks an invoice that was written while some of
	// its orders could not be linked.
	ErrPartialCompletion = shared.NewDomainError("PARTIAL_COMPLETION", "Invoice written but not every order was linked")

	// ErrRendererUnavailable is returned when no document renderer is configured
	ErrRendererUnavailable = fmt.Errorf("document renderer not configured: %w", shared.ErrUnavailable)
)

func unknownWorkflow(name string) error {
	return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Unknown invoicing workflow %q", name))
}

// PartialCompletionError reports orders left unlinked after their invoice was
// written. The invoice is kept; RelinkOrders finishes the linkage without
// reserving a new number.
type PartialCompletionError struct {
	Workflow       string
	InvoiceNumber  int64
	FailedOrderIDs []string
	Causes         []error
}

// Error implements the error interface
func (e *PartialCompletionError) Error() string {
	return fmt.Sprintf("invoice %d written but %d order(s) not linked: %s",
		e.InvoiceNumber, len(e.FailedOrderIDs), strings.Join(e.FailedOrderIDs, ", "))
}

// Is matches ErrPartialCompletion
func (e *PartialCompletionError) Is(target error) bool {
	return target == ErrPartialCompletion
}

// Unwrap returns the per-order failures
func (e *PartialCompletionError) Unwrap() []error {
	return e.Causes
}
