package invoicing

import (
	"sort"

	"github.com/textile/backend/internal/domain/sales"
)

// Workflow binds one order collection to its invoice collection and number
// sequence. EligibleStatuses selects the fixed-status filter; when empty the
// caller-supplied status filter and date range apply.
type Workflow struct {
	Name             string
	Orders           sales.OrderRepository
	Invoices         sales.InvoiceRepository
	Counter          sales.CounterNamespace
	EligibleStatuses []sales.OrderStatus
}

// UsesFixedStatuses reports whether the workflow ignores the request filter
func (w *Workflow) UsesFixedStatuses() bool {
	return len(w.EligibleStatuses) > 0
}

func (w *Workflow) eligibility(statusFilter string, rng sales.DateRange) sales.Eligibility {
	if w.UsesFixedStatuses() {
		return sales.EligibleStates(w.EligibleStatuses...)
	}
	return sales.StatusAndDate(statusFilter, rng)
}

type workflowSet map[string]*Workflow

func newWorkflowSet(workflows []*Workflow) workflowSet {
	set := make(workflowSet, len(workflows))
	for _, wf := range workflows {
		set[wf.Name] = wf
	}
	return set
}

func (s workflowSet) get(name string) (*Workflow, error) {
	wf, ok := s[name]
	if !ok {
		return nil, unknownWorkflow(name)
	}
	return wf, nil
}

func (s workflowSet) names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
