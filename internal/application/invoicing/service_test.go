package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/domain/shared/valueobject"
	"github.com/textile/backend/internal/infrastructure/docstore"
	"github.com/textile/backend/internal/infrastructure/persistence"
)

type fixture struct {
	store    *docstore.MemoryStore
	counters *persistence.DocCounterRepository
	orders   map[string]*persistence.DocOrderRepository
	invoices map[string]*persistence.DocInvoiceRepository
	metrics  *recordingMetrics
	svc      *Service
}

func newFixture(t *testing.T, mode LinkMode) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		counters: persistence.NewDocCounterRepository(store, "", sales.DefaultCounterSeeds()),
		orders:   map[string]*persistence.DocOrderRepository{},
		invoices: map[string]*persistence.DocInvoiceRepository{},
		metrics:  &recordingMetrics{},
	}
	f.orders["orders"] = persistence.NewDocOrderRepository(store, "orders", nil)
	f.invoices["orders"] = persistence.NewDocInvoiceRepository(store, "invoices", "orders", nil)
	f.orders["sales"] = persistence.NewDocOrderRepository(store, "salesOrders", nil)
	f.invoices["sales"] = persistence.NewDocInvoiceRepository(store, "salesInvoices", "salesOrders", nil)

	workflows := []*Workflow{
		{Name: "orders", Orders: f.orders["orders"], Invoices: f.invoices["orders"], Counter: sales.CounterInvoice},
		{
			Name:             "sales",
			Orders:           f.orders["sales"],
			Invoices:         f.invoices["sales"],
			Counter:          sales.CounterSalesInvoice,
			EligibleStatuses: []sales.OrderStatus{sales.OrderStatusConfirmed, sales.OrderStatusReady},
		},
	}
	f.svc = f.newService(mode, workflows)
	return f
}

func (f *fixture) newService(mode LinkMode, workflows []*Workflow) *Service {
	svc := NewService(
		Config{
			LinkMode:       mode,
			Currencies:     valueobject.NewCurrencyPolicy("PKR", "PKR", "USD"),
			DefaultDueDays: 30,
			Company:        sales.Company{Name: "Textile Mills", Address: "Faisalabad"},
		},
		workflows,
		persistence.NewDocCustomerRepository(f.store, "customers"),
		f.counters,
		persistence.NewDocSettingsRepository(f.store, "settings/usdRate"),
		zap.NewNop(),
	)
	svc.SetMetrics(f.metrics)
	svc.SetClock(func() time.Time { return time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC) })
	return svc
}

func (f *fixture) put(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), path, json.RawMessage(doc)))
}

func (f *fixture) doc(t *testing.T, path string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, docstore.GetJSON(context.Background(), f.store, path, &m))
	return m
}

func (f *fixture) count(t *testing.T, parent string) int {
	t.Helper()
	docs, err := f.store.List(context.Background(), parent)
	require.NoError(t, err)
	return len(docs)
}

// seedScenario stores the two orders of customer C: A has X1 x2 @100, B has
// X1 x1 @100 and Y2 x1 @50.
func (f *fixture) seedScenario(t *testing.T, collection, status string) {
	t.Helper()
	f.put(t, collection+"/A", fmt.Sprintf(`{"customerId":"C","status":%q,"date":"2024-03-01",
		"items":[{"itemCode":"X1","quantity":2,"price":100}]}`, status))
	f.put(t, collection+"/B", fmt.Sprintf(`{"customerId":"C","status":%q,"date":"2024-03-02",
		"items":[{"itemCode":"X1","quantity":1,"price":100},{"itemCode":"Y2","quantity":1,"price":50}]}`, status))
}

type recordingMetrics struct {
	mu       sync.Mutex
	created  int
	nothing  []string
	reserved int
	failed   []string
}

func (m *recordingMetrics) InvoiceCreated(context.Context, string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) NothingToDo(_ context.Context, _ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nothing = append(m.nothing, reason)
}

func (m *recordingMetrics) NumberReserved(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved++
}

func (m *recordingMetrics) LinkFailed(_ context.Context, _ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, reason)
}

// staleOrders replays the first listing it saw, like a caller that read the
// orders before a concurrent invoice linked them.
type staleOrders struct {
	sales.OrderRepository
	once     sync.Once
	snapshot []sales.Order
}

func (s *staleOrders) ListByCustomer(ctx context.Context, customerID string) ([]sales.Order, error) {
	var err error
	s.once.Do(func() {
		s.snapshot, err = s.OrderRepository.ListByCustomer(ctx, customerID)
	})
	return s.snapshot, err
}

// flakyInvoices fails MarkOrderInvoiced for the listed orders
type flakyInvoices struct {
	sales.InvoiceRepository
	mu   sync.Mutex
	fail map[string]error
}

func (r *flakyInvoices) MarkOrderInvoiced(ctx context.Context, orderID string, number int64) error {
	r.mu.Lock()
	err := r.fail[orderID]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.InvoiceRepository.MarkOrderInvoiced(ctx, orderID, number)
}

func (r *flakyInvoices) heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = nil
}

func TestCreateInvoice_EndToEnd(t *testing.T) {
	for _, mode := range []LinkMode{LinkAtomic, LinkSequential} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode)
			f.seedScenario(t, "orders", "completed")

			result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all"})
			require.NoError(t, err)
			require.True(t, result.Created())

			inv := result.Invoice
			assert.Equal(t, int64(10000), inv.Number)
			require.Len(t, inv.Items, 2)
			assert.Equal(t, "X1", inv.Items[0].Code)
			assert.Equal(t, int64(3), inv.Items[0].Quantity)
			assert.True(t, inv.Items[0].Total.Equal(decimal.NewFromInt(300)))
			assert.Equal(t, "Y2", inv.Items[1].Code)
			assert.Equal(t, int64(1), inv.Items[1].Quantity)
			assert.True(t, inv.Items[1].Total.Equal(decimal.NewFromInt(50)))
			assert.True(t, inv.Total.Equal(decimal.NewFromInt(350)))
			assert.Equal(t, []string{"A", "B"}, inv.SourceOrderIDs)
			assert.Equal(t, "C", inv.CustomerName)
			assert.Equal(t, "PKR", inv.Currency)
			assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), inv.IssuedOn)
			assert.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC), inv.DueOn)

			for _, id := range []string{"A", "B"} {
				order := f.doc(t, "orders/"+id)
				assert.Equal(t, true, order["invoiced"], id)
				assert.Equal(t, float64(10000), order["invoiceNumber"], id)
				assert.Equal(t, "invoiced", order["status"], id)
			}

			stored, err := f.svc.GetInvoice(ctx, "orders", 10000)
			require.NoError(t, err)
			assert.True(t, stored.Total.Equal(decimal.NewFromInt(350)))
			assert.Equal(t, 1, f.metrics.created)
		})
	}
}

func TestCreateInvoice_SalesWorkflowUsesFixedStatuses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LinkAtomic)
	f.put(t, "customers/C", `{"name":"Acme Garments","address":"Lahore"}`)
	f.put(t, "salesOrders/A", `{"customerId":"C","status":"confirmed","items":[{"itemCode":"X1","quantity":2,"price":100}]}`)
	f.put(t, "salesOrders/B", `{"customerId":"C","status":"ready","items":[{"itemCode":"X1","quantity":1,"price":100}]}`)
	f.put(t, "salesOrders/P", `{"customerId":"C","status":"pending","items":[{"itemCode":"Z9","quantity":1,"price":5}]}`)

	// the status filter is ignored for this workflow
	result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C", StatusFilter: "pending"})
	require.NoError(t, err)
	require.True(t, result.Created())

	assert.Equal(t, int64(10000), result.Invoice.Number)
	assert.Equal(t, []string{"A", "B"}, result.Invoice.SourceOrderIDs)
	assert.Equal(t, "Acme Garments", result.Invoice.CustomerName)
	require.Len(t, result.Invoice.Items, 1)
	assert.Equal(t, int64(3), result.Invoice.Items[0].Quantity)

	assert.Equal(t, 1, f.count(t, "salesInvoices"))
	assert.Equal(t, 0, f.count(t, "invoices"))
	pending := f.doc(t, "salesOrders/P")
	assert.Equal(t, false, pending["invoiced"])
}

func TestCreateInvoice_NothingToDo(t *testing.T) {
	ctx := context.Background()

	t.Run("no eligible orders", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.put(t, "salesOrders/D1", `{"customerId":"D","status":"pending","items":[{"itemCode":"X1","quantity":1,"price":10}]}`)
		f.put(t, "salesOrders/D2", `{"customerId":"D","status":"cancelled","items":[{"itemCode":"X1","quantity":1,"price":10}]}`)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "D"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNothingToDo, result.Outcome)
		assert.Equal(t, ReasonNoEligibleOrders, result.Reason)
		assert.Nil(t, result.Invoice)

		assert.Equal(t, 0, f.count(t, "salesInvoices"))
		_, ok, err := f.counters.Current(ctx, sales.CounterSalesInvoice)
		require.NoError(t, err)
		assert.False(t, ok, "no number may be reserved")
		assert.Equal(t, []string{ReasonNoEligibleOrders}, f.metrics.nothing)
	})

	t.Run("already invoiced orders are not eligible", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.put(t, "orders/A", `{"customerId":"C","status":"completed","invoiced":true,"invoiceNumber":9000,
			"items":[{"itemCode":"X1","quantity":1,"price":10}]}`)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all"})
		require.NoError(t, err)
		assert.Equal(t, ReasonNoEligibleOrders, result.Reason)
	})

	t.Run("status and date filter", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.seedScenario(t, "orders", "completed")
		from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all", From: &from})
		require.NoError(t, err)
		assert.Equal(t, ReasonNoEligibleOrders, result.Reason)

		result, err = f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "pending"})
		require.NoError(t, err)
		assert.Equal(t, ReasonNoEligibleOrders, result.Reason)
	})

	t.Run("no valid line items", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.put(t, "salesOrders/A", `{"customerId":"C","status":"ready",
			"items":[{"itemCode":"X1","quantity":0,"price":10},{"itemCode":"X2","quantity":1,"price":-1}]}`)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNothingToDo, result.Outcome)
		assert.Equal(t, ReasonNoValidLineItems, result.Reason)
		assert.Equal(t, 2, result.Skipped)
		assert.Equal(t, 0, f.count(t, "salesInvoices"))
		assert.Equal(t, false, f.doc(t, "salesOrders/A")["invoiced"])
	})
}

func TestCreateInvoice_ForeignCurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("missing rate is a precondition failure", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.put(t, "salesOrders/A", `{"customerId":"C","status":"ready","items":[{"itemCode":"X1","quantity":1,"price":10,"currency":"$"}]}`)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, shared.ErrPrecondition))

		var pe *shared.PreconditionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, []string{sales.FXRateField}, pe.Fields)

		assert.Equal(t, 0, f.count(t, "salesInvoices"))
		_, ok, err := f.counters.Current(ctx, sales.CounterSalesInvoice)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("converts with the stored rate", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.put(t, "settings/usdRate", `300`)
		f.put(t, "salesOrders/A", `{"customerId":"C","status":"ready","items":[
			{"itemCode":"X1","quantity":2,"price":10,"currency":"USD"},
			{"itemCode":"L1","quantity":1,"price":500}]}`)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.NoError(t, err)
		require.Len(t, result.Invoice.Items, 2)
		assert.True(t, result.Invoice.Items[0].UnitPrice.Equal(decimal.NewFromInt(3000)))
		assert.True(t, result.Invoice.Total.Equal(decimal.NewFromInt(6500)))
	})

	t.Run("local orders do not need the rate", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.put(t, "salesOrders/A", `{"customerId":"C","status":"ready","items":[{"itemCode":"L1","quantity":1,"price":500,"currency":"PKR"}]}`)

		result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.NoError(t, err)
		assert.True(t, result.Created())
	})
}

func TestCreateInvoice_ConcurrentNumbersAreUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LinkAtomic)
	const n = 25
	for i := 0; i < n; i++ {
		f.put(t, fmt.Sprintf("salesOrders/o%02d", i),
			fmt.Sprintf(`{"customerId":"c%02d","status":"ready","items":[{"itemCode":"X","quantity":1,"price":1}]}`, i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: fmt.Sprintf("c%02d", i)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, result.Invoice.Number)
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, n)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, got := range numbers {
		assert.Equal(t, int64(10000+i), got)
	}
	assert.Equal(t, n, f.count(t, "salesInvoices"))
}

func TestCreateInvoice_Race(t *testing.T) {
	ctx := context.Background()

	t.Run("atomic link rejects the loser and writes nothing", func(t *testing.T) {
		f := newFixture(t, LinkAtomic)
		f.seedScenario(t, "salesOrders", "ready")
		stale := &staleOrders{OrderRepository: f.orders["sales"]}
		loser := f.newService(LinkAtomic, []*Workflow{{
			Name: "sales", Orders: stale, Invoices: f.invoices["sales"], Counter: sales.CounterSalesInvoice,
			EligibleStatuses: []sales.OrderStatus{sales.OrderStatusReady},
		}})

		// the loser reads the orders first
		_, err := stale.ListByCustomer(ctx, "C")
		require.NoError(t, err)

		won, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.NoError(t, err)
		require.Equal(t, int64(10000), won.Invoice.Number)

		lost, err := loser.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.Error(t, err)
		assert.Nil(t, lost)
		assert.True(t, errors.Is(err, ErrOrdersAlreadyInvoiced))

		// the loser's number is skipped, never reused
		current, ok, err := f.counters.Current(ctx, sales.CounterSalesInvoice)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(10001), current)

		assert.Equal(t, 1, f.count(t, "salesInvoices"))
		for _, id := range []string{"A", "B"} {
			assert.Equal(t, float64(10000), f.doc(t, "salesOrders/"+id)["invoiceNumber"])
		}
		assert.Contains(t, f.metrics.failed, "already_invoiced")
	})

	t.Run("sequential link reports a partial completion", func(t *testing.T) {
		f := newFixture(t, LinkSequential)
		f.seedScenario(t, "salesOrders", "ready")
		stale := &staleOrders{OrderRepository: f.orders["sales"]}
		loser := f.newService(LinkSequential, []*Workflow{{
			Name: "sales", Orders: stale, Invoices: f.invoices["sales"], Counter: sales.CounterSalesInvoice,
			EligibleStatuses: []sales.OrderStatus{sales.OrderStatusReady},
		}})
		_, err := stale.ListByCustomer(ctx, "C")
		require.NoError(t, err)

		_, err = f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.NoError(t, err)

		lost, err := loser.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPartialCompletion))
		assert.True(t, errors.Is(err, ErrOrdersAlreadyInvoiced))

		var partial *PartialCompletionError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, int64(10001), partial.InvoiceNumber)
		assert.Equal(t, []string{"A", "B"}, partial.FailedOrderIDs)
		require.NotNil(t, lost)
		assert.Equal(t, int64(10001), lost.Invoice.Number)

		// orders keep the winner's number
		for _, id := range []string{"A", "B"} {
			assert.Equal(t, float64(10000), f.doc(t, "salesOrders/"+id)["invoiceNumber"])
		}
	})
}

func TestCreateInvoice_PartialCompletionAndRelink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LinkSequential)
	f.seedScenario(t, "orders", "completed")
	flaky := &flakyInvoices{
		InvoiceRepository: f.invoices["orders"],
		fail:              map[string]error{"B": docstore.ErrUnavailable},
	}
	svc := f.newService(LinkSequential, []*Workflow{{
		Name: "orders", Orders: f.orders["orders"], Invoices: flaky, Counter: sales.CounterInvoice,
	}})

	result, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all"})
	require.Error(t, err)
	var partial *PartialCompletionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"B"}, partial.FailedOrderIDs)
	assert.True(t, errors.Is(err, docstore.ErrUnavailable))
	require.NotNil(t, result)
	assert.Equal(t, OutcomeCreated, result.Outcome)

	// the invoice stays written
	assert.Equal(t, 1, f.count(t, "invoices"))
	assert.Equal(t, true, f.doc(t, "orders/A")["invoiced"])
	assert.Equal(t, false, f.doc(t, "orders/B")["invoiced"])

	flaky.heal()
	relinked, err := svc.RelinkOrders(ctx, "orders", partial.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, relinked.Linked)
	assert.Equal(t, float64(10000), f.doc(t, "orders/B")["invoiceNumber"])

	current, _, err := f.counters.Current(ctx, sales.CounterInvoice)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), current, "relinking must not reserve a number")
}

func TestService_UnknownWorkflow(t *testing.T) {
	f := newFixture(t, LinkAtomic)
	_, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{Workflow: "nope", CustomerID: "C"})
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	_, err = f.svc.ListInvoices(context.Background(), "nope")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	assert.Equal(t, []string{"orders", "sales"}, f.svc.Workflows())
}

func TestService_MissingCustomerID(t *testing.T) {
	f := newFixture(t, LinkAtomic)
	_, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{Workflow: "orders"})
	assert.True(t, errors.Is(err, shared.ErrPrecondition))
}

type failingCustomers struct{ err error }

func (r failingCustomers) Get(context.Context, string) (*sales.Customer, error) { return nil, r.err }

func TestCreateInvoice_CustomerReadFailureStopsBeforeReserve(t *testing.T) {
	for _, readErr := range []error{docstore.ErrPermissionDenied, docstore.ErrUnavailable} {
		t.Run(readErr.Error(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, LinkAtomic)
			f.seedScenario(t, "orders", "completed")
			svc := NewService(
				Config{Currencies: valueobject.NewCurrencyPolicy("PKR", "PKR", "USD"), DefaultDueDays: 30},
				[]*Workflow{{Name: "orders", Orders: f.orders["orders"], Invoices: f.invoices["orders"], Counter: sales.CounterInvoice}},
				failingCustomers{err: readErr},
				f.counters,
				persistence.NewDocSettingsRepository(f.store, "settings/usdRate"),
				zap.NewNop(),
			)

			result, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all"})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, readErr)

			assert.Equal(t, 0, f.count(t, "invoices"))
			_, reserved, err := f.counters.Current(ctx, sales.CounterInvoice)
			require.NoError(t, err)
			assert.False(t, reserved, "no number is handed out")
			assert.NotEqual(t, true, f.doc(t, "orders/A")["invoiced"])
		})
	}
}

func TestService_UpdatePaymentStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LinkAtomic)
	f.seedScenario(t, "salesOrders", "ready")
	_, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
	require.NoError(t, err)

	inv, err := f.svc.UpdatePaymentStatus(ctx, "sales", 10000, sales.InvoiceStatusPending)
	require.NoError(t, err)
	assert.Equal(t, sales.InvoiceStatusPending, inv.Status)

	inv, err = f.svc.UpdatePaymentStatus(ctx, "sales", 10000, sales.InvoiceStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, sales.InvoiceStatusPaid, inv.Status)

	_, err = f.svc.UpdatePaymentStatus(ctx, "sales", 10000, sales.InvoiceStatusPending)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	_, err = f.svc.UpdatePaymentStatus(ctx, "sales", 424242, sales.InvoiceStatusPaid)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestService_DeleteInvoiceReleasesOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LinkAtomic)
	f.seedScenario(t, "orders", "completed")
	_, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all"})
	require.NoError(t, err)

	detached, err := f.svc.DeleteInvoice(ctx, "orders", 10000)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, detached)
	assert.Equal(t, 0, f.count(t, "invoices"))
	assert.Equal(t, "completed", f.doc(t, "orders/A")["status"])
	_, hasNumber := f.doc(t, "orders/A")["invoiceNumber"]
	assert.False(t, hasNumber)

	// released orders are invoiced again under a fresh number
	again, err := f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "orders", CustomerID: "C", StatusFilter: "all"})
	require.NoError(t, err)
	require.True(t, again.Created())
	assert.Equal(t, int64(10001), again.Invoice.Number)

	list, err := f.svc.ListInvoices(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(10001), list[0].Number)
}

func TestService_ReserveNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LinkAtomic)

	first, err := f.svc.ReserveNumber(ctx, sales.CounterSalesOrder)
	require.NoError(t, err)
	second, err := f.svc.ReserveNumber(ctx, sales.CounterSalesOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(10004), first)
	assert.Equal(t, int64(10005), second)
	assert.Equal(t, 2, f.metrics.reserved)

	_, err = f.svc.ReserveNumber(ctx, sales.CounterNamespace("bogus"))
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestService_WatchInvoices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, LinkAtomic)
	f.seedScenario(t, "salesOrders", "ready")

	events, err := f.svc.WatchInvoices(ctx, "sales")
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(ctx, CreateInvoiceRequest{Workflow: "sales", CustomerID: "C"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, int64(10000), ev.Number)
		require.NotNil(t, ev.Invoice)
		assert.True(t, ev.Invoice.Total.Equal(decimal.NewFromInt(350)))
	case <-time.After(2 * time.Second):
		t.Fatal("no invoice event received")
	}
}
