package sales

// CounterNamespace identifies a shared sequence
type CounterNamespace string

const (
	CounterInvoice      CounterNamespace = "invoiceCounter"
	CounterSalesInvoice CounterNamespace = "salesInvoiceCounter"
	CounterSalesOrder   CounterNamespace = "salesOrderCounter"
	CounterOrderNumber  CounterNamespace = "orderNumberCounter"
)

// String returns the string representation of CounterNamespace
func (n CounterNamespace) String() string {
	return string(n)
}

// CounterSeeds holds the first value handed out by each namespace
type CounterSeeds map[CounterNamespace]int64

// DefaultCounterSeeds returns the seeds in use by the existing data
func DefaultCounterSeeds() CounterSeeds {
	return CounterSeeds{
		CounterInvoice:      10000,
		CounterSalesInvoice: 10000,
		CounterSalesOrder:   10004,
		CounterOrderNumber:  10004,
	}
}

// Seed returns the seed for ns
func (s CounterSeeds) Seed(ns CounterNamespace) (int64, bool) {
	v, ok := s[ns]
	return v, ok
}

// NextCounterValue returns the value a reservation yields: the seed when the
// counter was never initialised, otherwise current+1.
func NextCounterValue(current *int64, seed int64) int64 {
	if current == nil {
		return seed
	}
	return *current + 1
}
