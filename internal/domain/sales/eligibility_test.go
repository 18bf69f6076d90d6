package sales

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func orderIDs(orders []Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestFilterEligible_EligibleStates(t *testing.T) {
	orders := []Order{
		{ID: "o1", CustomerID: "c1", Status: OrderStatusConfirmed},
		{ID: "o2", CustomerID: "c1", Status: OrderStatusPending},
		{ID: "o3", CustomerID: "c2", Status: OrderStatusReady},
		{ID: "o4", CustomerID: "c1", Status: OrderStatusReady},
		{ID: "o5", CustomerID: "c1", Status: OrderStatusReady, Invoiced: true, InvoiceNumber: 10001},
		{ID: "o6", CustomerID: "c1", Status: OrderStatusInvoiced},
	}

	got := FilterEligible(orders, "c1", EligibleStates(OrderStatusConfirmed, OrderStatusReady))
	assert.Equal(t, []string{"o1", "o4"}, orderIDs(got))
}

func TestFilterEligible_StatusAndDate(t *testing.T) {
	orders := []Order{
		{ID: "a", CustomerID: "c1", Status: OrderStatusPending, OrderedOn: day("2024-03-01")},
		{ID: "b", CustomerID: "c1", Status: OrderStatusCompleted, OrderedOn: day("2024-03-15").Add(23 * time.Hour)},
		{ID: "c", CustomerID: "c1", Status: OrderStatusPending, OrderedOn: day("2024-04-01")},
		{ID: "d", CustomerID: "c9", Status: OrderStatusPending, OrderedOn: day("2024-03-10")},
		{ID: "e", CustomerID: "c1", Status: OrderStatusPending, OrderedOn: day("2024-03-10"), InvoiceNumber: 10002},
	}

	tests := []struct {
		name   string
		filter string
		rng    DateRange
		want   []string
	}{
		{"all statuses no range", StatusFilterAll, DateRange{}, []string{"a", "b", "c"}},
		{"empty filter means all", "", DateRange{}, []string{"a", "b", "c"}},
		{"exact status", "pending", DateRange{}, []string{"a", "c"}},
		{"inclusive range bounds", StatusFilterAll, DateRange{From: ptr(day("2024-03-01")), To: ptr(day("2024-03-15"))}, []string{"a", "b"}},
		{"open ended from", StatusFilterAll, DateRange{From: ptr(day("2024-03-02"))}, []string{"b", "c"}},
		{"open ended to", "pending", DateRange{To: ptr(day("2024-03-31"))}, []string{"a"}},
		{"no match", "ready", DateRange{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterEligible(orders, "c1", StatusAndDate(tt.filter, tt.rng))
			assert.Equal(t, tt.want, orderIDs(got))
		})
	}
}

func TestFilterEligible_PreservesOrderAndNilPredicate(t *testing.T) {
	orders := []Order{
		{ID: "z", CustomerID: "c1"},
		{ID: "a", CustomerID: "c1"},
		{ID: "m", CustomerID: "c1"},
	}
	assert.Equal(t, []string{"z", "a", "m"}, orderIDs(FilterEligible(orders, "c1", nil)))
	assert.Empty(t, FilterEligible(nil, "c1", nil))
}

func TestDateRange_Contains(t *testing.T) {
	rng := DateRange{From: ptr(day("2024-01-10")), To: ptr(day("2024-01-10"))}
	assert.True(t, rng.Contains(day("2024-01-10")))
	assert.True(t, rng.Contains(day("2024-01-10").Add(18*time.Hour)))
	assert.False(t, rng.Contains(day("2024-01-11")))
	assert.False(t, rng.Contains(day("2024-01-09").Add(23*time.Hour)))
	assert.True(t, DateRange{}.IsZero())
}
