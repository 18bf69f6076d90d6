package sales

import "time"

// StatusFilterAll disables status filtering in StatusAndDate
const StatusFilterAll = "all"

// Eligibility decides whether a single order may be invoiced. It is applied
// after the customer match and the already-invoiced exclusion.
type Eligibility func(o *Order) bool

// EligibleStates accepts orders whose status is one of states
func EligibleStates(states ...OrderStatus) Eligibility {
	set := make(map[OrderStatus]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return func(o *Order) bool {
		_, ok := set[o.Status]
		return ok
	}
}

// DateRange is an inclusive range of calendar dates. Either bound may be nil.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// IsZero reports whether no bound is set
func (r DateRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Contains reports whether t falls on a day inside the range
func (r DateRange) Contains(t time.Time) bool {
	day := dateOnly(t)
	if r.From != nil && day.Before(dateOnly(*r.From)) {
		return false
	}
	if r.To != nil && day.After(dateOnly(*r.To)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StatusAndDate accepts orders whose status equals filter (or any status when
// filter is "all" or empty) and whose order date is inside rng.
func StatusAndDate(filter string, rng DateRange) Eligibility {
	return func(o *Order) bool {
		if filter != "" && filter != StatusFilterAll && string(o.Status) != filter {
			return false
		}
		if rng.IsZero() {
			return true
		}
		return rng.Contains(o.OrderedOn)
	}
}

// FilterEligible returns the orders of customerID that may be invoiced, in
// the order they were given. Orders already linked to an invoice are never
// returned regardless of eligible.
func FilterEligible(orders []Order, customerID string, eligible Eligibility) []Order {
	out := make([]Order, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		if o.CustomerID != customerID || o.IsInvoiced() {
			continue
		}
		if eligible != nil && !eligible(o) {
			continue
		}
		out = append(out, *o)
	}
	return out
}
