package sales

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/domain/shared/valueobject"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestAggregator() *Aggregator {
	return NewAggregator(valueobject.NewCurrencyPolicy("PKR", "PKR"))
}

func TestAggregator_MergesSameCodeAndPrice(t *testing.T) {
	orders := []Order{
		{ID: "o1", Items: []LineItem{{Code: "X1", Description: "Lawn print", Quantity: 3, UnitPrice: dec("120")}}},
		{ID: "o2", Items: []LineItem{{Code: "X1", Quantity: 5, UnitPrice: dec("120.00")}}},
	}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	require.Len(t, agg.Items, 1)

	row := agg.Items[0]
	assert.Equal(t, "X1", row.Code)
	assert.Equal(t, "Lawn print", row.Description)
	assert.Equal(t, int64(8), row.Quantity)
	assert.True(t, row.Total.Equal(dec("960")))
	assert.True(t, agg.Subtotal.Equal(dec("960")))
	assert.Equal(t, 2, agg.SourceOrderCount())
}

func TestAggregator_DifferentPricesStaySeparate(t *testing.T) {
	orders := []Order{
		{ID: "o1", Items: []LineItem{
			{Code: "X1", Quantity: 1, UnitPrice: dec("100")},
			{Code: "X1", Quantity: 2, UnitPrice: dec("110")},
		}},
	}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)
	assert.True(t, agg.Items[0].UnitPrice.Equal(dec("100")))
	assert.True(t, agg.Items[1].UnitPrice.Equal(dec("110")))
}

func TestAggregator_SkipsInvalidItems(t *testing.T) {
	orders := []Order{
		{ID: "o1", Items: []LineItem{
			{Code: "X1", Quantity: 0, UnitPrice: dec("100")},
			{Code: "X1", Quantity: 2, UnitPrice: dec("-5")},
			{Code: "X1", Quantity: -1, UnitPrice: dec("100")},
			{Code: "X1", Quantity: 2, UnitPrice: dec("100")},
			{Code: "Z9", Quantity: 1, UnitPrice: dec("0")},
		}},
	}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)
	assert.Equal(t, 3, agg.Skipped)
	assert.Equal(t, int64(2), agg.Items[0].Quantity)
	assert.True(t, agg.Items[0].Total.Equal(dec("200")))
	assert.Equal(t, "Z9", agg.Items[1].Code)
	assert.True(t, agg.Items[1].Total.IsZero())
}

func TestAggregator_AllInvalidIsEmpty(t *testing.T) {
	orders := []Order{{ID: "o1", Items: []LineItem{{Code: "X1", Quantity: 0, UnitPrice: dec("1")}}}}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	assert.True(t, agg.IsEmpty())
	assert.Equal(t, []string{"o1"}, agg.SourceOrderIDs)
}

func TestAggregator_OrdersWithoutRowsAreStillSources(t *testing.T) {
	orders := []Order{
		{ID: "o1", Items: []LineItem{{Code: "X1", Quantity: 2, UnitPrice: dec("10")}}},
		{ID: "o2", Items: []LineItem{{Code: "X1", Quantity: 0, UnitPrice: dec("10")}}},
		{ID: "o3"},
	}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	require.Len(t, agg.Items, 1)
	assert.Equal(t, 1, agg.Skipped)
	assert.Equal(t, []string{"o1", "o2", "o3"}, agg.SourceOrderIDs)
}

func TestAggregator_NameIsKeyWithoutCode(t *testing.T) {
	orders := []Order{{ID: "o1", Items: []LineItem{
		{Name: "Cotton bale", Quantity: 1, UnitPrice: dec("10")},
		{Name: "Cotton bale", Description: "Raw cotton", Quantity: 4, UnitPrice: dec("10")},
	}}}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	require.Len(t, agg.Items, 1)
	assert.Equal(t, "Cotton bale", agg.Items[0].Code)
	assert.Equal(t, "Cotton bale", agg.Items[0].Description)
	assert.Equal(t, int64(5), agg.Items[0].Quantity)
}

func TestAggregator_CurrencyConversion(t *testing.T) {
	orders := []Order{{ID: "o1", Items: []LineItem{
		{Code: "F1", Quantity: 1, UnitPrice: dec("10"), Currency: "USD"},
		{Code: "F1", Quantity: 2, UnitPrice: dec("3000"), Currency: "PKR"},
		{Code: "F1", Quantity: 1, UnitPrice: dec("10"), Currency: "$"},
	}}}
	a := newTestAggregator()
	require.True(t, a.NeedsRate(orders))

	t.Run("converted prices merge with local prices", func(t *testing.T) {
		agg, err := a.Aggregate(orders, decimal.NewNullDecimal(dec("300")))
		require.NoError(t, err)
		require.Len(t, agg.Items, 1)
		assert.True(t, agg.Items[0].UnitPrice.Equal(dec("3000")))
		assert.Equal(t, int64(4), agg.Items[0].Quantity)
		assert.True(t, agg.Items[0].Total.Equal(dec("12000")))
	})

	t.Run("missing rate fails the precondition", func(t *testing.T) {
		agg, err := a.Aggregate(orders, decimal.NullDecimal{})
		assert.Nil(t, agg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrPrecondition))

		var pe *shared.PreconditionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, []string{FXRateField}, pe.Fields)
	})

	t.Run("invalid foreign items do not need a rate", func(t *testing.T) {
		only := []Order{{ID: "o2", Items: []LineItem{{Code: "F1", Quantity: 0, UnitPrice: dec("10"), Currency: "USD"}}}}
		assert.False(t, a.NeedsRate(only))
		agg, err := a.Aggregate(only, decimal.NullDecimal{})
		require.NoError(t, err)
		assert.True(t, agg.IsEmpty())
	})
}

func TestAggregator_EndToEndScenario(t *testing.T) {
	orders := []Order{
		{ID: "A", Items: []LineItem{{Code: "X1", Quantity: 2, UnitPrice: dec("100")}}},
		{ID: "B", Items: []LineItem{
			{Code: "X1", Quantity: 1, UnitPrice: dec("100")},
			{Code: "Y2", Quantity: 1, UnitPrice: dec("50")},
		}},
	}

	agg, err := newTestAggregator().Aggregate(orders, decimal.NullDecimal{})
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)
	assert.Equal(t, "X1", agg.Items[0].Code)
	assert.Equal(t, int64(3), agg.Items[0].Quantity)
	assert.True(t, agg.Items[0].Total.Equal(dec("300")))
	assert.Equal(t, "Y2", agg.Items[1].Code)
	assert.True(t, agg.Items[1].Total.Equal(dec("50")))
	assert.True(t, agg.Subtotal.Equal(dec("350")))
	assert.Equal(t, []string{"A", "B"}, agg.SourceOrderIDs)
}
