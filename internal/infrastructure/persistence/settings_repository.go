package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/infrastructure/docstore"
)

// DocSettingsRepository reads business settings from fixed paths
type DocSettingsRepository struct {
	store      docstore.Store
	fxRatePath string
}

// NewDocSettingsRepository creates a settings repository
func NewDocSettingsRepository(store docstore.Store, fxRatePath string) *DocSettingsRepository {
	return &DocSettingsRepository{store: store, fxRatePath: fxRatePath}
}

// FXRate returns the USD rate. An absent, empty or non-positive value is
// reported as invalid, never as 1.
func (r *DocSettingsRepository) FXRate(ctx context.Context) (decimal.NullDecimal, error) {
	raw, err := r.store.Get(ctx, r.fxRatePath)
	if errors.Is(err, docstore.ErrNotFound) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	var rate decimal.NullDecimal
	if err := json.Unmarshal(raw, &rate); err != nil {
		var wrapped struct {
			Rate decimal.NullDecimal `json:"rate"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return decimal.NullDecimal{}, fmt.Errorf("exchange rate at %s: %w", r.fxRatePath, err)
		}
		rate = wrapped.Rate
	}
	if !rate.Valid || !rate.Decimal.IsPositive() {
		return decimal.NullDecimal{}, nil
	}
	return rate, nil
}

// SetFXRate stores the USD rate
func (r *DocSettingsRepository) SetFXRate(ctx context.Context, rate decimal.Decimal) error {
	return docstore.SetJSON(ctx, r.store, r.fxRatePath, rate)
}

var _ sales.SettingsRepository = (*DocSettingsRepository)(nil)
