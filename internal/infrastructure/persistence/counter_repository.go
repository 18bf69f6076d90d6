package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/infrastructure/docstore"
)

// DocCounterRepository keeps each counter namespace in its own document and
// advances it with an atomic store transaction.
type DocCounterRepository struct {
	store docstore.Store
	root  string
	seeds sales.CounterSeeds
}

// NewDocCounterRepository creates a counter repository. Counters live at
// root/<namespace>, or at the top level when root is empty.
func NewDocCounterRepository(store docstore.Store, root string, seeds sales.CounterSeeds) *DocCounterRepository {
	return &DocCounterRepository{store: store, root: root, seeds: seeds}
}

func (r *DocCounterRepository) path(ns sales.CounterNamespace) string {
	return docstore.Join(r.root, ns.String())
}

// Reserve advances ns and returns the new value. The first reservation
// returns the namespace seed.
func (r *DocCounterRepository) Reserve(ctx context.Context, ns sales.CounterNamespace) (int64, error) {
	seed, ok := r.seeds.Seed(ns)
	if !ok {
		return 0, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown counter namespace %q", ns))
	}

	var reserved int64
	_, err := r.store.Transact(ctx, r.path(ns), func(current json.RawMessage) (json.RawMessage, error) {
		var prev *int64
		if current != nil {
			v, err := parseCounter(current)
			if err != nil {
				return nil, err
			}
			prev = &v
		}
		reserved = sales.NextCounterValue(prev, seed)
		return json.RawMessage(strconv.FormatInt(reserved, 10)), nil
	})
	if err != nil {
		return 0, fmt.Errorf("reserve %s: %w", ns, err)
	}
	return reserved, nil
}

// Current returns the last reserved value of ns
func (r *DocCounterRepository) Current(ctx context.Context, ns sales.CounterNamespace) (int64, bool, error) {
	raw, err := r.store.Get(ctx, r.path(ns))
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := parseCounter(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func parseCounter(raw json.RawMessage) (int64, error) {
	var v FlexInt
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("counter value %s: %w", string(raw), err)
	}
	return int64(v), nil
}

var _ sales.CounterRepository = (*DocCounterRepository)(nil)
