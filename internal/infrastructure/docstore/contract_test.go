package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textile/backend/internal/domain/shared"
)

// storeFactory returns a fresh, empty store
type storeFactory func(t *testing.T) Store

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func counterTx(seed int64) TxFunc {
	return func(current json.RawMessage) (json.RawMessage, error) {
		if current == nil {
			return raw(strconv.FormatInt(seed, 10)), nil
		}
		n, err := strconv.ParseInt(string(current), 10, 64)
		if err != nil {
			return nil, err
		}
		return raw(strconv.FormatInt(n+1, 10)), nil
	}
}

// runStoreContract exercises the behaviour every backend must share
func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("Get missing document", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "invoices/404")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Set and Get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "/customers/c1/", raw(`{"name":"Al Noor","phone":"042"}`)))

		got, err := s.Get(ctx, "customers/c1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Al Noor","phone":"042"}`, string(got))

		require.NoError(t, s.Set(ctx, "customers/c1", raw(`{"name":"Al Noor Textiles"}`)))
		got, err = s.Get(ctx, "customers/c1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Al Noor Textiles"}`, string(got))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Set(ctx, "a//b", raw(`1`)), ErrInvalidPath)
		assert.ErrorIs(t, s.Set(ctx, "a/*", raw(`1`)), ErrInvalidPath)
		assert.ErrorIs(t, s.Set(ctx, "", raw(`1`)), ErrInvalidPath)
		assert.Error(t, s.Set(ctx, "a/b", raw(`{not json`)))
	})

	t.Run("Push and List", func(t *testing.T) {
		s := newStore(t)
		k1, err := s.Push(ctx, "orders", raw(`{"n":1}`))
		require.NoError(t, err)
		k2, err := s.Push(ctx, "orders", raw(`{"n":2}`))
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)
		require.NoError(t, s.Set(ctx, "orders/"+k1+"/notes/x", raw(`"nested"`)))
		require.NoError(t, s.Set(ctx, "ordersArchive/z", raw(`{}`)))

		docs, err := s.List(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, k1, docs[0].Key())
		assert.Equal(t, k2, docs[1].Key())

		var body struct{ N int }
		require.NoError(t, docs[1].Decode(&body))
		assert.Equal(t, 2, body.N)

		empty, err := s.List(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Update merges fields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "orders/o1", raw(`{"status":"ready","invoiced":false,"note":"x"}`)))
		require.NoError(t, s.Update(ctx, "orders/o1", map[string]json.RawMessage{
			"invoiced": raw(`true`),
			"note":     raw(`null`),
		}))

		got, err := s.Get(ctx, "orders/o1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"ready","invoiced":true}`, string(got))

		require.NoError(t, s.Update(ctx, "orders/new", map[string]json.RawMessage{"a": raw(`1`)}))
		got, err = s.Get(ctx, "orders/new")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(got))
	})

	t.Run("Remove deletes subtree only", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "invoices/1", raw(`{}`)))
		require.NoError(t, s.Set(ctx, "invoices/1/lines/a", raw(`{}`)))
		require.NoError(t, s.Set(ctx, "invoices/10", raw(`{}`)))

		require.NoError(t, s.Remove(ctx, "invoices/1"))

		_, err := s.Get(ctx, "invoices/1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "invoices/1/lines/a")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "invoices/10")
		assert.NoError(t, err)

		assert.NoError(t, s.Remove(ctx, "invoices/missing"))
	})

	t.Run("Transact seeds and increments", func(t *testing.T) {
		s := newStore(t)
		v, err := s.Transact(ctx, "counters/invoiceCounter", counterTx(10000))
		require.NoError(t, err)
		assert.Equal(t, "10000", string(v))

		v, err = s.Transact(ctx, "counters/invoiceCounter", counterTx(10000))
		require.NoError(t, err)
		assert.Equal(t, "10001", string(v))
	})

	t.Run("Transact abort writes nothing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "orders/o1", raw(`{"invoiced":true}`)))

		_, err := s.Transact(ctx, "orders/o1", func(json.RawMessage) (json.RawMessage, error) {
			return nil, fmt.Errorf("already linked: %w", ErrAbort)
		})
		assert.ErrorIs(t, err, ErrAbort)

		got, err := s.Get(ctx, "orders/o1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"invoiced":true}`, string(got))
	})

	t.Run("Transact nil result deletes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "tmp/x", raw(`1`)))
		v, err := s.Transact(ctx, "tmp/x", func(json.RawMessage) (json.RawMessage, error) { return nil, nil })
		require.NoError(t, err)
		assert.Nil(t, v)
		_, err = s.Get(ctx, "tmp/x")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent Transact hands out distinct values", func(t *testing.T) {
		s := newStore(t)
		const workers = 16
		const seed = int64(10004)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			values = make(map[string]struct{})
			errs   []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.Transact(ctx, "counters/salesOrderCounter", counterTx(seed))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				values[string(v)] = struct{}{}
			}()
		}
		wg.Wait()

		require.Empty(t, errs)
		require.Len(t, values, workers)
		for i := int64(0); i < workers; i++ {
			_, ok := values[strconv.FormatInt(seed+i, 10)]
			assert.True(t, ok, "missing value %d", seed+i)
		}
	})

	t.Run("TransactMulti writes atomically", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "orders/a", raw(`{"invoiced":false}`)))
		require.NoError(t, s.Set(ctx, "orders/b", raw(`{"invoiced":false}`)))

		err := s.TransactMulti(ctx, []string{"invoices/1", "orders/a", "orders/b", "orders/a"},
			func(cur map[string]json.RawMessage) (map[string]json.RawMessage, error) {
				assert.Len(t, cur, 2)
				assert.NotContains(t, cur, "invoices/1")
				return map[string]json.RawMessage{
					"invoices/1": raw(`{"total":"350"}`),
					"orders/a":   raw(`{"invoiced":true}`),
					"orders/b":   raw(`{"invoiced":true}`),
				}, nil
			})
		require.NoError(t, err)

		for _, p := range []string{"orders/a", "orders/b"} {
			got, err := s.Get(ctx, p)
			require.NoError(t, err)
			assert.JSONEq(t, `{"invoiced":true}`, string(got))
		}
		_, err = s.Get(ctx, "invoices/1")
		assert.NoError(t, err)
	})

	t.Run("TransactMulti abort and undeclared writes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "orders/a", raw(`{"invoiced":false}`)))

		err := s.TransactMulti(ctx, []string{"orders/a"}, func(map[string]json.RawMessage) (map[string]json.RawMessage, error) {
			return nil, ErrAbort
		})
		assert.ErrorIs(t, err, ErrAbort)

		err = s.TransactMulti(ctx, []string{"orders/a"}, func(map[string]json.RawMessage) (map[string]json.RawMessage, error) {
			return map[string]json.RawMessage{"orders/a": raw(`{}`), "orders/b": raw(`{}`)}, nil
		})
		assert.ErrorIs(t, err, ErrInvalidPath)

		got, err := s.Get(ctx, "orders/a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"invoiced":false}`, string(got))
		_, err = s.Get(ctx, "orders/b")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.TransactMulti(ctx, nil, nil), ErrInvalidPath)
	})

	t.Run("TransactMulti deletes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "invoices/9", raw(`{}`)))
		err := s.TransactMulti(ctx, []string{"invoices/9", "invoices/8"}, func(map[string]json.RawMessage) (map[string]json.RawMessage, error) {
			return map[string]json.RawMessage{"invoices/9": nil, "invoices/8": nil}, nil
		})
		require.NoError(t, err)
		_, err = s.Get(ctx, "invoices/9")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Subscribe delivers related events", func(t *testing.T) {
		s := newStore(t)
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := s.Subscribe(subCtx, "invoices")
		require.NoError(t, err)

		require.NoError(t, s.Set(ctx, "orders/o1", raw(`{}`)))
		require.NoError(t, s.Set(ctx, "invoices/10001", raw(`{"status":"created"}`)))

		ev := waitEvent(t, ch)
		assert.Equal(t, "invoices/10001", ev.Path)
		assert.False(t, ev.Deleted)
		assert.JSONEq(t, `{"status":"created"}`, string(ev.Value))

		require.NoError(t, s.Remove(ctx, "invoices/10001"))
		ev = waitEvent(t, ch)
		assert.Equal(t, "invoices/10001", ev.Path)
		assert.True(t, ev.Deleted)
	})
}
