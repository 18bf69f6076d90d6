// Package docstore implements the hierarchical document store the back
// office keeps its records in. Documents are JSON values addressed by
// slash-separated paths such as "invoices/10001" or "counters/invoiceCounter".
//
// Three backends share the Store contract: MemoryStore for tests and single
// process use, RedisStore, and GormStore on PostgreSQL or SQLite.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/textile/backend/internal/domain/shared"
)

// Sentinel errors. Backend failures are wrapped with ErrPermissionDenied or
// ErrUnavailable so callers can tell access problems from connectivity.
var (
	ErrNotFound         = fmt.Errorf("docstore: document %w", shared.ErrNotFound)
	ErrContention       = fmt.Errorf("docstore: transaction retries exhausted: %w", shared.ErrConcurrencyConflict)
	ErrPermissionDenied = fmt.Errorf("docstore: permission denied: %w", shared.ErrForbidden)
	ErrUnavailable      = fmt.Errorf("docstore: %w", shared.ErrUnavailable)
	ErrInvalidPath      = fmt.Errorf("docstore: invalid path: %w", shared.ErrInvalidInput)
	// ErrAbort may be returned (wrapped) from a transaction function to
	// stop without writing. The transaction returns the function's error.
	ErrAbort = errors.New("docstore: transaction aborted")
)

// Defaults for Options
const (
	DefaultMaxRetries   = 25
	DefaultRetryBackoff = 2 * time.Millisecond
	DefaultEventBuffer  = 64
)

// Document is a stored value and its path
type Document struct {
	Path  string
	Value json.RawMessage
}

// Key returns the last path segment
func (d Document) Key() string {
	return Base(d.Path)
}

// Decode unmarshals the document value into dst
func (d Document) Decode(dst any) error {
	return json.Unmarshal(d.Value, dst)
}

// Event describes a committed change. Value is nil when Deleted is set.
type Event struct {
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// TxFunc computes the new value of a document from its current value
// (nil when absent). Returning nil deletes the document.
type TxFunc func(current json.RawMessage) (json.RawMessage, error)

// MultiTxFunc computes new values for a set of documents. current holds the
// documents that exist. Only paths present in the returned map are written;
// a nil value deletes the document.
type MultiTxFunc func(current map[string]json.RawMessage) (map[string]json.RawMessage, error)

// Store is the document store contract
type Store interface {
	// Get returns the value at path or ErrNotFound
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Set replaces the value at path
	Set(ctx context.Context, path string, value json.RawMessage) error
	// Push stores value under parent with a generated, time-ordered key
	Push(ctx context.Context, parent string, value json.RawMessage) (string, error)
	// Update merges top-level fields into the object at path, creating it
	// if needed. A JSON null field value removes the field.
	Update(ctx context.Context, path string, fields map[string]json.RawMessage) error
	// Remove deletes path and everything below it
	Remove(ctx context.Context, path string) error
	// List returns the direct children of parent ordered by key
	List(ctx context.Context, parent string) ([]Document, error)
	// Transact atomically replaces the value at path with fn's result,
	// retrying on concurrent modification. fn may run more than once and
	// must not call back into the store.
	Transact(ctx context.Context, path string, fn TxFunc) (json.RawMessage, error)
	// TransactMulti is Transact over several paths at once
	TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) error
	// Subscribe streams events for path and its descendants until ctx is
	// done. Slow subscribers lose events rather than blocking writers.
	Subscribe(ctx context.Context, path string) (<-chan Event, error)
	// Close releases backend resources
	Close() error
}

// Options configure a backend
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	EventBuffer  int
}

// Option mutates Options
type Option func(*Options)

// WithMaxRetries sets how many times a transaction is attempted
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between transaction attempts
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Options) {
		o.RetryBackoff = d
	}
}

// WithEventBuffer sets the per-subscriber event buffer
func WithEventBuffer(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.EventBuffer = n
		}
	}
}

func buildOptions(opts []Option) Options {
	o := Options{
		MaxRetries:   DefaultMaxRetries,
		RetryBackoff: DefaultRetryBackoff,
		EventBuffer:  DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewKey returns a fresh time-ordered key for Push
func NewKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// GetJSON reads path into dst
func GetJSON(ctx context.Context, s Store, path string, dst any) error {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", path, err)
	}
	return nil
}

// SetJSON marshals v and stores it at path
func SetJSON(ctx context.Context, s Store, path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", path, err)
	}
	return s.Set(ctx, path, raw)
}

// push implements Store.Push on top of Set
func push(ctx context.Context, s Store, parent string, value json.RawMessage) (string, error) {
	parent, err := CleanPath(parent)
	if err != nil {
		return "", err
	}
	key := NewKey()
	if err := s.Set(ctx, Join(parent, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// update implements Store.Update on top of Transact
func update(ctx context.Context, s Store, path string, fields map[string]json.RawMessage) error {
	_, err := s.Transact(ctx, path, func(current json.RawMessage) (json.RawMessage, error) {
		return MergeFields(current, fields)
	})
	return err
}

// MergeFields applies a shallow field patch to a JSON object. A nil or null
// field value removes the field.
func MergeFields(current json.RawMessage, fields map[string]json.RawMessage) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, fmt.Errorf("docstore: update target is not an object: %w", err)
		}
	}
	for k, v := range fields {
		if len(v) == 0 || string(v) == "null" {
			delete(obj, k)
			continue
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

// cleanPaths validates and de-duplicates transaction paths
func cleanPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths", ErrInvalidPath)
	}
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		c, err := CleanPath(p)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// checkWrites rejects writes outside the declared transaction paths
func checkWrites(declared []string, writes map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	allowed := make(map[string]struct{}, len(declared))
	for _, p := range declared {
		allowed[p] = struct{}{}
	}
	out := make(map[string]json.RawMessage, len(writes))
	for p, v := range writes {
		c, err := CleanPath(p)
		if err != nil {
			return nil, err
		}
		if _, ok := allowed[c]; !ok {
			return nil, fmt.Errorf("%w: %s was not declared in the transaction", ErrInvalidPath, c)
		}
		out[c] = v
	}
	return out, nil
}

// sleepBackoff waits before the next transaction attempt
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	if base <= 0 {
		return ctx.Err()
	}
	d := jitter(base * time.Duration(attempt+1))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// validJSON rejects values that are not well-formed JSON
func validJSON(v json.RawMessage) error {
	if len(v) == 0 || !json.Valid(v) {
		return fmt.Errorf("%w: value is not valid JSON", shared.ErrInvalidInput)
	}
	return nil
}
