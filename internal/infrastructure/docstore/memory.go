package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore keeps documents in process memory. Transactions run under a
// single lock so they never contend.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
	hub  *hub
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		docs: make(map[string]json.RawMessage),
		hub:  newHub(o.EventBuffer, logger),
	}
}

// Get returns the value at path
func (s *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set replaces the value at path
func (s *MemoryStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	if err := validJSON(value); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[path] = clone(value)
	s.mu.Unlock()
	s.hub.publish(Event{Path: path, Value: clone(value)})
	return nil
}

// Push stores value under parent with a generated key
func (s *MemoryStore) Push(ctx context.Context, parent string, value json.RawMessage) (string, error) {
	return push(ctx, s, parent, value)
}

// Update merges fields into the object at path
func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	return update(ctx, s, path, fields)
}

// Remove deletes path and its descendants
func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for p := range s.docs {
		if IsUnder(p, path) {
			delete(s.docs, p)
		}
	}
	s.mu.Unlock()
	s.hub.publish(Event{Path: path, Deleted: true})
	return nil
}

// List returns the direct children of parent
func (s *MemoryStore) List(ctx context.Context, parent string) ([]Document, error) {
	parent, err := CleanPath(parent)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Document, 0)
	for p, v := range s.docs {
		if Parent(p) == parent {
			out = append(out, Document{Path: p, Value: clone(v)})
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Transact applies fn to the value at path under the store lock
func (s *MemoryStore) Transact(ctx context.Context, path string, fn TxFunc) (json.RawMessage, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	cur, exists := s.docs[path]
	next, err := fn(clone(cur))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := validJSON(next); next != nil && err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if next == nil {
		delete(s.docs, path)
	} else {
		s.docs[path] = clone(next)
	}
	s.mu.Unlock()

	if next == nil {
		if exists {
			s.hub.publish(Event{Path: path, Deleted: true})
		}
		return nil, nil
	}
	s.hub.publish(Event{Path: path, Value: clone(next)})
	return next, nil
}

// TransactMulti applies fn to several documents under the store lock
func (s *MemoryStore) TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) error {
	paths, err := cleanPaths(paths)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	current := make(map[string]json.RawMessage, len(paths))
	for _, p := range paths {
		if v, ok := s.docs[p]; ok {
			current[p] = clone(v)
		}
	}
	writes, err := fn(current)
	if err == nil {
		writes, err = checkWrites(paths, writes)
	}
	if err == nil {
		for _, v := range writes {
			if v == nil {
				continue
			}
			if err = validJSON(v); err != nil {
				break
			}
		}
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	events := make([]Event, 0, len(writes))
	for _, p := range paths {
		v, ok := writes[p]
		if !ok {
			continue
		}
		if v == nil {
			if _, existed := s.docs[p]; existed {
				delete(s.docs, p)
				events = append(events, Event{Path: p, Deleted: true})
			}
			continue
		}
		s.docs[p] = clone(v)
		events = append(events, Event{Path: p, Value: clone(v)})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.hub.publish(ev)
	}
	return nil
}

// Subscribe streams changes at or below path
func (s *MemoryStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, path), nil
}

// Close drops all subscribers
func (s *MemoryStore) Close() error {
	s.hub.close()
	return nil
}

func clone(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

var _ Store = (*MemoryStore)(nil)
