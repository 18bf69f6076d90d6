package docstore

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// hub fans committed events out to in-process subscribers
type hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	logger *zap.Logger
	closed bool
}

type subscriber struct {
	path string
	ch   chan Event
}

func newHub(buffer int, logger *zap.Logger) *hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hub{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// subscribe registers a subscriber that is removed when ctx is done
func (h *hub) subscribe(ctx context.Context, path string) <-chan Event {
	h.mu.Lock()
	ch := make(chan Event, h.buffer)
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{path: path, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if s, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
		h.mu.Unlock()
	}()
	return ch
}

// publish delivers ev to every related subscriber without blocking
func (h *hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !related(ev.Path, s.path) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("Dropping document event for slow subscriber",
				zap.String("path", ev.Path),
				zap.String("subscription", s.path),
			)
		}
	}
}

// count returns the number of live subscribers
func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}

// jitter spreads d over [d/2, 3d/2)
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}
