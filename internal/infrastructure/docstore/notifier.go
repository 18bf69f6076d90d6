package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel used by GormStore
const DefaultNotifyChannel = "docstore_events"

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
	notifyFetchTimeout   = 5 * time.Second
)

// PGNotifier carries document change notifications between processes that
// share one PostgreSQL database. Notifications only carry the path; the
// receiver reads the current value.
type PGNotifier struct {
	listener *pq.Listener
	channel  string
	logger   *zap.Logger
	done     chan struct{}
	once     sync.Once
}

// NewPGNotifier opens a dedicated listener connection on dsn
func NewPGNotifier(dsn, channel string, logger *zap.Logger) (*PGNotifier, error) {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	listener := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("Document listener connection event",
					zap.Int("event", int(ev)),
					zap.Error(err))
			}
		})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, wrapBackend("listen "+channel, err, isSQLPermission)
	}

	return &PGNotifier{
		listener: listener,
		channel:  channel,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

func (n *PGNotifier) notify(ctx context.Context, db *gorm.DB, ev Event) error {
	payload, err := json.Marshal(Event{Path: ev.Path, Deleted: ev.Deleted})
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", n.channel, string(payload)).Error
}

// start delivers notifications into h, reading values through s
func (n *PGNotifier) start(h *hub, s Store) {
	go func() {
		for {
			select {
			case <-n.done:
				return
			case msg, ok := <-n.listener.Notify:
				if !ok {
					return
				}
				if msg == nil {
					// connection re-established; notifications may have been missed
					n.logger.Info("Document listener reconnected", zap.String("channel", n.channel))
					continue
				}
				n.deliver(h, s, msg.Extra)
			case <-time.After(listenerPingInterval):
				go func() {
					if err := n.listener.Ping(); err != nil {
						n.logger.Warn("Document listener ping failed", zap.Error(err))
					}
				}()
			}
		}
	}()
}

func (n *PGNotifier) deliver(h *hub, s Store, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		n.logger.Error("Failed to unmarshal document notification",
			zap.String("payload", payload),
			zap.Error(err))
		return
	}
	if !ev.Deleted {
		ctx, cancel := context.WithTimeout(context.Background(), notifyFetchTimeout)
		value, err := s.Get(ctx, ev.Path)
		cancel()
		switch {
		case errors.Is(err, ErrNotFound):
			ev.Deleted = true
		case err != nil:
			n.logger.Warn("Failed to read notified document",
				zap.String("path", ev.Path),
				zap.Error(err))
			return
		default:
			ev.Value = value
		}
	}
	h.publish(ev)
}

// Close stops delivery and closes the listener connection
func (n *PGNotifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.listener.Close()
	})
	return err
}
