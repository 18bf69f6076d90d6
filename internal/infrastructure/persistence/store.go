package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/textile/backend/internal/infrastructure/config"
	"github.com/textile/backend/internal/infrastructure/docstore"
)

// StoreHandle is an open document store and the connections behind it
type StoreHandle struct {
	Store docstore.Store
	// Database is set for the SQL drivers
	Database *Database
	// Checks probe the backing connections, keyed by name
	Checks map[string]func(ctx context.Context) error

	closers []func() error
}

// OpenStore connects the document store selected by cfg.Store.Driver. The
// gorm logger is only used by the SQL drivers and may be nil.
func OpenStore(ctx context.Context, cfg *config.Config, gormLog gormlogger.Interface, log *zap.Logger) (*StoreHandle, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []docstore.Option{
		docstore.WithMaxRetries(cfg.Store.MaxRetries),
		docstore.WithRetryBackoff(cfg.Store.RetryBackoff),
	}
	storeLog := log.Named("docstore")
	h := &StoreHandle{Checks: map[string]func(ctx context.Context) error{}}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		store := docstore.NewMemoryStore(storeLog, opts...)
		h.Store = store
		h.closers = append(h.closers, store.Close)

	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := docstore.NewRedisStoreWithClient(client, cfg.Store.KeyPrefix, cfg.Store.Channel, storeLog, opts...)
		h.Store = store
		h.closers = append(h.closers, client.Close, store.Close)
		h.Checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}

	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		db, err := NewDatabase(cfg.Store.Driver, &cfg.Database, cfg.Store.SQLitePath, gormLog)
		if err != nil {
			return nil, err
		}
		h.Database = db
		h.closers = append(h.closers, db.Close)
		h.Checks["database"] = func(context.Context) error {
			return db.Ping()
		}

		store := docstore.NewGormStore(db.DB, storeLog, opts...)
		if cfg.Store.Driver == config.StoreDriverSQLite {
			// SQLite is not covered by the migrations
			if err := store.AutoMigrate(); err != nil {
				_ = h.Close()
				return nil, fmt.Errorf("failed to create documents table: %w", err)
			}
		} else {
			notifier, err := docstore.NewPGNotifier(cfg.Database.DSN(), cfg.Store.NotifyChannel, storeLog)
			if err != nil {
				_ = h.Close()
				return nil, fmt.Errorf("failed to listen for document changes: %w", err)
			}
			store.AttachNotifier(notifier)
		}
		h.Store = store
		h.closers = append(h.closers, store.Close)

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	log.Info("Document store opened", zap.String("driver", cfg.Store.Driver))
	return h, nil
}

// Close releases the store, then its connections
func (h *StoreHandle) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}
