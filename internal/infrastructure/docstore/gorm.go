package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentModel is the GORM model for a stored document. Version increments
// on every write and guards conditional updates.
type DocumentModel struct {
	Path      string    `gorm:"type:varchar(512);primaryKey"`
	Parent    string    `gorm:"type:varchar(512);not null;index:idx_documents_parent"`
	Body      string    `gorm:"type:text;not null"`
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

// errConflict signals a lost optimistic write inside one attempt
var errConflict = errors.New("docstore: concurrent modification")

// GormStore keeps documents in a SQL table. It runs on PostgreSQL and SQLite.
// Writes are compare-and-swap on the version column.
type GormStore struct {
	db       *gorm.DB
	opts     Options
	logger   *zap.Logger
	hub      *hub
	notifier *PGNotifier
}

// NewGormStore creates a store on db. The documents table must exist; see
// AutoMigrate and the SQL migrations.
func NewGormStore(db *gorm.DB, logger *zap.Logger, opts ...Option) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions(opts)
	return &GormStore{
		db:     db,
		opts:   o,
		logger: logger,
		hub:    newHub(o.EventBuffer, logger),
	}
}

// AutoMigrate creates the documents table. Used for SQLite and tests.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&DocumentModel{})
}

// Get returns the value at path
func (s *GormStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	var m DocumentModel
	err = s.db.WithContext(ctx).Where("path = ?", path).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapBackend("get "+path, err, isSQLPermission)
	}
	return json.RawMessage(m.Body), nil
}

// Set replaces the value at path
func (s *GormStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	if err := validJSON(value); err != nil {
		return err
	}
	_, err := s.Transact(ctx, path, func(json.RawMessage) (json.RawMessage, error) {
		return value, nil
	})
	return err
}

// Push stores value under parent with a generated key
func (s *GormStore) Push(ctx context.Context, parent string, value json.RawMessage) (string, error) {
	return push(ctx, s, parent, value)
}

// Update merges fields into the object at path
func (s *GormStore) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	return update(ctx, s, path, fields)
}

// Remove deletes path and its descendants
func (s *GormStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Where("path = ? OR path LIKE ? ESCAPE '\\'", path, escapeLike(path)+Separator+"%").
		Delete(&DocumentModel{}).Error
	if err != nil {
		return wrapBackend("remove "+path, err, isSQLPermission)
	}
	s.announce(ctx, Event{Path: path, Deleted: true})
	return nil
}

// List returns the direct children of parent
func (s *GormStore) List(ctx context.Context, parent string) ([]Document, error) {
	parent, err := CleanPath(parent)
	if err != nil {
		return nil, err
	}
	var models []DocumentModel
	err = s.db.WithContext(ctx).Where("parent = ?", parent).Order("path").Find(&models).Error
	if err != nil {
		return nil, wrapBackend("list "+parent, err, isSQLPermission)
	}
	out := make([]Document, 0, len(models))
	for _, m := range models {
		out = append(out, Document{Path: m.Path, Value: json.RawMessage(m.Body)})
	}
	return out, nil
}

// Transact runs an optimistic read-modify-write on one document
func (s *GormStore) Transact(ctx context.Context, path string, fn TxFunc) (json.RawMessage, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		var m DocumentModel
		err := db.Where("path = ?", path).Take(&m).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, wrapBackend("transact "+path, err, isSQLPermission)
		}

		var current json.RawMessage
		if exists {
			current = json.RawMessage(m.Body)
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next != nil {
			if err := validJSON(next); err != nil {
				return nil, err
			}
		}

		ev, err := writeVersioned(db, path, exists, m.Version, next)
		if err == nil {
			if ev != nil {
				s.announce(ctx, *ev)
			}
			return next, nil
		}
		if !errors.Is(err, errConflict) {
			return nil, wrapBackend("transact "+path, err, isSQLPermission)
		}

		s.logger.Debug("Document version conflict, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1))
		if err := sleepBackoff(ctx, s.opts.RetryBackoff, attempt); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrContention, path)
}

// TransactMulti runs fn and all its writes in one SQL transaction. Every
// write is conditional on the version read, so the transaction rolls back
// and retries if another writer committed in between. Paths that fn does not
// write are not re-checked.
func (s *GormStore) TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) error {
	paths, err := cleanPaths(paths)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		var (
			events []Event
			fnErr  error
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var models []DocumentModel
			if err := tx.Where("path IN ?", paths).Find(&models).Error; err != nil {
				return err
			}
			versions := make(map[string]int64, len(models))
			current := make(map[string]json.RawMessage, len(models))
			for _, m := range models {
				versions[m.Path] = m.Version
				current[m.Path] = json.RawMessage(m.Body)
			}

			writes, err := fn(current)
			if err == nil {
				writes, err = checkWrites(paths, writes)
			}
			if err != nil {
				fnErr = err
				return err
			}

			events = events[:0]
			for _, p := range paths {
				v, ok := writes[p]
				if !ok {
					continue
				}
				if v != nil {
					if err := validJSON(v); err != nil {
						fnErr = err
						return err
					}
				}
				version, exists := versions[p]
				ev, err := writeVersioned(tx, p, exists, version, v)
				if err != nil {
					return err
				}
				if ev != nil {
					events = append(events, *ev)
				}
			}
			return nil
		})

		switch {
		case err == nil:
			for _, ev := range events {
				s.announce(ctx, ev)
			}
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, errConflict):
			s.logger.Debug("Multi-document version conflict, retrying",
				zap.Strings("paths", paths),
				zap.Int("attempt", attempt+1))
			if err := sleepBackoff(ctx, s.opts.RetryBackoff, attempt); err != nil {
				return err
			}
		default:
			return wrapBackend("transact", err, isSQLPermission)
		}
	}
	return fmt.Errorf("%w: %s", ErrContention, strings.Join(paths, ", "))
}

// writeVersioned applies one conditional write. It returns errConflict when
// the row changed since it was read at version.
func writeVersioned(db *gorm.DB, path string, exists bool, version int64, next json.RawMessage) (*Event, error) {
	now := time.Now().UTC()
	switch {
	case next == nil && !exists:
		return nil, nil

	case next == nil:
		res := db.Where("path = ? AND version = ?", path, version).Delete(&DocumentModel{})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			return nil, errConflict
		}
		return &Event{Path: path, Deleted: true}, nil

	case !exists:
		m := DocumentModel{Path: path, Parent: Parent(path), Body: string(next), Version: 1, UpdatedAt: now}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			return nil, errConflict
		}

	default:
		res := db.Model(&DocumentModel{}).
			Where("path = ? AND version = ?", path, version).
			Updates(map[string]any{
				"body":       string(next),
				"version":    version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			return nil, errConflict
		}
	}
	return &Event{Path: path, Value: next}, nil
}

// Subscribe streams changes at or below path. With a PGNotifier attached,
// changes made by other processes are delivered too.
func (s *GormStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, path), nil
}

// AttachNotifier routes change notifications through PostgreSQL
// LISTEN/NOTIFY so that every process sharing the database sees them.
func (s *GormStore) AttachNotifier(n *PGNotifier) {
	s.notifier = n
	n.start(s.hub, s)
}

// announce publishes a committed change locally, or through the notifier
// when one is attached (the notifier then delivers it back to this process).
func (s *GormStore) announce(ctx context.Context, ev Event) {
	if s.notifier == nil {
		s.hub.publish(ev)
		return
	}
	if err := s.notifier.notify(ctx, s.db, ev); err != nil {
		s.logger.Warn("Failed to send document notification, delivering locally",
			zap.String("path", ev.Path),
			zap.Error(err))
		s.hub.publish(ev)
	}
}

// Close stops the notifier and drops subscribers. The database handle is
// owned by the caller.
func (s *GormStore) Close() error {
	var err error
	if s.notifier != nil {
		err = s.notifier.Close()
	}
	s.hub.close()
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SQLSTATE codes treated as access problems: insufficient_privilege,
// invalid_authorization_specification and invalid_password.
var permissionStates = map[string]struct{}{
	"42501": {},
	"28000": {},
	"28P01": {},
}

func isSQLPermission(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := permissionStates[pgErr.Code]
		return ok
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := permissionStates[string(pqErr.Code)]
		return ok
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "readonly database") || strings.Contains(msg, "permission denied")
}

var _ Store = (*GormStore)(nil)
