package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	Channel   string
}

const (
	defaultRedisKeyPrefix = "docs:"
	defaultRedisChannel   = "docs:events"
	redisScanCount        = 200
)

// RedisStore keeps each document in a string key. Transactions use
// WATCH/MULTI and changes are announced on a pub/sub channel.
type RedisStore struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
	channel    string
	opts       Options
	logger     *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg RedisConfig, logger *zap.Logger, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, wrapBackend("connect", err, isRedisPermission)
	}

	s := NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.Channel, logger, opts...)
	s.ownsClient = true
	return s, nil
}

// NewRedisStoreWithClient creates a store on an existing client
func NewRedisStoreWithClient(client *redis.Client, keyPrefix, channel string, logger *zap.Logger, opts ...Option) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	if channel == "" {
		channel = defaultRedisChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:  client,
		prefix:  keyPrefix,
		channel: channel,
		opts:    buildOptions(opts),
		logger:  logger,
	}
}

func (s *RedisStore) key(path string) string {
	return s.prefix + path
}

func (s *RedisStore) pathOf(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

// Get returns the value at path
func (s *RedisStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	b, err := s.client.Get(ctx, s.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapBackend("get "+path, err, isRedisPermission)
	}
	return json.RawMessage(b), nil
}

// Set replaces the value at path
func (s *RedisStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	if err := validJSON(value); err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Path: path, Value: value})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(path), []byte(value), 0)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	return wrapBackend("set "+path, err, isRedisPermission)
}

// Push stores value under parent with a generated key
func (s *RedisStore) Push(ctx context.Context, parent string, value json.RawMessage) (string, error) {
	return push(ctx, s, parent, value)
}

// Update merges fields into the object at path
func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	return update(ctx, s, path, fields)
}

// Remove deletes path and its descendants
func (s *RedisStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	keys, err := s.scan(ctx, s.key(path)+Separator+"*")
	if err != nil {
		return wrapBackend("remove "+path, err, isRedisPermission)
	}
	keys = append(keys, s.key(path))

	payload, err := json.Marshal(Event{Path: path, Deleted: true})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	return wrapBackend("remove "+path, err, isRedisPermission)
}

// List returns the direct children of parent
func (s *RedisStore) List(ctx context.Context, parent string) ([]Document, error) {
	parent, err := CleanPath(parent)
	if err != nil {
		return nil, err
	}
	keys, err := s.scan(ctx, s.key(parent)+Separator+"*")
	if err != nil {
		return nil, wrapBackend("list "+parent, err, isRedisPermission)
	}

	direct := keys[:0]
	for _, k := range keys {
		if Parent(s.pathOf(k)) == parent {
			direct = append(direct, k)
		}
	}
	if len(direct) == 0 {
		return []Document{}, nil
	}
	sort.Strings(direct)

	values, err := s.client.MGet(ctx, direct...).Result()
	if err != nil {
		return nil, wrapBackend("list "+parent, err, isRedisPermission)
	}
	out := make([]Document, 0, len(direct))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// removed between SCAN and MGET
			continue
		}
		out = append(out, Document{Path: s.pathOf(direct[i]), Value: json.RawMessage(str)})
	}
	return out, nil
}

func (s *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Transact runs fn inside WATCH/MULTI, retrying when the key changes
func (s *RedisStore) Transact(ctx context.Context, path string, fn TxFunc) (json.RawMessage, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	err = s.TransactMulti(ctx, []string{path}, func(current map[string]json.RawMessage) (map[string]json.RawMessage, error) {
		next, err := fn(current[path])
		if err != nil {
			return nil, err
		}
		result = next
		return map[string]json.RawMessage{path: next}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransactMulti watches every path and commits all writes in one MULTI
func (s *RedisStore) TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) error {
	paths, err := cleanPaths(paths)
	if err != nil {
		return err
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = s.key(p)
	}

	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			values, err := tx.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			current := make(map[string]json.RawMessage, len(paths))
			for i, v := range values {
				if str, ok := v.(string); ok {
					current[paths[i]] = json.RawMessage(str)
				}
			}

			writes, err := fn(current)
			if err == nil {
				writes, err = checkWrites(paths, writes)
			}
			if err != nil {
				fnErr = err
				return err
			}

			events := make([][]byte, 0, len(writes))
			for _, p := range paths {
				v, ok := writes[p]
				if !ok {
					continue
				}
				ev := Event{Path: p, Value: v, Deleted: v == nil}
				if v != nil {
					if err := validJSON(v); err != nil {
						fnErr = err
						return err
					}
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					fnErr = err
					return err
				}
				events = append(events, payload)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, p := range paths {
					v, ok := writes[p]
					if !ok {
						continue
					}
					if v == nil {
						pipe.Del(ctx, s.key(p))
					} else {
						pipe.Set(ctx, s.key(p), []byte(v), 0)
					}
				}
				for _, payload := range events {
					pipe.Publish(ctx, s.channel, payload)
				}
				return nil
			})
			return err
		}, keys...)

		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug("Redis transaction conflict, retrying",
				zap.Strings("paths", paths),
				zap.Int("attempt", attempt+1))
			if err := sleepBackoff(ctx, s.opts.RetryBackoff, attempt); err != nil {
				return err
			}
		default:
			return wrapBackend("transact", err, isRedisPermission)
		}
	}
	return fmt.Errorf("%w: %s", ErrContention, strings.Join(paths, ", "))
}

// Subscribe listens on the change channel and forwards related events
func (s *RedisStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, wrapBackend("subscribe", err, isRedisPermission)
	}

	out := make(chan Event, s.opts.EventBuffer)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					s.logger.Warn("Document event channel closed", zap.String("channel", s.channel))
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Error("Failed to unmarshal document event",
						zap.String("payload", msg.Payload),
						zap.Error(err))
					continue
				}
				if !related(ev.Path, path) {
					continue
				}
				select {
				case out <- ev:
				default:
					s.logger.Warn("Dropping document event for slow subscriber",
						zap.String("path", ev.Path),
						zap.String("subscription", path))
				}
			}
		}
	}()
	return out, nil
}

// Close closes the client if the store created it
func (s *RedisStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

func isRedisPermission(err error) bool {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return false
	}
	return hasAnyPrefix(rerr, "NOPERM", "NOAUTH", "WRONGPASS")
}

var _ Store = (*RedisStore)(nil)
