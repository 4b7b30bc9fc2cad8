package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/plant"
)

const (
	redisPingTimeout = 5 * time.Second
	redisIndexKey    = "index"
)

// RedisConfig configures the shared cache backend.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	MaxEntries int
}

// RedisStore shares cached results between service instances. Entries carry
// a native TTL; a sorted set scored by insertion time enforces the count cap.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxEntries int
	now        func() time.Time
	log        logger.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, log logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.New(fmt.Errorf("redis ping: %w", err)).
			Component("resultcache").
			Category(errors.CategoryCache).
			Context("addr", cfg.Addr).
			Build()
	}

	return NewRedisStoreWithClient(client, cfg, log), nil
}

// NewRedisStoreWithClient wraps an existing client. The store takes ownership
// and closes it on Close.
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig, log logger.Logger) *RedisStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if log == nil {
		log = logger.Global().Module("resultcache")
	}
	return &RedisStore{
		client:     client,
		prefix:     cfg.KeyPrefix,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		log:        log.With(logger.String("backend", "redis")),
	}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Get returns the live entry for key. Redis errors are logged and reported
// as a miss so the pipeline falls through to the classifier.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("cache read failed", logger.String("key", key), logger.Error(err))
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.log.Warn("discarding undecodable cache entry", logger.String("key", key), logger.Error(err))
		_ = s.Delete(ctx, key)
		return nil, false
	}
	if entry.Result == nil || entry.Expired(s.now()) {
		return nil, false
	}
	return &entry, true
}

// Set writes result with ttl and trims the oldest entries beyond the cap.
func (s *RedisStore) Set(ctx context.Context, key string, result *plant.Result, ttl time.Duration) error {
	now := s.now()
	data, err := json.Marshal(&Entry{Result: result, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	indexKey := s.key(redisIndexKey)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), data, ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(now.UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		return s.wrap(err, "set", key)
	}

	return s.trim(ctx)
}

// Delete removes key and its index entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(key))
		pipe.ZRem(ctx, s.key(redisIndexKey), key)
		return nil
	})
	if err != nil {
		return s.wrap(err, "delete", key)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) trim(ctx context.Context) error {
	indexKey := s.key(redisIndexKey)
	count, err := s.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return s.wrap(err, "count", "")
	}

	excess := count - int64(s.maxEntries)
	if excess <= 0 {
		return nil
	}

	oldest, err := s.client.ZPopMin(ctx, indexKey, excess).Result()
	if err != nil {
		return s.wrap(err, "trim", "")
	}

	keys := make([]string, 0, len(oldest))
	for _, z := range oldest {
		if member, ok := z.Member.(string); ok {
			keys = append(keys, s.key(member))
		}
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return s.wrap(err, "evict", "")
		}
	}

	s.log.Debug("evicted oldest cache entries",
		logger.Int("evicted", len(keys)),
		logger.Int("max_entries", s.maxEntries))
	return nil
}

func (s *RedisStore) wrap(err error, op, key string) error {
	b := errors.New(err).
		Component("resultcache").
		Category(errors.CategoryCache).
		Context("operation", op)
	if key != "" {
		b = b.Context("key", key)
	}
	return b.Build()
}
