// Package resultcache stores completed identification results keyed by the
// normalized image fingerprint, so repeated submissions of the same photo do
// not hit the upstream classifier.
package resultcache

import (
	"context"
	"time"

	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/plant"
)

const (
	identifyKeyPrefix = "identify_"
	scanKeyPrefix     = "scan_"

	DefaultMaxEntries = 1000
)

// Entry is a cached result and its absolute expiry.
type Entry struct {
	Result    *plant.Result `json:"result"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store is implemented by the cache backends. Get never returns an expired
// entry and always returns a copy the caller may keep.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, result *plant.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// IdentifyKey is the cache key for a normalized image fingerprint.
func IdentifyKey(fingerprint string) string {
	return identifyKeyPrefix + fingerprint
}

// ScanKey is the cache key for a persisted scan read back by id.
func ScanKey(scanID string) string {
	return scanKeyPrefix + scanID
}

// New builds the backend selected in settings.
func New(ctx context.Context, settings *conf.CacheSettings, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Global().Module("resultcache")
	}

	switch settings.Backend {
	case conf.CacheBackendMemory, "":
		return NewMemoryStore(MemoryConfig{
			MaxEntries:      settings.MaxEntries,
			CleanupInterval: settings.CleanupInterval,
		}, log), nil
	case conf.CacheBackendRedis:
		store, err := NewRedisStore(ctx, RedisConfig{
			Addr:       settings.Redis.Addr,
			Password:   settings.Redis.Password,
			DB:         settings.Redis.DB,
			KeyPrefix:  settings.Redis.KeyPrefix,
			MaxEntries: settings.MaxEntries,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.Newf("unknown cache backend %q", settings.Backend).
			Component("resultcache").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
