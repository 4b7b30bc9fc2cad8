package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// Backend identifiers accepted in configuration.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	StorageBackendMinio = "minio"
	StorageBackendS3    = "s3"
)

// ValidateSettings checks the loaded settings and reports every problem at once.
func ValidateSettings(settings *Settings) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, ok := logger.ParseLevel(settings.Logging.DefaultLevel); !ok {
		add("logging.default_level %q is not a valid level", settings.Logging.DefaultLevel)
	}

	n := settings.Normalizer
	if n.MaxDimension < 16 {
		add("normalizer.max_dimension must be at least 16, got %d", n.MaxDimension)
	}
	if n.Quality < 1 || n.Quality > 100 {
		add("normalizer.quality must be between 1 and 100, got %d", n.Quality)
	}
	if n.MaxInputBytes <= 0 {
		add("normalizer.max_input_bytes must be positive")
	}

	c := settings.Classifier
	if c.Endpoint == "" {
		add("classifier.endpoint is required")
	}
	if c.MaxAttempts < 1 {
		add("classifier.max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		add("classifier delays must not be negative")
	}
	if c.RateLimit < 0 {
		add("classifier.rate_limit must not be negative")
	}

	if t := settings.Gate.Threshold; t < 0 || t > 1 {
		add("gate.threshold must be between 0.0 and 1.0, got %g", t)
	}

	switch settings.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		add("cache.backend must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, settings.Cache.Backend)
	}
	if settings.Cache.TTL <= 0 || settings.Cache.LowConfidenceTTL <= 0 {
		add("cache ttl values must be positive")
	}
	if settings.Cache.LowConfidenceTTL > settings.Cache.TTL {
		add("cache.low_confidence_ttl (%s) must not exceed cache.ttl (%s)", settings.Cache.LowConfidenceTTL, settings.Cache.TTL)
	}
	if settings.Cache.MaxEntries < 1 {
		add("cache.max_entries must be at least 1")
	}

	if settings.Catalog.TopN < 1 {
		add("catalog.top_n must be at least 1")
	}

	if settings.Storage.Enabled {
		switch settings.Storage.Backend {
		case StorageBackendMinio, StorageBackendS3:
		default:
			add("storage.backend must be %q or %q, got %q", StorageBackendMinio, StorageBackendS3, settings.Storage.Backend)
		}
		if settings.Storage.Bucket == "" {
			add("storage.bucket is required when storage is enabled")
		}
		if settings.Storage.Backend == StorageBackendMinio && settings.Storage.Endpoint == "" {
			add("storage.endpoint is required for the minio backend")
		}
	}

	if settings.Output.SQLite.Enabled == settings.Output.MySQL.Enabled {
		add("exactly one of output.sqlite and output.mysql must be enabled")
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		add("sentry.dsn is required when sentry is enabled")
	}

	if len(problems) == 0 {
		return nil
	}

	return errors.Newf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - ")).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("problem_count", len(problems)).
		Build()
}
