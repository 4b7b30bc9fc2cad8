// env.go - environment variable overrides and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PLANTID_DEBUG", validateEnvBool},
		{"logging.default_level", "PLANTID_LOG_LEVEL", validateEnvLogLevel},

		{"classifier.endpoint", "PLANTID_CLASSIFIER_ENDPOINT", validateEnvURL},
		{"classifier.api_key", "PLANTNET_API_KEY", nil},
		{"classifier.organ", "PLANTID_CLASSIFIER_ORGAN", nil},
		{"classifier.max_attempts", "PLANTID_CLASSIFIER_MAX_ATTEMPTS", validateEnvPositiveInt},
		{"classifier.base_delay", "PLANTID_CLASSIFIER_BASE_DELAY", validateEnvDuration},
		{"classifier.attempt_timeout", "PLANTID_CLASSIFIER_ATTEMPT_TIMEOUT", validateEnvDuration},

		{"gate.threshold", "PLANTID_GATE_THRESHOLD", validateEnvThreshold},

		{"cache.backend", "PLANTID_CACHE_BACKEND", validateEnvCacheBackend},
		{"cache.ttl", "PLANTID_CACHE_TTL", validateEnvDuration},
		{"cache.low_confidence_ttl", "PLANTID_CACHE_LOW_CONFIDENCE_TTL", validateEnvDuration},
		{"cache.redis.addr", "PLANTID_REDIS_ADDR", nil},
		{"cache.redis.password", "PLANTID_REDIS_PASSWORD", nil},

		{"storage.enabled", "PLANTID_STORAGE_ENABLED", validateEnvBool},
		{"storage.endpoint", "PLANTID_STORAGE_ENDPOINT", nil},
		{"storage.access_key", "PLANTID_STORAGE_ACCESS_KEY", nil},
		{"storage.secret_key", "PLANTID_STORAGE_SECRET_KEY", nil},

		{"output.mysql.password", "PLANTID_MYSQL_PASSWORD", nil},

		{"webserver.listen", "PLANTID_LISTEN", nil},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error")
	}
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative, got %s", d)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if threshold < 0.0 || threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %g", threshold)
	}
	return nil
}

func validateEnvCacheBackend(value string) error {
	switch value {
	case CacheBackendMemory, CacheBackendRedis:
		return nil
	default:
		return fmt.Errorf("cache backend must be %q or %q", CacheBackendMemory, CacheBackendRedis)
	}
}
