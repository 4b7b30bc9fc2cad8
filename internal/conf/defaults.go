// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "plantid")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/plantid.log")
	viper.SetDefault("logging.file_output.level", "info")
	viper.SetDefault("logging.file_output.max_size", 100)
	viper.SetDefault("logging.file_output.max_age", 30)
	viper.SetDefault("logging.file_output.max_rotated_files", 10)
	viper.SetDefault("logging.file_output.compress", false)

	viper.SetDefault("normalizer.max_dimension", 1024)
	viper.SetDefault("normalizer.quality", 85)
	viper.SetDefault("normalizer.max_input_bytes", 20<<20)
	viper.SetDefault("normalizer.fetch_timeout", 10*time.Second)

	viper.SetDefault("classifier.endpoint", "https://my-api.plantnet.org/v2/identify/all")
	viper.SetDefault("classifier.api_key", "")
	viper.SetDefault("classifier.organ", "leaf")
	viper.SetDefault("classifier.language", "en")
	viper.SetDefault("classifier.max_attempts", 3)
	viper.SetDefault("classifier.base_delay", time.Second)
	viper.SetDefault("classifier.max_delay", 8*time.Second)
	viper.SetDefault("classifier.attempt_timeout", 15*time.Second)
	viper.SetDefault("classifier.rate_limit", 0.0)
	viper.SetDefault("classifier.rate_burst", 1)

	viper.SetDefault("gate.threshold", 0.5)

	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.ttl", 5*time.Minute)
	viper.SetDefault("cache.low_confidence_ttl", time.Minute)
	viper.SetDefault("cache.max_entries", 1000)
	viper.SetDefault("cache.cleanup_interval", 10*time.Minute)
	viper.SetDefault("cache.redis.addr", "localhost:6379")
	viper.SetDefault("cache.redis.db", 0)
	viper.SetDefault("cache.redis.key_prefix", "plantid:")

	viper.SetDefault("catalog.top_n", 5)
	viper.SetDefault("catalog.concurrency", 4)

	viper.SetDefault("recorder.enabled", true)
	viper.SetDefault("recorder.timeout", 5*time.Second)

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.backend", "minio")
	viper.SetDefault("storage.bucket", "plant-images")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.use_ssl", true)
	viper.SetDefault("storage.key_prefix", "scans")
	viper.SetDefault("storage.cache_control", "max-age=3600")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "plantid.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "plantid")

	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.body_limit", "30M")
	viper.SetDefault("webserver.read_timeout", 30*time.Second)
	viper.SetDefault("webserver.write_timeout", 90*time.Second)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.sample_rate", 1.0)
}
