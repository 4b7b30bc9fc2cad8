// Package conf loads and validates plantid settings using viper.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/plantid/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for the plantid service.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Main struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"main"`

	Logging logger.LoggingConfig `mapstructure:"logging"`

	Normalizer NormalizerSettings `mapstructure:"normalizer"`
	Classifier ClassifierSettings `mapstructure:"classifier"`
	Gate       GateSettings       `mapstructure:"gate"`
	Cache      CacheSettings      `mapstructure:"cache"`
	Catalog    CatalogSettings    `mapstructure:"catalog"`
	Recorder   RecorderSettings   `mapstructure:"recorder"`
	Storage    StorageSettings    `mapstructure:"storage"`
	Output     OutputSettings     `mapstructure:"output"`
	WebServer  WebServerSettings  `mapstructure:"webserver"`
	Sentry     SentrySettings     `mapstructure:"sentry"`
}

// NormalizerSettings controls image decoding and re-encoding.
type NormalizerSettings struct {
	MaxDimension  int           `mapstructure:"max_dimension"`   // longest side in pixels after resize
	Quality       int           `mapstructure:"quality"`         // JPEG quality 1-100
	MaxInputBytes int64         `mapstructure:"max_input_bytes"` // reject larger inputs
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`   // remote URL fetch bound
}

// ClassifierSettings configures the upstream species classifier.
type ClassifierSettings struct {
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	Organ          string        `mapstructure:"organ"` // default organ hint, empty to omit
	Language       string        `mapstructure:"language"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `mapstructure:"rate_burst"`
}

// GateSettings holds the confidence policy.
type GateSettings struct {
	Threshold float64 `mapstructure:"threshold"`
}

// CacheSettings configures the identification result cache.
type CacheSettings struct {
	Backend          string        `mapstructure:"backend"` // memory or redis
	TTL              time.Duration `mapstructure:"ttl"`
	LowConfidenceTTL time.Duration `mapstructure:"low_confidence_ttl"`
	MaxEntries       int           `mapstructure:"max_entries"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	Redis            RedisSettings `mapstructure:"redis"`
}

// RedisSettings configures the shared redis cache backend.
type RedisSettings struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CatalogSettings configures catalog enrichment.
type CatalogSettings struct {
	TopN        int `mapstructure:"top_n"`
	Concurrency int `mapstructure:"concurrency"`
}

// RecorderSettings configures scan record persistence.
type RecorderSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageSettings configures object storage for normalized images.
type StorageSettings struct {
	Enabled      bool   `mapstructure:"enabled"`
	Backend      string `mapstructure:"backend"` // minio or s3
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	PublicURL    string `mapstructure:"public_url"` // base for returned URLs, defaults to endpoint/bucket
	KeyPrefix    string `mapstructure:"key_prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// OutputSettings selects the database backend.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	MySQL struct {
		Enabled  bool   `mapstructure:"enabled"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		Database string `mapstructure:"database"`
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
	} `mapstructure:"mysql"`
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Listen       string        `mapstructure:"listen"`
	Debug        bool          `mapstructure:"debug"`
	BodyLimit    string        `mapstructure:"body_limit"` // echo size notation, e.g. "30M"
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, applies environment overrides and
// validates the result. An empty configFile searches the default paths
// and writes the embedded defaults when nothing is found.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper sets defaults, env bindings and reads the configuration file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it.
func createDefaultConfig(dir string) error {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() []byte {
	data, _ := configFiles.ReadFile("config.yaml")
	return data
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}

	if runtime.GOOS == "windows" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("error getting executable path: %w", err)
		}
		return []string{
			filepath.Join(homeDir, "AppData", "Roaming", "plantid"),
			filepath.Dir(exePath),
		}, nil
	}

	return []string{
		filepath.Join(homeDir, ".config", "plantid"),
		"/etc/plantid",
	}, nil
}
