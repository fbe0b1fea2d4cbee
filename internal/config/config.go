package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/openbank-sync/internal/openbanking"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMongo    = "mongo"
	BackendBigQuery = "bigquery"
	BackendMemory   = "memory"
)

// Config is the service configuration. Every key can be set in the
// optional config file or as an upper-case environment variable.
type Config struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// StoreBackend selects where transactions are written. Jobs and
	// accounts live in Mongo unless the backend is memory.
	StoreBackend    string `mapstructure:"store_backend"`
	MongoURI        string `mapstructure:"mongodb_uri"`
	MongoDatabase   string `mapstructure:"mongodb_database"`
	BigQueryProject string `mapstructure:"bigquery_project"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`

	OpenBankingAPIURL       string        `mapstructure:"openbanking_api_url"`
	OpenBankingClientID     string        `mapstructure:"openbanking_client_id"`
	OpenBankingClientSecret string        `mapstructure:"openbanking_client_secret"`
	HTTPTimeout             time.Duration `mapstructure:"http_timeout"`
	FetchRetries            int           `mapstructure:"fetch_retries"`
	RequestsPerSecond       float64       `mapstructure:"requests_per_second"`

	SyncBatchSize int `mapstructure:"sync_batch_size"`
	SyncWorkers   int `mapstructure:"sync_workers"`
	SyncQueueSize int `mapstructure:"sync_queue_size"`
}

const (
	DefaultPort              = 8080
	DefaultBatchSize         = 100
	DefaultWorkers           = 5
	DefaultQueueSize         = 100
	DefaultFetchRetries      = 3
	DefaultRequestsPerSecond = 5.0
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":                      DefaultPort,
		"log_level":                 "info",
		"shutdown_timeout":          "30s",
		"store_backend":             BackendMongo,
		"mongodb_uri":               "",
		"mongodb_database":          "openbank",
		"bigquery_project":          "",
		"bigquery_dataset":          "finance",
		"openbanking_api_url":       "https://api.yapily.com",
		"openbanking_client_id":     "",
		"openbanking_client_secret": "",
		"http_timeout":              "30s",
		"fetch_retries":             DefaultFetchRetries,
		"requests_per_second":       DefaultRequestsPerSecond,
		"sync_batch_size":           DefaultBatchSize,
		"sync_workers":              DefaultWorkers,
		"sync_queue_size":           DefaultQueueSize,
	}
}

// Load reads the config file at path, if any, then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and the keys each backend requires.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongo backend")
		}
	case BackendBigQuery:
		if c.BigQueryProject == "" {
			return errors.New("BIGQUERY_PROJECT is required for the bigquery backend")
		}
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for jobs and accounts with the bigquery backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	u, err := url.Parse(c.OpenBankingAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid OPENBANKING_API_URL %q", c.OpenBankingAPIURL)
	}

	if c.SyncBatchSize <= 0 {
		return errors.New("invalid sync_batch_size")
	}
	if c.SyncWorkers <= 0 {
		return errors.New("invalid sync_workers")
	}
	if c.SyncQueueSize < 0 {
		return errors.New("invalid sync_queue_size")
	}
	if c.FetchRetries < 0 {
		return errors.New("invalid fetch_retries")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("invalid http_timeout")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// OpenBanking returns the aggregator client settings.
func (c *Config) OpenBanking() openbanking.Config {
	return openbanking.Config{
		BaseURL:           c.OpenBankingAPIURL,
		ClientID:          c.OpenBankingClientID,
		ClientSecret:      c.OpenBankingClientSecret,
		Timeout:           c.HTTPTimeout,
		MaxRetries:        c.FetchRetries,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}
