// Package config loads and validates trawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Trawl   TrawlConfig   `mapstructure:"trawl"`
	Match   MatchConfig   `mapstructure:"match"`
	Render  RenderConfig  `mapstructure:"render"`
	Store   StoreConfig   `mapstructure:"store"`
	DB      DBConfig      `mapstructure:"db"`
	Images  ImagesConfig  `mapstructure:"images"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TrawlConfig sets the per-run defaults for the scan pipeline. Query
// parameters on a run request override these per call.
type TrawlConfig struct {
	Concurrency      int     `mapstructure:"concurrency"`
	UserAgent        string  `mapstructure:"user_agent"`
	FetchTimeoutMs   int     `mapstructure:"fetch_timeout_ms"`
	DeadlineMs       int     `mapstructure:"deadline_ms"`
	RenderDelayMs    int     `mapstructure:"render_delay_ms"`
	MaxImagesPerSite int     `mapstructure:"max_images_per_site"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	DomainQPS        float64 `mapstructure:"domain_qps"`
}

// MatchConfig tunes phrase compilation. Zero values keep the built-in
// gap bound and synonym table.
type MatchConfig struct {
	MaxGapWords int                 `mapstructure:"max_gap_words"`
	Synonyms    map[string][]string `mapstructure:"synonyms"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StoreConfig selects and configures the record store backing
// competitors, keywords, and image fingerprints.
type StoreConfig struct {
	// Provider is one of "file", "memory", or "postgres".
	Provider string `mapstructure:"provider"`
	// DataDir holds the JSON record files for the file provider.
	DataDir string `mapstructure:"data_dir"`
}

// DBConfig controls access to the relational database when the postgres
// store provider is selected.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// ImagesConfig selects where reference-image fingerprints live. When
// GCSBucket is empty they come from the record store.
type ImagesConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Object    string `mapstructure:"object"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("trawl.concurrency", 4)
	v.SetDefault("trawl.fetch_timeout_ms", 10000)
	v.SetDefault("trawl.deadline_ms", 180000)
	v.SetDefault("trawl.render_delay_ms", 1000)
	v.SetDefault("trawl.max_images_per_site", 20)
	v.SetDefault("trawl.max_retries", 1)
	v.SetDefault("trawl.backoff_initial_ms", 400)
	v.SetDefault("trawl.domain_qps", 0)
	v.SetDefault("render.enabled", true)
	v.SetDefault("store.provider", "file")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("images.object", "image-fingerprints.json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Trawl.Concurrency <= 0 {
		return fmt.Errorf("trawl.concurrency must be > 0")
	}
	if c.Trawl.FetchTimeoutMs < 1000 {
		return fmt.Errorf("trawl.fetch_timeout_ms must be >= 1000")
	}
	if c.Trawl.DeadlineMs < 3000 {
		return fmt.Errorf("trawl.deadline_ms must be >= 3000")
	}
	switch c.Store.Provider {
	case "file", "memory", "postgres":
	default:
		return fmt.Errorf("store.provider must be one of file, memory, postgres")
	}
	if c.Store.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when store.provider is postgres")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the default static fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Trawl.FetchTimeoutMs) * time.Millisecond
}

// Deadline returns the default run deadline as a duration.
func (c Config) Deadline() time.Duration {
	return time.Duration(c.Trawl.DeadlineMs) * time.Millisecond
}

// RenderDelay returns the post-render settle delay as a duration.
func (c Config) RenderDelay() time.Duration {
	return time.Duration(c.Trawl.RenderDelayMs) * time.Millisecond
}

// InitialBackoff returns the first retry backoff as a duration.
func (c Config) InitialBackoff() time.Duration {
	return time.Duration(c.Trawl.BackoffInitialMs) * time.Millisecond
}
