// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Visited  VisitedConfig  `mapstructure:"visited"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlConfig governs the crawl budget and pipeline timeouts.
type CrawlConfig struct {
	MaxDepth          int    `mapstructure:"max_depth"`
	MaxPages          int    `mapstructure:"max_pages"`
	RenderTimeoutMs   int    `mapstructure:"render_timeout_ms"`
	AnalysisTimeoutMs int    `mapstructure:"analysis_timeout_ms"`
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	UserAgent         string `mapstructure:"user_agent"`
}

// VisitedConfig controls the Redis-backed visited set.
type VisitedConfig struct {
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// StorageConfig selects and configures the screenshot store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for the distributed task queue.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// AnalyzerConfig configures the page analysis collaborator.
type AnalyzerConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
}

// JanitorConfig governs the stuck-scan sweeper.
type JanitorConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	IntervalSeconds   int  `mapstructure:"interval_seconds"`
	StuckAfterSeconds int  `mapstructure:"stuck_after_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

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
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.render_timeout_ms", 30000)
	v.SetDefault("crawl.analysis_timeout_ms", 120000)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.queue_depth", 256)
	v.SetDefault("crawl.user_agent", "sitescan-bot/0.1")
	v.SetDefault("visited.ttl_seconds", 3600)
	v.SetDefault("visited.redis_address", "localhost:6379")
	v.SetDefault("visited.redis_db", 0)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "screenshots")
	v.SetDefault("analyzer.model", "gemini-2.5-flash")
	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.interval_seconds", 300)
	v.SetDefault("janitor.stuck_after_seconds", 1800)
	v.SetDefault("logging.development", true)
}

// bindLegacyEnv recognizes the flat environment names used by earlier
// deployments alongside the SITESCAN_* hierarchy.
func bindLegacyEnv(v *viper.Viper) {
	// Errors from BindEnv only occur with zero arguments.
	_ = v.BindEnv("crawl.max_depth", "SITESCAN_CRAWL_MAX_DEPTH", "MAX_CRAWL_DEPTH")
	_ = v.BindEnv("crawl.max_pages", "SITESCAN_CRAWL_MAX_PAGES", "MAX_PAGES_PER_SCAN")
	_ = v.BindEnv("crawl.render_timeout_ms", "SITESCAN_CRAWL_RENDER_TIMEOUT_MS", "RENDER_TIMEOUT_MS")
	_ = v.BindEnv("crawl.analysis_timeout_ms", "SITESCAN_CRAWL_ANALYSIS_TIMEOUT_MS", "ANALYSIS_TIMEOUT_MS")
	_ = v.BindEnv("visited.ttl_seconds", "SITESCAN_VISITED_TTL_SECONDS", "VISITED_TTL_SECONDS")
	_ = v.BindEnv("visited.redis_address", "SITESCAN_VISITED_REDIS_ADDRESS", "REDIS_ADDRESS", "REDIS_URL")
	_ = v.BindEnv("db.dsn", "SITESCAN_DB_DSN", "DATABASE_URL")
	_ = v.BindEnv("analyzer.api_key", "SITESCAN_ANALYZER_API_KEY", "GEMINI_API_KEY")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.RenderTimeoutMs <= 0 {
		return fmt.Errorf("crawl.render_timeout_ms must be > 0")
	}
	if c.Crawl.AnalysisTimeoutMs <= 0 {
		return fmt.Errorf("crawl.analysis_timeout_ms must be > 0")
	}
	if c.Visited.TTLSeconds <= 0 {
		return fmt.Errorf("visited.ttl_seconds must be > 0")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	return nil
}

// RenderTimeout returns the render step's upper bound as a duration.
func (c CrawlConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutMs) * time.Millisecond
}

// AnalysisTimeout returns the analysis step's upper bound as a duration.
func (c CrawlConfig) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutMs) * time.Millisecond
}

// TTL returns the visited-set inactivity window as a duration.
func (c VisitedConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
