// Package config loads and validates leadscout configuration via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig                    `mapstructure:"server"`
	Auth          AuthConfig                      `mapstructure:"auth"`
	Discovery     DiscoveryConfig                 `mapstructure:"discovery"`
	Search        SearchConfig                    `mapstructure:"search"`
	Analysis      AnalysisConfig                  `mapstructure:"analysis"`
	Dedup         DedupConfig                     `mapstructure:"dedup"`
	HTTP          HTTPConfig                      `mapstructure:"http"`
	Headless      HeadlessConfig                  `mapstructure:"headless"`
	RateLimit     RateLimitConfig                 `mapstructure:"rate_limit"`
	Storage       StorageConfig                   `mapstructure:"storage"`
	Database      DatabaseConfig                  `mapstructure:"database"`
	PubSub        PubSubConfig                    `mapstructure:"pubsub"`
	Progress      ProgressConfig                  `mapstructure:"progress"`
	Logging       LoggingConfig                   `mapstructure:"logging"`
	Application   ApplicationConfig               `mapstructure:"application"`
	SavedSearches map[string]lead.DiscoveryParams `mapstructure:"saved_searches"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DiscoveryConfig governs the queue, worker pool and pipeline.
type DiscoveryConfig struct {
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	BatchSize         int    `mapstructure:"batch_size"`
	JobTimeoutSeconds int    `mapstructure:"job_timeout_seconds"`
	MaxResultsDefault int    `mapstructure:"max_results_default"`
	MaxResultsLimit   int    `mapstructure:"max_results_limit"`
	AnalyzeDefault    bool   `mapstructure:"analyze_default"`
	Topic             string `mapstructure:"topic"`
}

// SearchConfig selects providers and the result blocklist.
type SearchConfig struct {
	Providers     []string `mapstructure:"providers"`
	DuckDuckGoURL string   `mapstructure:"duckduckgo_url"`
	BingURL       string   `mapstructure:"bing_url"`
	Blocklist     []string `mapstructure:"blocklist"`
	// ExtraBlocklist is appended to Blocklist so deployments can extend the defaults.
	ExtraBlocklist []string `mapstructure:"extra_blocklist"`
}

// AnalysisConfig tunes website probing.
type AnalysisConfig struct {
	RespectRobots    bool `mapstructure:"respect_robots"`
	MaxPageBytes     int  `mapstructure:"max_page_bytes"`
	MaxRetries       int  `mapstructure:"max_retries"`
	BackoffInitialMs int  `mapstructure:"backoff_initial_ms"`
}

// DedupConfig tunes duplicate detection.
type DedupConfig struct {
	NameThreshold float64 `mapstructure:"name_threshold"`
}

// HTTPConfig configures outbound HTTP clients.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"` // minimum visible characters
	// DesktopViewport renders on a laptop screen instead of a phone.
	DesktopViewport bool `mapstructure:"desktop_viewport"`
}

// RateLimitConfig controls per-domain politeness.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// StorageConfig selects the snapshot blob backend.
type StorageConfig struct {
	Backend     string             `mapstructure:"backend"`
	Bucket      string             `mapstructure:"bucket"`
	Local       LocalStorageConfig `mapstructure:"local"`
	Prefix      string             `mapstructure:"prefix"`
	ContentType string             `mapstructure:"content_type"`
}

// LocalStorageConfig points the local blob store at a directory.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig selects and tunes the lead/job store.
type DatabaseConfig struct {
	// Backend is memory, sqlite or postgres.
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for lead event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig controls the progress hub and its sinks.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
}

// ProgressBatchConfig bounds hub flushes.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ApplicationConfig describes the deployment for telemetry resources.
type ApplicationConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	Version       string `mapstructure:"version"`
	ProjectID     string `mapstructure:"project_id"`
	ProjectNumber string `mapstructure:"project_number"`
	Region        string `mapstructure:"region"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
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
	cfg.markProvided(v)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// markProvided records which saved-search booleans were set explicitly so
// they override service defaults even when false.
func (c *Config) markProvided(v *viper.Viper) {
	for name, params := range c.SavedSearches {
		prefix := "saved_searches." + name + "."
		params.AnalyzeProvided = v.IsSet(prefix + "analyze")
		params.HeadlessProvided = v.IsSet(prefix + "headless_allowed")
		params.RespectRobotsProvided = v.IsSet(prefix + "respect_robots")
		c.SavedSearches[name] = params
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("discovery.concurrency", 4)
	v.SetDefault("discovery.queue_depth", 64)
	v.SetDefault("discovery.batch_size", 5)
	v.SetDefault("discovery.job_timeout_seconds", 600)
	v.SetDefault("discovery.max_results_default", 20)
	v.SetDefault("discovery.max_results_limit", 100)
	v.SetDefault("discovery.analyze_default", true)
	v.SetDefault("search.providers", []string{"duckduckgo", "bing"})
	v.SetDefault("analysis.respect_robots", true)
	v.SetDefault("analysis.max_page_bytes", 5*1024*1024)
	v.SetDefault("analysis.max_retries", 2)
	v.SetDefault("analysis.backoff_initial_ms", 250)
	v.SetDefault("dedup.name_threshold", 0.85)
	v.SetDefault("http.user_agent", "leadscout-bot/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("headless.desktop_viewport", false)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_rps", 1.0)
	v.SetDefault("rate_limit.default_burst", 2)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.sqlite_path", "leadscout.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("progress.batch.max_events", 256)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("logging.development", true)
	v.SetDefault("application.service_name", "leadscout")
	v.SetDefault("application.version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Discovery.Concurrency <= 0 {
		return fmt.Errorf("discovery.concurrency must be > 0")
	}
	if c.Discovery.QueueDepth <= 0 {
		return fmt.Errorf("discovery.queue_depth must be > 0")
	}
	if c.Discovery.BatchSize <= 0 {
		return fmt.Errorf("discovery.batch_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Dedup.NameThreshold <= 0 || c.Dedup.NameThreshold > 1 {
		return fmt.Errorf("dedup.name_threshold must be in (0, 1]")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if len(c.Search.Providers) == 0 {
		return fmt.Errorf("search.providers must name at least one provider")
	}
	switch c.Storage.Backend {
	case "", "memory", "none":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Database.Backend {
	case "", "memory":
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path must be set for the sqlite backend")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("database.backend %q is not supported", c.Database.Backend)
	}
	for name, params := range c.SavedSearches {
		if strings.TrimSpace(params.Query) == "" {
			return fmt.Errorf("saved_searches.%s.query is required", name)
		}
	}
	return nil
}

// JobTimeout bounds one discovery job.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Discovery.JobTimeoutSeconds) * time.Second
}

// HTTPTimeout bounds one outbound request.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Blocklist returns search.blocklist (or defaults when unset) followed by
// search.extra_blocklist.
func (c Config) Blocklist(defaults []string) []string {
	base := c.Search.Blocklist
	if len(base) == 0 {
		base = defaults
	}
	out := append([]string(nil), base...)
	return append(out, c.Search.ExtraBlocklist...)
}

// ApplyDiscoveryDefaults fills unset job parameters from the discovery,
// headless and analysis sections and clamps max_results to the limit.
func (c Config) ApplyDiscoveryDefaults(params lead.DiscoveryParams) lead.DiscoveryParams {
	d := c.Discovery
	if params.MaxResults <= 0 {
		params.MaxResults = d.MaxResultsDefault
	}
	if d.MaxResultsLimit > 0 && params.MaxResults > d.MaxResultsLimit {
		params.MaxResults = d.MaxResultsLimit
	}
	if !params.AnalyzeProvided {
		params.Analyze = d.AnalyzeDefault
		params.AnalyzeProvided = true
	}
	if !params.HeadlessProvided {
		params.HeadlessAllowed = c.Headless.Enabled
		params.HeadlessProvided = true
	}
	if !params.RespectRobotsProvided {
		params.RespectRobots = c.Analysis.RespectRobots
		params.RespectRobotsProvided = true
	}
	if params.Tags == nil {
		params.Tags = map[string]string{}
	}
	return params
}

// SavedSearchNames lists saved search names in sorted order.
func (c Config) SavedSearchNames() []string {
	names := make([]string, 0, len(c.SavedSearches))
	for name := range c.SavedSearches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
