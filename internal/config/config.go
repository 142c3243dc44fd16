// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/toolshelf/internal/accelerator"
	collyfetcher "github.com/JakeFAU/toolshelf/internal/fetcher/colly"
	"github.com/JakeFAU/toolshelf/internal/fetcher/headless"
	"github.com/JakeFAU/toolshelf/internal/icon"
	"github.com/JakeFAU/toolshelf/internal/news"
	"github.com/JakeFAU/toolshelf/internal/policy/ratelimit"
	"github.com/JakeFAU/toolshelf/internal/sources"
	"github.com/JakeFAU/toolshelf/internal/storage/gcs"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Snapshot storage backends.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig        `mapstructure:"server"`
	Auth        AuthConfig          `mapstructure:"auth"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	HTTP        collyfetcher.Config `mapstructure:"http"`
	RateLimit   ratelimit.Config    `mapstructure:"rate_limit"`
	Sources     sources.Config      `mapstructure:"sources"`
	GitHub      GitHubConfig        `mapstructure:"github"`
	Accelerator accelerator.Config  `mapstructure:"accelerator"`
	Icon        icon.Config         `mapstructure:"icon"`
	Headless    HeadlessConfig      `mapstructure:"headless"`
	Store       StoreConfig         `mapstructure:"store"`
	Catalog     CatalogConfig       `mapstructure:"catalog"`
	Crawler     CrawlerConfig       `mapstructure:"crawler"`
	Storage     StorageConfig       `mapstructure:"storage"`
	PubSub      PubSubConfig        `mapstructure:"pubsub"`
	News        news.Config         `mapstructure:"news"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// GitHubConfig configures the release API used by GitHub-hosted sources.
type GitHubConfig struct {
	APIBase string `mapstructure:"api_base"`
	Token   string `mapstructure:"token"`
}

// HeadlessConfig toggles icon tier 2.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	headless.Config `mapstructure:",squash"`
}

// StoreConfig selects and configures the tool store.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	BoltPath        string        `mapstructure:"bolt_path"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CatalogConfig points at the curated static list.
type CatalogConfig struct {
	StaticListPath string `mapstructure:"static_list_path"`
	Watch          bool   `mapstructure:"watch"`
}

// CrawlerConfig governs crawl job execution.
type CrawlerConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
	// Interval submits a crawl periodically; zero disables scheduling.
	Interval time.Duration `mapstructure:"interval"`
	// OnStart submits one crawl when the server starts.
	OnStart bool `mapstructure:"on_start"`
}

// StorageConfig selects where catalog snapshots are exported.
type StorageConfig struct {
	Backend  string     `mapstructure:"backend"`
	LocalDir string     `mapstructure:"local_dir"`
	Prefix   string     `mapstructure:"prefix"`
	GCS      gcs.Config `mapstructure:"gcs"`
}

// PubSubConfig holds metadata for crawl-completed notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	Endpoint  string `mapstructure:"endpoint"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOOLSHELF")
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
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("rate_limit.default_rps", 0)
	v.SetDefault("rate_limit.default_burst", 1)
	v.SetDefault("sources.timeout", sources.DefaultTimeout.String())
	v.SetDefault("sources.version_cap", sources.DefaultVersionCap)
	v.SetDefault("sources.node_skip_tls_verify", true)
	v.SetDefault("github.api_base", sources.DefaultGitHubAPI)
	v.SetDefault("github.token", "")
	v.SetDefault("accelerator.proxy_base", accelerator.DefaultProxyBase)
	v.SetDefault("icon.page_timeout", "5s")
	v.SetDefault("icon.candidate_timeout", "3s")
	v.SetDefault("icon.fallback_timeout", "5s")
	v.SetDefault("icon.fallback_apis", icon.DefaultFallbackAPIs())
	// Chrome starts per lookup; a missing binary only fails tier two.
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", "15s")
	v.SetDefault("headless.network_idle_timeout", "3s")
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.bolt_path", "data/toolshelf.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "tools")
	v.SetDefault("catalog.static_list_path", "apps.json")
	v.SetDefault("catalog.watch", false)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.queue_depth", 8)
	v.SetDefault("crawler.interval", "0s")
	v.SetDefault("crawler.on_start", false)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.local_dir", "data/snapshots")
	v.SetDefault("storage.prefix", "catalog")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "toolshelf-crawls")
	v.SetDefault("news.url", news.DefaultTrendingURL)
	v.SetDefault("news.timeout", "10s")
	v.SetDefault("news.cache_ttl", "10m")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Sources.Timeout <= 0 {
		return fmt.Errorf("sources.timeout must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if strings.TrimSpace(c.Catalog.StaticListPath) == "" {
		return fmt.Errorf("catalog.static_list_path is required")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.Interval < 0 {
		return fmt.Errorf("crawler.interval must not be negative")
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("store.bolt_path is required for the bolt backend")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic are required when pubsub is enabled")
	}
	return nil
}

// SourcesConfig folds the github section into the source settings.
func (c Config) SourcesConfig() sources.Config {
	out := c.Sources
	if c.GitHub.APIBase != "" {
		out.GitHubAPI = c.GitHub.APIBase
	}
	if c.GitHub.Token != "" {
		out.GitHubToken = c.GitHub.Token
	}
	return out
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
