package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/housing-cli/internal/listing"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Crawl   CrawlConfig   `yaml:"crawl" mapstructure:"crawl"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Listing ListingConfig `yaml:"listing" mapstructure:"listing"`
	Google  GoogleConfig  `yaml:"google" mapstructure:"google"`
	Yelp    YelpConfig    `yaml:"yelp" mapstructure:"yelp"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// CrawlConfig configures the scrape-and-enrich run.
type CrawlConfig struct {
	Workers         int  `yaml:"workers" mapstructure:"workers"`
	TaskTimeoutSecs int  `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
	Limit           int  `yaml:"limit" mapstructure:"limit"`
	AllPages        bool `yaml:"all_pages" mapstructure:"all_pages"`
	OpenReport      bool `yaml:"open_report" mapstructure:"open_report"`
}

// SessionConfig configures browser-harvested session headers.
type SessionConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
}

// ListingConfig configures listing page fetches.
type ListingConfig struct {
	TimeoutSecs     int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyMB       int               `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	BrowserFallback bool              `yaml:"browser_fallback" mapstructure:"browser_fallback"`
	Selectors       listing.Selectors `yaml:"selectors" mapstructure:"selectors"`
}

// GoogleConfig configures the Places review source.
type GoogleConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	Key          string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Latitude     float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude    float64 `yaml:"longitude" mapstructure:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters" mapstructure:"radius_meters"`
	QueryKeyword string  `yaml:"query_keyword" mapstructure:"query_keyword"`
	QuerySuffix  string  `yaml:"query_suffix" mapstructure:"query_suffix"`
}

// YelpConfig configures the Yelp review source.
type YelpConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Location         string `yaml:"location" mapstructure:"location"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CloudflareBypass bool   `yaml:"cloudflare_bypass" mapstructure:"cloudflare_bypass"`
}

// CacheConfig bounds the in-memory lookup caches.
type CacheConfig struct {
	Size       int `yaml:"size" mapstructure:"size"`
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// RetryConfig configures retries for transient HTTP failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HOUSING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("google.api_key", "HOUSING_GOOGLE_API_KEY", "GOOGLE_MAPS_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind google key")
	}

	// Defaults
	sel := listing.DefaultSelectors()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.task_timeout_secs", 90)
	v.SetDefault("crawl.limit", 3)
	v.SetDefault("crawl.all_pages", false)
	v.SetDefault("crawl.open_report", true)
	v.SetDefault("session.enabled", true)
	v.SetDefault("session.headless", true)
	v.SetDefault("session.timeout_secs", 60)
	v.SetDefault("listing.timeout_secs", 30)
	v.SetDefault("listing.max_body_mb", 8)
	v.SetDefault("listing.browser_fallback", false)
	v.SetDefault("listing.selectors.card", sel.Card)
	v.SetDefault("listing.selectors.title", sel.Title)
	v.SetDefault("listing.selectors.link", sel.Link)
	v.SetDefault("listing.selectors.price", sel.Price)
	v.SetDefault("listing.selectors.specials", sel.Specials)
	v.SetDefault("listing.selectors.address", sel.Address)
	v.SetDefault("listing.selectors.page_range", sel.PageRange)
	v.SetDefault("google.enabled", true)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.latitude", 37.7959572)
	v.SetDefault("google.longitude", -122.3944423)
	v.SetDefault("google.radius_meters", 20000.0)
	v.SetDefault("google.query_keyword", "apartment")
	v.SetDefault("google.query_suffix", "")
	v.SetDefault("yelp.enabled", false)
	v.SetDefault("yelp.base_url", "https://www.yelp.com")
	v.SetDefault("yelp.location", "San Francisco Bay Area, CA, United States")
	v.SetDefault("yelp.timeout_secs", 30)
	v.SetDefault("yelp.cloudflare_bypass", true)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration can drive a crawl.
func (c *Config) Validate() error {
	var errs []string

	if c.Google.Enabled && c.Google.Key == "" {
		errs = append(errs, "google.api_key is required when google is enabled (set GOOGLE_MAPS_API_KEY)")
	}
	if c.Crawl.Workers < 1 || c.Crawl.Workers > 64 {
		errs = append(errs, "crawl.workers must be between 1 and 64")
	}
	if c.Crawl.Limit < 0 {
		errs = append(errs, "crawl.limit must be >= 0")
	}
	if c.Crawl.TaskTimeoutSecs < 0 {
		errs = append(errs, "crawl.task_timeout_secs must be >= 0")
	}
	if c.Google.Enabled && c.Google.RadiusMeters <= 0 {
		errs = append(errs, "google.radius_meters must be > 0")
	}
	if c.Cache.Size < 0 {
		errs = append(errs, "cache.size must be >= 0")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
