package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Scan
	Scan ScanConfig

	// Upstreams
	News       NewsConfig
	Finviz     FinvizConfig
	MarketData MarketDataConfig

	// Float overrides (optional)
	Database DatabaseConfig
	Float    FloatConfig

	// Redis (optional L2 cache + shared rate limiting)
	Redis RedisConfig

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Monitoring
	MetricsEnabled bool
}

// ScanConfig holds pipeline tuning that is not part of the filter criteria
type ScanConfig struct {
	Profile      string        // profile name from the profiles file
	ProfilesPath string        // optional YAML profiles file
	Workers      int           // bounded worker pool size
	FetchTimeout time.Duration // per external fetch
	ScanTimeout  time.Duration // whole scan
	Schedule     string        // cron expression for `watch`
}

// NewsConfig holds newsapi.org configuration
type NewsConfig struct {
	APIKey   string
	BaseURL  string
	PageSize int
}

// FinvizConfig holds the gainers screener configuration
type FinvizConfig struct {
	ScreenerURL string
	RateLimit   float64 // requests per second
}

// MarketDataConfig selects and configures the quote/history provider
type MarketDataConfig struct {
	Provider        string // yahoo, alpaca
	YahooBaseURL    string
	AlpacaAPIKey    string
	AlpacaAPISecret string
	AlpacaBaseURL   string
	AlpacaFeed      string  // iex, sip
	RateLimit       float64 // requests per second
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FloatConfig controls the float estimator
type FloatConfig struct {
	UnknownPolicy  string  // assume-small, disqualify
	DefaultMillion float64 // used by assume-small
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Provider names
const (
	ProviderYahoo  = "yahoo"
	ProviderAlpaca = "alpaca"
)

// Alpaca data feeds; sip needs a paid subscription
const (
	AlpacaFeedIEX = "iex"
	AlpacaFeedSIP = "sip"
)

// Float unknown-ticker policies
const (
	FloatPolicyAssumeSmall = "assume-small"
	FloatPolicyDisqualify  = "disqualify"
)

// Load reads configuration from the environment, after merging the first .env
// found next to the working directory or the binary. Malformed values are
// reported together with validation failures.
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	e := &envReader{}
	cfg := &Config{
		Port: e.str("PORT", "8089"),
		Env:  e.str("ENV", "development"),

		Scan: ScanConfig{
			Profile:      e.str("SCAN_PROFILE", "gappers"),
			ProfilesPath: e.str("SCAN_PROFILES_PATH", ""),
			Workers:      e.integer("SCAN_WORKERS", 4),
			FetchTimeout: e.duration("SCAN_FETCH_TIMEOUT", 10*time.Second),
			ScanTimeout:  e.duration("SCAN_TIMEOUT", 2*time.Minute),
			Schedule:     e.str("SCAN_SCHEDULE", "0 */5 9-16 * * 1-5"),
		},

		News: NewsConfig{
			APIKey:   e.str("NEWS_API_KEY", ""),
			BaseURL:  e.str("NEWS_BASE_URL", "https://newsapi.org/v2"),
			PageSize: e.integer("NEWS_PAGE_SIZE", 5),
		},

		Finviz: FinvizConfig{
			ScreenerURL: e.str("FINVIZ_SCREENER_URL",
				"https://finviz.com/screener.ashx?v=111&s=ta_topgainers&f=sh_price_u20,sh_avgvol_o500&ft=4"),
			RateLimit: e.number("FINVIZ_RATE_LIMIT", 1),
		},

		MarketData: MarketDataConfig{
			Provider:        strings.ToLower(e.str("MARKET_DATA_PROVIDER", ProviderYahoo)),
			YahooBaseURL:    e.str("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			AlpacaAPIKey:    e.str("ALPACA_API_KEY", ""),
			AlpacaAPISecret: e.str("ALPACA_SECRET_KEY", ""),
			AlpacaBaseURL:   e.str("ALPACA_DATA_URL", ""),
			AlpacaFeed:      strings.ToLower(e.str("ALPACA_FEED", AlpacaFeedIEX)),
			RateLimit:       e.number("MARKET_DATA_RATE_LIMIT", 5),
		},

		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxConns:        e.integer("DB_MAX_CONNS", 4),
			MinConns:        e.integer("DB_MIN_CONNS", 1),
			MaxConnLifetime: e.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: e.duration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},

		Float: FloatConfig{
			UnknownPolicy:  strings.ToLower(e.str("FLOAT_UNKNOWN_POLICY", FloatPolicyDisqualify)),
			DefaultMillion: e.number("FLOAT_DEFAULT_MILLIONS", 5.0),
		},

		Redis: RedisConfig{
			Host:     e.str("REDIS_HOST", "localhost"),
			Port:     e.str("REDIS_PORT", "6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
			Enabled:  e.flag("REDIS_ENABLED", false),
		},

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "console"),
		LogFile:   e.str("LOG_FILE", ""),

		MetricsEnabled: e.flag("METRICS_ENABLED", true),
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// validate returns every rule the config breaks
func (c *Config) validate() []error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// No key, no catalyst signal, no scan
	if c.News.APIKey == "" {
		fail("NEWS_API_KEY is required")
	}

	switch c.Env {
	case "development", "staging", "production":
	default:
		fail("ENV must be one of: development, staging, production")
	}

	switch c.MarketData.Provider {
	case ProviderYahoo:
	case ProviderAlpaca:
		if c.MarketData.AlpacaAPIKey == "" || c.MarketData.AlpacaAPISecret == "" {
			fail("ALPACA_API_KEY and ALPACA_SECRET_KEY are required for the alpaca provider")
		}
		switch c.MarketData.AlpacaFeed {
		case AlpacaFeedIEX, AlpacaFeedSIP:
		default:
			fail("ALPACA_FEED must be one of: iex, sip")
		}
	default:
		fail("MARKET_DATA_PROVIDER must be one of: yahoo, alpaca")
	}

	switch c.Float.UnknownPolicy {
	case FloatPolicyAssumeSmall, FloatPolicyDisqualify:
	default:
		fail("FLOAT_UNKNOWN_POLICY must be one of: assume-small, disqualify")
	}

	if c.Scan.Workers <= 0 {
		fail("SCAN_WORKERS must be positive")
	}
	if c.Scan.FetchTimeout <= 0 {
		fail("SCAN_FETCH_TIMEOUT must be positive")
	}
	if c.Scan.ScanTimeout <= 0 {
		fail("SCAN_TIMEOUT must be positive")
	}

	return errs
}

// loadEnvFile merges the first .env found; real environment variables win
func loadEnvFile() {
	candidates := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// envReader reads typed variables, keeping the default when a variable is
// unset and recording an error when it is set but malformed
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *envReader) bad(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.bad(key, v, err)
		return def
	}
	return n
}

func (e *envReader) number(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(key, v, err)
		return def
	}
	return f
}

func (e *envReader) flag(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.bad(key, v, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(key, v, err)
		return def
	}
	return d
}
