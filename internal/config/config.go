package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LLM providers accepted by llm.provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Portal     PortalConfig     `yaml:"portal" mapstructure:"portal"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	GIS        GISConfig        `yaml:"gis" mapstructure:"gis"`
	Listings   ListingsConfig   `yaml:"listings" mapstructure:"listings"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path          string      `yaml:"path" mapstructure:"path"`
	BusyTimeoutMS int         `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	Retry         RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig bounds retries on a locked database.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// PortalConfig configures the procurement registry client.
type PortalConfig struct {
	BaseURL          string   `yaml:"base_url" mapstructure:"base_url"`
	OKPD2Codes       []string `yaml:"okpd2_codes" mapstructure:"okpd2_codes"`
	MaxPages         int      `yaml:"max_pages" mapstructure:"max_pages"`
	UserAgent        string   `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	DocsDir          string   `yaml:"docs_dir" mapstructure:"docs_dir"`
	DocWorkers       int      `yaml:"doc_workers" mapstructure:"doc_workers"`
	ExcludedKeywords []string `yaml:"excluded_keywords" mapstructure:"excluded_keywords"`
}

// LLMConfig selects the extraction model and its sampling settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Breaker     BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures the LLM circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GISConfig configures search link generation.
type GISConfig struct {
	CoordinatesCSV string  `yaml:"coordinates_csv" mapstructure:"coordinates_csv"`
	Zoom           float64 `yaml:"zoom" mapstructure:"zoom"`
}

// ListingsConfig configures listing collection.
type ListingsConfig struct {
	TopN            int    `yaml:"top_n" mapstructure:"top_n"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	RateLimitSecs   int    `yaml:"rate_limit_secs" mapstructure:"rate_limit_secs"`
	Retries         int    `yaml:"retries" mapstructure:"retries"`
	Proxy           string `yaml:"proxy" mapstructure:"proxy"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port          int      `yaml:"port" mapstructure:"port"`
	DefaultUserID int64    `yaml:"default_user_id" mapstructure:"default_user_id"`
	CORSOrigins   []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZAKUPKI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "data/zakupki.db")
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("store.retry.max_attempts", 5)
	v.SetDefault("store.retry.initial_backoff_ms", 100)
	v.SetDefault("store.retry.max_backoff_ms", 2000)
	v.SetDefault("portal.base_url", "https://zakupki.gov.ru")
	v.SetDefault("portal.okpd2_codes", []string{"68.10.11.000"})
	v.SetDefault("portal.max_pages", 50)
	v.SetDefault("portal.timeout_secs", 30)
	v.SetDefault("portal.rate_per_sec", 1.0)
	v.SetDefault("portal.docs_dir", "data/zakupki")
	v.SetDefault("portal.doc_workers", 4)
	v.SetDefault("llm.provider", ProviderOpenRouter)
	v.SetDefault("llm.model", "google/gemini-2.0-flash-001")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.breaker.failure_threshold", 5)
	v.SetDefault("llm.breaker.reset_timeout_secs", 60)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gis.coordinates_csv", "data/ru_localities.csv")
	v.SetDefault("gis.zoom", 14.67)
	v.SetDefault("listings.top_n", 20)
	v.SetDefault("listings.page_timeout_secs", 60)
	v.SetDefault("listings.rate_limit_secs", 2)
	v.SetDefault("listings.retries", 3)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.default_user_id", 1)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Secrets have no default but must be known keys for env lookup.
	for _, key := range []string{"openrouter.key", "anthropic.key", "jina.key", "listings.proxy", "portal.user_agent"} {
		v.SetDefault(key, "")
	}

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

// Validate checks the settings a command mode depends on. Modes: serve,
// ingest, extract, links, listings, store. Serve starts without an LLM key;
// extraction requests then fail per record.
func (c *Config) Validate(mode string) error {
	var errs []string
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	switch mode {
	case "store":
	case "ingest":
		errs = append(errs, c.validatePortal()...)
	case "extract":
		errs = append(errs, c.validateLLM()...)
	case "links":
		if c.GIS.CoordinatesCSV == "" {
			errs = append(errs, "gis.coordinates_csv is required")
		}
	case "listings":
		errs = append(errs, c.validateListings()...)
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.DefaultUserID <= 0 {
			errs = append(errs, "server.default_user_id must be > 0")
		}
		errs = append(errs, c.validatePortal()...)
		errs = append(errs, c.validateListings()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) validatePortal() []string {
	var errs []string
	if c.Portal.BaseURL == "" {
		errs = append(errs, "portal.base_url is required")
	}
	if c.Portal.MaxPages <= 0 {
		errs = append(errs, "portal.max_pages must be > 0")
	}
	if c.Portal.RatePerSec <= 0 {
		errs = append(errs, "portal.rate_per_sec must be > 0")
	}
	return errs
}

func (c *Config) validateLLM() []string {
	var errs []string
	switch c.LLM.Provider {
	case ProviderOpenRouter:
		if c.OpenRouter.Key == "" {
			errs = append(errs, "openrouter.key is required")
		}
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q must be openrouter or anthropic", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, "llm.max_tokens must be > 0")
	}
	return errs
}

func (c *Config) validateListings() []string {
	var errs []string
	if c.Listings.TopN <= 0 || c.Listings.TopN > 100 {
		errs = append(errs, "listings.top_n must be between 1 and 100")
	}
	if c.Listings.RateLimitSecs < 0 {
		errs = append(errs, "listings.rate_limit_secs must be >= 0")
	}
	return errs
}

// ExtractModel returns the model name for the configured provider. The
// Anthropic section carries its own model.
func (c *Config) ExtractModel() string {
	if c.LLM.Provider == ProviderAnthropic && c.Anthropic.Model != "" {
		return c.Anthropic.Model
	}
	return c.LLM.Model
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
