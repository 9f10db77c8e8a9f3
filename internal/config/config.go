// Package config loads application configuration from config.yaml and
// the VOLTQUERY_* environment, with defaults for every tunable.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Qdrant    QdrantConfig    `yaml:"qdrant" mapstructure:"qdrant"`
	NREL      NRELConfig      `yaml:"nrel" mapstructure:"nrel"`
	OpenEI    OpenEIConfig    `yaml:"openei" mapstructure:"openei"`
	REopt     REoptConfig     `yaml:"reopt" mapstructure:"reopt"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Finance   FinanceConfig   `yaml:"finance" mapstructure:"finance"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// QdrantConfig holds the vector store connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// NRELConfig holds NREL developer API settings. The one key covers the
// station, rate, PVWatts, and geocoding endpoints.
type NRELConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// OpenEIConfig holds the utility rate database API settings.
type OpenEIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// REoptConfig holds the techno-economic solver API settings. Key falls
// back to the NREL key when empty.
type REoptConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	MaxPolls int    `yaml:"max_polls" mapstructure:"max_polls"`
}

// CacheConfig holds per-domain cache TTLs, in the unit each name says.
type CacheConfig struct {
	GeocodeTTLDays int `yaml:"geocode_ttl_days" mapstructure:"geocode_ttl_days"`
	RatesTTLHours  int `yaml:"rates_ttl_hours" mapstructure:"rates_ttl_hours"`
	SolarTTLHours  int `yaml:"solar_ttl_hours" mapstructure:"solar_ttl_hours"`
}

// BreakerConfig holds circuit breaker thresholds shared by all
// providers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold" mapstructure:"success_threshold"`
	CoolDownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// RetryConfig holds retry backoff tunables shared by all providers.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// EngineConfig holds orchestration tunables.
type EngineConfig struct {
	DispatchBudgetSecs  int    `yaml:"dispatch_budget_secs" mapstructure:"dispatch_budget_secs"`
	Rerank              bool   `yaml:"rerank" mapstructure:"rerank"`
	CandidateMultiplier int    `yaml:"candidate_multiplier" mapstructure:"candidate_multiplier"`
	AliasFile           string `yaml:"alias_file" mapstructure:"alias_file"`
}

// FinanceConfig holds scenario engine tunables. Zero values use the
// statutory defaults.
type FinanceConfig struct {
	ResidentialHorizonYears int `yaml:"residential_horizon_years" mapstructure:"residential_horizon_years"`
	CommercialHorizonYears  int `yaml:"commercial_horizon_years" mapstructure:"commercial_horizon_years"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("VOLTQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default empty so the VOLTQUERY_* variables
	// bind through Unmarshal.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("jina.key", "")
	v.SetDefault("nrel.key", "")
	v.SetDefault("openei.key", "")
	v.SetDefault("reopt.key", "")
	v.SetDefault("engine.alias_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("jina.base_url", "https://api.jina.ai/v1")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "energy_documents")
	v.SetDefault("nrel.rate_limit_rps", 2.0)
	v.SetDefault("nrel.rate_limit_burst", 4)
	v.SetDefault("openei.base_url", "https://api.openei.org")
	v.SetDefault("reopt.base_url", "https://developer.nrel.gov/api/reopt/v3")
	v.SetDefault("reopt.max_polls", 120)
	v.SetDefault("cache.geocode_ttl_days", 30)
	v.SetDefault("cache.rates_ttl_hours", 24)
	v.SetDefault("cache.solar_ttl_hours", 1)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.cooldown_secs", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("engine.dispatch_budget_secs", 480)
	v.SetDefault("engine.rerank", false)
	v.SetDefault("engine.candidate_multiplier", 3)
	v.SetDefault("finance.residential_horizon_years", 25)
	v.SetDefault("finance.commercial_horizon_years", 20)

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

	if cfg.REopt.Key == "" {
		cfg.REopt.Key = cfg.NREL.Key
	}

	return &cfg, nil
}

// Validate checks that the fields the named command needs are present.
// mode is "ask" or "serve".
func (c *Config) Validate(mode string) error {
	var missing []string

	if c.Anthropic.Key == "" {
		missing = append(missing, "anthropic.key is required")
	}
	if c.Jina.Key == "" {
		missing = append(missing, "jina.key is required")
	}
	if c.NREL.Key == "" {
		missing = append(missing, "nrel.key is required")
	}
	if c.OpenEI.Key == "" {
		missing = append(missing, "openei.key is required")
	}

	if mode == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		missing = append(missing, "server.port must be between 1 and 65535")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
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
