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
	Agent   AgentConfig   `yaml:"agent" mapstructure:"agent"`
	Pinion  PinionConfig  `yaml:"pinion" mapstructure:"pinion"`
	Pricing PricingConfig `yaml:"pricing" mapstructure:"pricing"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// AgentConfig identifies the agent's wallet and tunes the profit loop.
type AgentConfig struct {
	Address           string  `yaml:"address" mapstructure:"address"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	ProfitThreshold   float64 `yaml:"profit_threshold" mapstructure:"profit_threshold"`
	ReinvestFraction  float64 `yaml:"reinvest_fraction" mapstructure:"reinvest_fraction"`
}

// PinionConfig holds skill marketplace credentials and endpoints.
type PinionConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Network string `yaml:"network" mapstructure:"network"`
}

// PricingConfig holds the paid-endpoint prices and per-skill cost overrides.
type PricingConfig struct {
	IntelPrice float64            `yaml:"intel_price" mapstructure:"intel_price"`
	CheckPrice float64            `yaml:"check_price" mapstructure:"check_price"`
	SkillRates map[string]float64 `yaml:"skill_rates" mapstructure:"skill_rates"`
}

// StoreConfig configures the ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// NotifyConfig configures the operator webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetEnvPrefix("AUTONOME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default to empty so env-only overrides bind.
	v.SetDefault("agent.address", "")
	v.SetDefault("pinion.api_key", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("agent.check_interval_secs", 30)
	v.SetDefault("agent.profit_threshold", 0.5)
	v.SetDefault("agent.reinvest_fraction", 0.8)
	v.SetDefault("pinion.base_url", "https://skills.pinionfun.com")
	v.SetDefault("pinion.network", "base-sepolia")
	v.SetDefault("pricing.intel_price", 0.08)
	v.SetDefault("pricing.check_price", 0.02)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "autonome.db")
	v.SetDefault("server.port", 4020)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
