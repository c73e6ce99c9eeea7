// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	DART       DARTConfig       `yaml:"dart" mapstructure:"dart"`
	KRX        KRXConfig        `yaml:"krx" mapstructure:"krx"`
	PublicData PublicDataConfig `yaml:"public_data" mapstructure:"public_data"`
	Collect    CollectConfig    `yaml:"collect" mapstructure:"collect"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DARTConfig holds DART open API settings.
type DARTConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// KRXConfig holds KRX data portal settings.
type KRXConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	CacheTTLHours  int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// PublicDataConfig holds public data portal settings.
type PublicDataConfig struct {
	ServiceKey     string  `yaml:"service_key" mapstructure:"service_key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	CacheTTLHours  int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// CollectConfig tunes the batch collection run.
type CollectConfig struct {
	Workers  int `yaml:"workers" mapstructure:"workers"`
	Years    int `yaml:"years" mapstructure:"years"`
	Quarters int `yaml:"quarters" mapstructure:"quarters"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Timeout converts the configured seconds to a duration.
func (c DARTConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// Timeout converts the configured seconds to a duration.
func (c KRXConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// Timeout converts the configured seconds to a duration.
func (c PublicDataConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AGENTVI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("dart.api_key", "")
	v.SetDefault("public_data.service_key", "")
	v.SetDefault("dart.base_url", "https://opendart.fss.or.kr/api")
	v.SetDefault("dart.timeout_secs", 30)
	v.SetDefault("dart.requests_per_sec", 5)
	v.SetDefault("krx.base_url", "http://data.krx.co.kr")
	v.SetDefault("krx.timeout_secs", 30)
	v.SetDefault("krx.requests_per_sec", 2)
	v.SetDefault("krx.cache_ttl_hours", 12)
	v.SetDefault("public_data.base_url", "https://apis.data.go.kr")
	v.SetDefault("public_data.timeout_secs", 30)
	v.SetDefault("public_data.requests_per_sec", 5)
	v.SetDefault("public_data.cache_ttl_hours", 12)
	v.SetDefault("collect.workers", 4)
	v.SetDefault("collect.years", 8)
	v.SetDefault("collect.quarters", 8)

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
