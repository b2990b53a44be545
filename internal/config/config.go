// Package config loads process configuration from the environment
// (and an optional .env file) through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is shared by the API server and the worker.
type Config struct {
	AppEnv   string `mapstructure:"app_env"`
	AppPort  string `mapstructure:"app_port"`
	LogLevel string `mapstructure:"log_level"`

	DatabaseURL     string        `mapstructure:"database_url"`
	DBMaxConns      int32         `mapstructure:"db_max_conns"`
	DBMinConns      int32         `mapstructure:"db_min_conns"`
	DBStmtTimeout   time.Duration `mapstructure:"db_statement_timeout"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
	RedisURL        string        `mapstructure:"redis_url"`
	BalanceCacheTTL time.Duration `mapstructure:"balance_cache_ttl"`

	JWTSecret string `mapstructure:"jwt_secret"`

	TopUpEnabled   bool          `mapstructure:"topup_enabled"`
	TopUpInterval  time.Duration `mapstructure:"topup_interval"`
	TopUpBatchSize int           `mapstructure:"topup_batch_size"`
	RecalcInterval time.Duration `mapstructure:"recalc_interval"`
}

var defaults = map[string]any{
	"app_env":              "development",
	"app_port":             "8080",
	"log_level":            "info",
	"database_url":         "",
	"db_max_conns":         20,
	"db_min_conns":         2,
	"db_statement_timeout": 30 * time.Second,
	"migrate_on_start":     false,
	"redis_url":            "",
	"balance_cache_ttl":    30 * time.Second,
	"jwt_secret":           "",
	"topup_enabled":        false,
	"topup_interval":       time.Minute,
	"topup_batch_size":     100,
	"recalc_interval":      15 * time.Minute,
}

// Load reads the environment. Variables override values from ./.env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings every process needs.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return fmt.Errorf("config: DATABASE_URL is required")
	case c.DBMaxConns < c.DBMinConns:
		return fmt.Errorf("config: DB_MAX_CONNS (%d) is below DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	case c.TopUpBatchSize <= 0:
		return fmt.Errorf("config: TOPUP_BATCH_SIZE must be positive")
	case c.TopUpInterval <= 0 || c.RecalcInterval <= 0:
		return fmt.Errorf("config: TOPUP_INTERVAL and RECALC_INTERVAL must be positive")
	}
	return nil
}

// Development reports whether the process runs with development defaults.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}
