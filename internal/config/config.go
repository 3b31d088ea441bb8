// Package config loads service configuration from config.yaml and
// RECON_* environment variables, with defaults suitable for local runs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"invoice-reconciliation-backend/internal/services/matching"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Matching matching.Config
	Provider ProviderConfig
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

type DatabaseConfig struct {
	DSN string
}

type LogConfig struct {
	Level  string
	Format string
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   RetryConfig
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Load reads config.yaml from the working directory (optional) and
// applies environment overrides, e.g. RECON_DATABASE_DSN or
// RECON_MATCHING_AUTO_ACCEPT_SCORE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	epsilon, err := decimal.NewFromString(v.GetString("matching.amount_epsilon"))
	if err != nil {
		return nil, fmt.Errorf("matching.amount_epsilon: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
		},
		Database: DatabaseConfig{DSN: v.GetString("database.dsn")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Matching: matching.Config{
			AmountWeight:    v.GetFloat64("matching.amount_weight"),
			ReferenceWeight: v.GetFloat64("matching.reference_weight"),
			DateWeight:      v.GetFloat64("matching.date_weight"),
			AmountEpsilon:   epsilon,
			DateWindowDays:  v.GetInt("matching.date_window_days"),
			AutoAcceptScore: v.GetFloat64("matching.auto_accept_score"),
			ReviewScore:     v.GetFloat64("matching.review_score"),
		},
		Provider: ProviderConfig{
			BaseURL: v.GetString("provider.base_url"),
			APIKey:  v.GetString("provider.api_key"),
			Timeout: v.GetDuration("provider.timeout"),
			Retry: RetryConfig{
				MaxAttempts: v.GetInt("provider.retry.max_attempts"),
				BaseDelay:   v.GetDuration("provider.retry.base_delay"),
				MaxDelay:    v.GetDuration("provider.retry.max_delay"),
			},
		},
	}

	if err := cfg.Matching.Validate(); err != nil {
		return nil, fmt.Errorf("matching config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=reconciliation port=5432 sslmode=disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("matching.amount_weight", 0.5)
	v.SetDefault("matching.reference_weight", 0.35)
	v.SetDefault("matching.date_weight", 0.15)
	v.SetDefault("matching.amount_epsilon", "0")
	v.SetDefault("matching.date_window_days", 15)
	v.SetDefault("matching.auto_accept_score", 0.9)
	v.SetDefault("matching.review_score", 0.5)
	v.SetDefault("provider.base_url", "http://localhost:9090")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.retry.max_attempts", 4)
	v.SetDefault("provider.retry.base_delay", "200ms")
	v.SetDefault("provider.retry.max_delay", "5s")
}

// InitDB opens the Postgres connection for the configured DSN.
func InitDB(cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}
