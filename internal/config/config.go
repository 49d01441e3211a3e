package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-level configuration. Platform credentials are not here; they are
// resolved per run through settings.Resolver using Env as the environment layer.
type Config struct {
	DatabaseURL    string
	Port           string
	LogLevel       string
	LogFormat      string
	SiteBaseURL    string
	AdminJWTSecret string

	WorkerEnabled  bool
	WorkerInterval time.Duration
	StaleAfter     time.Duration

	// Env is the viper instance backing environment lookups; settings.Resolver reads it too.
	Env *viper.Viper
}

// Load reads .env (if present), then the environment and an optional config.yaml.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := NewEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/quote-autopost")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromEnv(v)
}

// NewEnv returns a viper instance with the process defaults and automatic env binding.
// Keys are snake_case; the matching env var is the upper-cased key.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "18911")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("site_base_url", "http://localhost:18911")
	v.SetDefault("autopost_worker_enabled", true)
	v.SetDefault("autopost_worker_interval_seconds", 60)
	v.SetDefault("autopost_stale_after_minutes", 30)
	return v
}

// FromEnv materializes a Config from v.
func FromEnv(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:    strings.TrimSpace(v.GetString("database_url")),
		Port:           strings.TrimSpace(v.GetString("port")),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		SiteBaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString("site_base_url")), "/"),
		AdminJWTSecret: v.GetString("admin_jwt_secret"),
		WorkerEnabled:  v.GetBool("autopost_worker_enabled"),
		WorkerInterval: time.Duration(v.GetInt("autopost_worker_interval_seconds")) * time.Second,
		StaleAfter:     time.Duration(v.GetInt("autopost_stale_after_minutes")) * time.Minute,
		Env:            v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.WorkerInterval <= 0 || c.WorkerInterval > time.Minute {
		return fmt.Errorf("autopost_worker_interval_seconds must be between 1 and 60")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("autopost_stale_after_minutes must be positive")
	}
	return nil
}
