// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port                     string  `mapstructure:"PORT"`
	Env                      string  `mapstructure:"APP_ENV"`
	DatabaseURL              string  `mapstructure:"DATABASE_URL"`
	SQLitePath               string  `mapstructure:"SQLITE_PATH"`
	DBMaxOpenConns           int     `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int     `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int     `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	TwitterBearerToken       string  `mapstructure:"TWITTER_BEARER_TOKEN"`
	TwitterAPIKey            string  `mapstructure:"TWITTER_API_KEY"`
	TwitterAPISecret         string  `mapstructure:"TWITTER_API_SECRET"`
	TwitterAccessToken       string  `mapstructure:"TWITTER_ACCESS_TOKEN"`
	TwitterAccessTokenSecret string  `mapstructure:"TWITTER_ACCESS_TOKEN_SECRET"`
	TwitterWaitOnRateLimit   bool    `mapstructure:"TWITTER_WAIT_ON_RATE_LIMIT"`
	UploadDir                string  `mapstructure:"UPLOAD_DIR"`
	MaxUploadSizeMB          int     `mapstructure:"MAX_UPLOAD_SIZE_MB"`
	SchedulerEnabled         bool    `mapstructure:"SCHEDULER_ENABLED"`
	SchedulerIntervalSeconds int     `mapstructure:"SCHEDULER_INTERVAL_SECONDS"`
	PublishTimeoutSeconds    int     `mapstructure:"PUBLISH_TIMEOUT_SECONDS"`
	RedisURL                 string  `mapstructure:"REDIS_URL"`
	AllowedOrigins           string  `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags             string  `mapstructure:"FEATURE_FLAGS"`
	SeedDemoData             bool    `mapstructure:"SEED_DEMO_DATA"`
	TracingEnabled           bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter          string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint             string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio      float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// Load a local .env file when present; real env vars still win.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	// Set default values for development
	viper.SetDefault("PORT", "3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("SQLITE_PATH", "scheduler.db")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("TWITTER_BEARER_TOKEN", "")
	viper.SetDefault("TWITTER_API_KEY", "")
	viper.SetDefault("TWITTER_API_SECRET", "")
	viper.SetDefault("TWITTER_ACCESS_TOKEN", "")
	viper.SetDefault("TWITTER_ACCESS_TOKEN_SECRET", "")
	viper.SetDefault("TWITTER_WAIT_ON_RATE_LIMIT", true)
	viper.SetDefault("UPLOAD_DIR", "uploads")
	viper.SetDefault("MAX_UPLOAD_SIZE_MB", 16)
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("SCHEDULER_INTERVAL_SECONDS", 60)
	viper.SetDefault("PUBLISH_TIMEOUT_SECONDS", 30)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("SEED_DEMO_DATA", false)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.MaxUploadSizeMB <= 0 {
		return errors.New("MAX_UPLOAD_SIZE_MB must be positive")
	}
	if c.SchedulerIntervalSeconds <= 0 {
		return errors.New("SCHEDULER_INTERVAL_SECONDS must be positive")
	}
	if c.PublishTimeoutSeconds <= 0 {
		return errors.New("PUBLISH_TIMEOUT_SECONDS must be positive")
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}
	if c.DatabaseURL != "" && !c.UsePostgres() {
		return fmt.Errorf("DATABASE_URL scheme not recognized: %q (expected postgres:// or postgresql://)", c.DatabaseURL)
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	if c.twitterCredentialsPartial() {
		log.Println("WARNING: Twitter credentials are incomplete. All five TWITTER_* values are required; publishing is disabled.")
	}

	// Strict checks for production
	if isProduction {
		if !c.UsePostgres() {
			log.Println("WARNING: running on SQLite in production. Set DATABASE_URL to use PostgreSQL.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}

// UsePostgres reports whether DATABASE_URL selects the PostgreSQL backend.
// An empty or non-postgres URL falls back to SQLite.
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// HasTwitterCredentials reports whether all five Twitter credential values are set.
func (c *Config) HasTwitterCredentials() bool {
	return c.TwitterBearerToken != "" &&
		c.TwitterAPIKey != "" &&
		c.TwitterAPISecret != "" &&
		c.TwitterAccessToken != "" &&
		c.TwitterAccessTokenSecret != ""
}

func (c *Config) twitterCredentialsPartial() bool {
	any := c.TwitterBearerToken != "" ||
		c.TwitterAPIKey != "" ||
		c.TwitterAPISecret != "" ||
		c.TwitterAccessTokenSecret != "" ||
		c.TwitterAccessToken != ""
	return any && !c.HasTwitterCredentials()
}

// SchedulerInterval returns the delivery loop cadence.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSeconds) * time.Second
}

// PublishTimeout returns the per-publish deadline.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSeconds) * time.Second
}

// DBConnMaxLifetime returns the maximum lifetime of a pooled connection.
func (c *Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeMinutes) * time.Minute
}

// MaxUploadBytes returns the request body and attachment size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}
