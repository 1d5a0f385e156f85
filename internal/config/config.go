/**
 * @description
 * This package handles the configuration management for the settlement service. It uses
 * Viper to read configuration from environment variables and an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultRateLimitPrefix = "vendor-manager:rate_limit"
	defaultAuditSchedule   = "@every 15m"
)

// Config holds all the configuration variables for the settlement service.
type Config struct {
	ServerHost            string  `mapstructure:"SERVER_HOST"`
	ServerPort            string  `mapstructure:"SERVER_PORT"`
	DatabaseURL           string  `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32   `mapstructure:"DB_MAX_CONNS"`
	RabbitMQURL           string  `mapstructure:"RABBITMQ_URL"`
	EventsExchange        string  `mapstructure:"EVENTS_EXCHANGE"`
	RedisURL              string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix  string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RateLimitPerMinute    int     `mapstructure:"SETTLEMENT_RATE_LIMIT_PER_MINUTE"`
	DepositCapPercent     float64 `mapstructure:"DEPOSIT_CAP_PERCENT"`
	LedgerAuditSchedule   string  `mapstructure:"LEDGER_AUDIT_SCHEDULE"`
	InternalAPIKey        string  `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOriginsRaw string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel              string  `mapstructure:"LOG_LEVEL"`
	LogFormat             string  `mapstructure:"LOG_FORMAT"`

	CORSAllowedOrigins []string `mapstructure:"-"`
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// LoadConfig reads configuration from the environment, falling back to a .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "3001")
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("EVENTS_EXCHANGE", "marketplace.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("SETTLEMENT_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("DEPOSIT_CAP_PERCENT", 10.0)
	viper.SetDefault("LEDGER_AUDIT_SCHEDULE", defaultAuditSchedule)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	_ = viper.BindEnv("SERVER_HOST")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SETTLEMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("DEPOSIT_CAP_PERCENT")
	_ = viper.BindEnv("LEDGER_AUDIT_SCHEDULE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_FORMAT")

	// The .env file is optional.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	// An explicitly empty schedule disables the audit job; viper would apply the default.
	if raw, ok := os.LookupEnv("LEDGER_AUDIT_SCHEDULE"); ok && strings.TrimSpace(raw) == "" {
		config.LedgerAuditSchedule = ""
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	if config.DepositCapPercent < 0 {
		config.DepositCapPercent = 0
	}
	if config.DepositCapPercent > 100 {
		config.DepositCapPercent = 100
	}
	if config.RateLimitPerMinute < 0 {
		config.RateLimitPerMinute = 0
	}
	if config.DBMaxConns <= 0 {
		config.DBMaxConns = 20
	}
	config.CORSAllowedOrigins = splitOrigins(config.CORSAllowedOriginsRaw)

	if config.DatabaseURL == "" {
		err = errors.New("DATABASE_URL is required")
	}
	return
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
