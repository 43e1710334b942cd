// Package config loads and validates the backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the CS_ prefix (e.g., CS_STORAGE_MONGO_URI
// overrides storage.mongo_uri in the YAML). The same binary therefore runs with
// a config.yaml in local development and with pure environment variables in
// containerized deployments.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds storage backend configuration.
//
// When MongoURI is set the document backend is attempted first; on any
// connection failure the process falls back to the file backend rooted at
// DataDir for its remaining lifetime.
type StorageConfig struct {
	MongoURI       string        `mapstructure:"mongo_uri"`
	MongoDatabase  string        `mapstructure:"mongo_database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	DataDir        string        `mapstructure:"data_dir"`
}

// AuthConfig holds token issuance and registration policy configuration
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	MinUsername int           `mapstructure:"min_username_length"`
	MinPassword int           `mapstructure:"min_password_length"`
}

// ChatConfig holds the completion API client configuration
type ChatConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

// RedisConfig holds the optional usage-stats cache configuration. Caching is
// disabled when URL is empty.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested
// structs during Unmarshal. viper.BindEnv only errors when called with zero
// keys; since every key here is a non-empty hardcoded string, any error
// indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Storage
		"storage.mongo_uri",
		"storage.mongo_database",
		"storage.connect_timeout",
		"storage.data_dir",

		// Auth
		"auth.jwt_secret",
		"auth.token_ttl",
		"auth.min_username_length",
		"auth.min_password_length",

		// Chat
		"chat.base_url",
		"chat.api_key",
		"chat.model",
		"chat.system_prompt",
		"chat.max_tokens",
		"chat.temperature",
		"chat.timeout",
		"chat.history_limit",

		// Redis
		"redis.url",
		"redis.stats_ttl",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/code-supporter")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("CS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in sensitive fields
	cfg.Storage.MongoURI = os.ExpandEnv(cfg.Storage.MongoURI)
	cfg.Auth.JWTSecret = os.ExpandEnv(cfg.Auth.JWTSecret)
	cfg.Chat.APIKey = os.ExpandEnv(cfg.Chat.APIKey)

	// Legacy environment variables from the first deployment generation.
	// They predate the CS_ prefix and are still honored so existing
	// installations keep working without config changes.
	if cfg.Storage.MongoURI == "" {
		cfg.Storage.MongoURI = os.Getenv("MONGO_URI")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("API_SECRET_KEY")
	}
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv("TOGETHER_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "300s") // streamed completions hold the response open

	// Storage defaults
	v.SetDefault("storage.mongo_uri", "")
	v.SetDefault("storage.mongo_database", "codesupporter")
	v.SetDefault("storage.connect_timeout", "5s")
	v.SetDefault("storage.data_dir", "./data")

	// Auth defaults
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.min_username_length", 3)
	v.SetDefault("auth.min_password_length", 6)

	// Chat defaults
	v.SetDefault("chat.base_url", "https://api.together.xyz/v1")
	v.SetDefault("chat.model", "meta-llama/Llama-3.3-70B-Instruct-Turbo")
	v.SetDefault("chat.system_prompt",
		"You are a coding assistant helping students with programming exercises. "+
			"Describe the logic and explain how the algorithm works instead of handing "+
			"over code immediately; only provide code directly when the student "+
			"explicitly asks for it. You can also answer general programming questions "+
			"and hold a normal conversation on other topics.")
	v.SetDefault("chat.max_tokens", 1024)
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.timeout", "120s")
	v.SetDefault("chat.history_limit", 10)

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.stats_ttl", "60s")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "code-supporter")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.MongoURI != "" && c.Storage.MongoDatabase == "" {
		return fmt.Errorf("storage.mongo_database is required when storage.mongo_uri is set")
	}

	if c.Auth.MinUsername < 1 {
		return fmt.Errorf("auth.min_username_length must be at least 1")
	}
	if c.Auth.MinPassword < 1 {
		return fmt.Errorf("auth.min_password_length must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
