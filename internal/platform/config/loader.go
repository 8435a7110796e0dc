package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// Loader reads configuration from an optional yaml file, then layers
// environment variables on top. Webhook credentials come only from env.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading from the default config path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      defaultConfigPath,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()
	path := ""

	if data, err := os.ReadFile(l.path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", l.path, err)
		}
		path = l.path
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", l.path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Relay.SecurityWebhookURL = os.Getenv("SECURITY_WEBHOOK_URL")
	cfg.Relay.PaymentWebhookURL = os.Getenv("PAYMENT_WEBHOOK_URL")

	if port := os.Getenv("PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = v
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		if cfg.RateLimit.Store.Redis == nil {
			cfg.RateLimit.Store.Redis = &RedisConfig{}
		}
		cfg.RateLimit.Store.Redis.Addr = addr
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive: %d", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rate window must be positive: %v", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Store.Type == "redis" &&
		(cfg.RateLimit.Store.Redis == nil || cfg.RateLimit.Store.Redis.Addr == "") {
		return fmt.Errorf("redis rate limit store requires an address")
	}
	return nil
}
