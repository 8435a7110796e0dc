package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	Relay     RelayConfig     `yaml:"relay"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Integrity IntegrityConfig `yaml:"integrity"`
	AntiDebug AntiDebugConfig `yaml:"anti_debug"`
	Storage   StorageConfig   `yaml:"storage"`
	Static    StaticConfig    `yaml:"static"`
}

type ServerConfig struct {
	IP           string `yaml:"ip"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

// RelayConfig carries the external messaging channel settings. The webhook
// URLs are credentials and are only ever read from the environment, never
// from the config file and never shipped to a page.
type RelayConfig struct {
	SecurityWebhookURL string `yaml:"-"`
	PaymentWebhookURL  string `yaml:"-"`
	Username           string `yaml:"username"`
	PaymentUsername    string `yaml:"payment_username"`
}

type RateLimitConfig struct {
	Limit  int             `yaml:"limit"`
	Window time.Duration   `yaml:"window"`
	Store  RateStoreConfig `yaml:"store"`
}

type RateStoreConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type IntegrityConfig struct {
	ReloadDelay time.Duration `yaml:"reload_delay"`
}

type AntiDebugConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
}

type StorageConfig struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
}

type StaticConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

// Duration fields are written as strings like "30s" in yaml, which the yaml
// package cannot decode into time.Duration on its own. The unmarshalers below
// parse them by hand and leave absent fields at their defaults.

func parseDurationField(raw *string, target *time.Duration) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return err
	}
	*target = d
	return nil
}

func (c *RateLimitConfig) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		Limit  *int             `yaml:"limit"`
		Window *string          `yaml:"window"`
		Store  *RateStoreConfig `yaml:"store"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	if aux.Limit != nil {
		c.Limit = *aux.Limit
	}
	if aux.Store != nil {
		c.Store = *aux.Store
	}
	return parseDurationField(aux.Window, &c.Window)
}

func (c *IntegrityConfig) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		ReloadDelay *string `yaml:"reload_delay"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	return parseDurationField(aux.ReloadDelay, &c.ReloadDelay)
}

func (c *AntiDebugConfig) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		Interval  *string `yaml:"interval"`
		Threshold *string `yaml:"threshold"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	if err := parseDurationField(aux.Interval, &c.Interval); err != nil {
		return err
	}
	return parseDurationField(aux.Threshold, &c.Threshold)
}
