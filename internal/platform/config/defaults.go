package config

import "time"

// DefaultConfig returns the configuration used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:           "0.0.0.0",
			Port:         3000,
			MaxBodyBytes: 10 << 20,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		CORS: CORSConfig{
			AllowOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:5500",
				"http://127.0.0.1:5500",
			},
		},
		Relay: RelayConfig{
			Username:        "Sentinel Security Logger",
			PaymentUsername: "Sentinel Payment System",
		},
		RateLimit: RateLimitConfig{
			Limit:  30,
			Window: time.Minute,
			Store: RateStoreConfig{
				Type: "memory",
			},
		},
		Integrity: IntegrityConfig{
			ReloadDelay: 1500 * time.Millisecond,
		},
		AntiDebug: AntiDebugConfig{
			Interval:  4 * time.Second,
			Threshold: 200 * time.Millisecond,
		},
		Storage: StorageConfig{
			Dir:  "data",
			File: "sentinel.db",
		},
		Static: StaticConfig{
			Enabled: true,
			Root:    "./web",
		},
	}
}
