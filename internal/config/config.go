// Package config provides environment configuration for the companion service and CLI.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`

	// Analysis backend
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://127.0.0.1:8000"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"60s"`

	// Synchronization timing
	QuietPeriod       time.Duration `env:"QUIET_PERIOD" envDefault:"3s"`
	PopupRefreshDelay time.Duration `env:"POPUP_REFRESH_DELAY" envDefault:"1s"`
	ListRefreshDelay  time.Duration `env:"LIST_REFRESH_DELAY" envDefault:"500ms"`

	// Summary cache
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"sqlite"`
	CachePath    string `env:"CACHE_PATH" envDefault:"clausebit-cache.db"`

	// NATS settings; an empty URL disables NATS.
	NATSURL      string `env:"NATS_URL"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`

	// Identity
	JWTSecret   string `env:"JWT_SECRET"`
	RequireAuth bool   `env:"REQUIRE_AUTH" envDefault:"false"`

	// CORS
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"chrome-extension://*,https://*,http://*"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"120"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheMemory, CacheSQLite:
	case CacheNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("CACHE_BACKEND=nats requires NATS_URL")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.QuietPeriod < 0 || c.PopupRefreshDelay < 0 || c.ListRefreshDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	return nil
}
