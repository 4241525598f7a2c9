package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	goPortal "github.com/MrEthical07/goPortal"
)

// Config contains command-line client parameters read from PORTAL_*
// environment variables.
type Config struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"15s"`
	LogLevel int           `env:"LOG_LEVEL" envDefault:"0"`
	Session  Session       `envPrefix:"SESSION_"`
	Redis    Redis         `envPrefix:"REDIS_"`
	Audit    Audit         `envPrefix:"AUDIT_"`
	Metrics  bool          `env:"METRICS" envDefault:"false"`
}

// Session contains token storage parameters.
type Session struct {
	Storage  string `env:"STORAGE" envDefault:"file"`
	Dir      string `env:"DIR"`
	TokenKey string `env:"TOKEN_KEY" envDefault:"token"`
}

// Redis contains redis token storage parameters.
type Redis struct {
	Addr   string        `env:"ADDR" envDefault:"localhost:6379"`
	Prefix string        `env:"PREFIX" envDefault:"portal"`
	TTL    time.Duration `env:"TTL" envDefault:"0s"`
}

// Audit contains audit log parameters.
type Audit struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Format  string `env:"FORMAT" envDefault:"log"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PORTAL_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Portal converts cfg into client configuration. stateDir is used for file
// storage when Session.Dir is empty.
func (c *Config) Portal(stateDir string) goPortal.Config {
	out := goPortal.DefaultConfig()
	out.Transport.BaseURL = c.BaseURL
	out.Transport.Timeout = c.Timeout
	out.Session.Storage = goPortal.StorageKind(c.Session.Storage)
	out.Session.TokenKey = c.Session.TokenKey
	out.Session.Dir = c.Session.Dir
	if out.Session.Dir == "" {
		out.Session.Dir = stateDir
	}
	out.Session.RedisPrefix = c.Redis.Prefix
	out.Session.RedisTTL = c.Redis.TTL
	out.Audit.Enabled = c.Audit.Enabled
	out.Metrics.Enabled = c.Metrics
	out.Metrics.EnableLatencyHistograms = c.Metrics
	return out
}
