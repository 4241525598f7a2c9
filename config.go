package goPortal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goPortal/session"
	"github.com/MrEthical07/goPortal/transport"
)

// Config holds every Client setting. Start from [DefaultConfig].
type Config struct {
	Transport  TransportConfig
	Session    SessionConfig
	Gate       GateConfig
	TwoFactor  TwoFactorConfig
	Capability CapabilityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig describes the backend connection.
type TransportConfig struct {
	BaseURL   string
	Timeout   time.Duration // applied when the supplied http.Client has none
	UserAgent string
	Paths     transport.Paths
}

/*
====================================
SESSION CONFIG
====================================
*/

// StorageKind selects the durable token storage.
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageFile   StorageKind = "file"
	StorageRedis  StorageKind = "redis"
)

// SessionConfig controls where the bearer token is persisted. A storage
// passed to [Builder.WithTokenStorage] overrides Storage.
type SessionConfig struct {
	TokenKey    string
	Storage     StorageKind
	Dir         string        // file storage directory
	RedisPrefix string        // redis key prefix
	RedisTTL    time.Duration // 0 keeps the key until cleared
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig controls expired-session detection.
type GateConfig struct {
	ExpiredStatuses []int
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls TOTP code validation before any network call.
type TwoFactorConfig struct {
	CodeDigits int
}

/*
====================================
CAPABILITY CONFIG
====================================
*/

// CapabilityConfig controls how admin capability is determined when neither
// the identity nor the token claims it.
type CapabilityConfig struct {
	AdminCapability string
	ProbeEnabled    bool
	ProbeTimeout    time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a config with in-memory token storage. BaseURL must
// still be set.
func DefaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			Timeout:   15 * time.Second,
			UserAgent: "goPortal",
			Paths:     transport.DefaultPaths,
		},
		Session: SessionConfig{
			TokenKey:    session.DefaultTokenKey,
			Storage:     StorageMemory,
			RedisPrefix: "portal",
		},
		Gate: GateConfig{
			ExpiredStatuses: []int{401},
		},
		TwoFactor: TwoFactorConfig{
			CodeDigits: 6,
		},
		Capability: CapabilityConfig{
			AdminCapability: session.CapabilityAdmin,
			ProbeEnabled:    true,
			ProbeTimeout:    5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Gate.ExpiredStatuses != nil {
		out.Gate.ExpiredStatuses = append([]int(nil), cfg.Gate.ExpiredStatuses...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Transport
	if strings.TrimSpace(c.Transport.BaseURL) == "" {
		return errors.New("Transport BaseURL must be set")
	}
	u, err := url.Parse(strings.TrimSpace(c.Transport.BaseURL))
	if err != nil {
		return fmt.Errorf("Transport BaseURL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Transport BaseURL must use http or https")
	}
	if u.Host == "" {
		return errors.New("Transport BaseURL must include a host")
	}
	if c.Transport.Timeout < 0 {
		return errors.New("Transport Timeout must be >= 0")
	}

	// Session
	key := strings.TrimSpace(c.Session.TokenKey)
	if key == "" {
		return errors.New("Session TokenKey must be set")
	}
	if strings.ContainsAny(key, `/\`) {
		return errors.New("Session TokenKey must not contain path separators")
	}
	switch c.Session.Storage {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(c.Session.Dir) == "" {
			return errors.New("Session Dir must be set for file storage")
		}
	case StorageRedis:
		if strings.TrimSpace(c.Session.RedisPrefix) == "" {
			return errors.New("Session RedisPrefix must be set for redis storage")
		}
	default:
		return fmt.Errorf("Session Storage %q is not supported", c.Session.Storage)
	}
	if c.Session.RedisTTL < 0 {
		return errors.New("Session RedisTTL must be >= 0")
	}

	// Gate
	if len(c.Gate.ExpiredStatuses) == 0 {
		return errors.New("Gate ExpiredStatuses must not be empty")
	}
	for _, s := range c.Gate.ExpiredStatuses {
		if s < 400 || s > 599 {
			return fmt.Errorf("Gate ExpiredStatuses entry %d is not an error status", s)
		}
	}

	// Two-factor
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("TwoFactor CodeDigits must be between 6 and 10")
	}

	// Capability
	if strings.TrimSpace(c.Capability.AdminCapability) == "" {
		return errors.New("Capability AdminCapability must be set")
	}
	if c.Capability.ProbeTimeout < 0 {
		return errors.New("Capability ProbeTimeout must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
