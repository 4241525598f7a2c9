package goPortal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/goPortal/internal/audit"
	"github.com/MrEthical07/goPortal/middleware"
	"github.com/MrEthical07/goPortal/session"
	"github.com/MrEthical07/goPortal/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Builder assembles a [Client]. A Builder can be built once.
type Builder struct {
	config Config

	redis          *redis.Client
	storage        session.TokenStorage
	httpClient     *http.Client
	auditSink      AuditSink
	logger         *slog.Logger
	tracerProvider trace.TracerProvider

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets the backend base URL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.Transport.BaseURL = baseURL
	return b
}

// WithTokenStorage sets the durable token storage, overriding
// Config.Session.Storage.
func (b *Builder) WithTokenStorage(storage session.TokenStorage) *Builder {
	b.storage = storage
	return b
}

// WithRedis sets the client used when Config.Session.Storage is
// StorageRedis.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient sets the base HTTP client. Its Transport is wrapped by the
// session gate; the client itself is not modified.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the tracer provider for backend call spans. The
// default is the global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the backend latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the config and returns a ready Client. It does no I/O; call
// [Client.Hydrate] to restore a persisted session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- TOKEN STORAGE --------
	storage, err := b.tokenStorage(cfg.Session)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		store:   session.NewStore(storage),
	}

	// -------- GATE + TRANSPORT --------
	gate := func(next http.RoundTripper) http.RoundTripper {
		return middleware.NewGate(next, c.store,
			middleware.WithExpiredStatuses(cfg.Gate.ExpiredStatuses...),
			middleware.WithExpiredHook(c.onSessionExpired),
			middleware.WithLogger(logger),
		)
	}
	httpClient := &http.Client{Timeout: cfg.Transport.Timeout}
	if b.httpClient != nil {
		hc := *b.httpClient
		if hc.Timeout == 0 {
			hc.Timeout = cfg.Transport.Timeout
		}
		httpClient = &hc
	}
	httpClient.Transport = gate(httpClient.Transport)

	opts := []transport.Option{
		transport.WithPaths(cfg.Transport.Paths),
		transport.WithUserAgent(cfg.Transport.UserAgent),
		transport.WithObserver(c.observeCall),
	}
	if b.tracerProvider != nil {
		opts = append(opts, transport.WithTracerProvider(b.tracerProvider))
	}
	api, err := transport.New(cfg.Transport.BaseURL, httpClient, opts...)
	if err != nil {
		return nil, err
	}
	c.api = api

	// -------- AUDIT --------
	c.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	c.unsubscribe = c.store.OnChange(c.onSessionChange)

	b.built = true
	return c, nil
}

func (b *Builder) tokenStorage(cfg SessionConfig) (session.TokenStorage, error) {
	if b.storage != nil {
		return b.storage, nil
	}
	switch cfg.Storage {
	case StorageFile:
		fs, err := session.NewFileStorage(cfg.Dir, cfg.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("file token storage: %w", err)
		}
		return fs, nil
	case StorageRedis:
		if b.redis == nil {
			return nil, errors.New("redis token storage requires a redis client")
		}
		return session.NewRedisStorage(b.redis, cfg.RedisPrefix, cfg.TokenKey, cfg.RedisTTL), nil
	default:
		return session.NewMemoryStorage(), nil
	}
}
