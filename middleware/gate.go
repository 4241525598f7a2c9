package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/goPortal/session"
)

var (
	// ErrSessionExpired is returned when the backend reports the sent token as
	// invalid or expired. The session has been cleared when it is returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoSession aliases the session package error for gate callers.
	ErrNoSession = session.ErrNoSession
)

// TokenSource is the view of the session store the gate needs.
type TokenSource interface {
	Token() (string, bool)
	ClearIfToken(ctx context.Context, token string) (bool, error)
}

// ExpiredFunc is called after the gate cleared a session. cleared is false
// when a newer session had already replaced the expired token.
type ExpiredFunc func(ctx context.Context, cleared bool)

// Option configures a [Gate].
type Option func(*Gate)

// WithExpiredStatuses replaces the set of statuses treated as an expired
// session. The default is 401.
func WithExpiredStatuses(statuses ...int) Option {
	return func(g *Gate) {
		if len(statuses) == 0 {
			return
		}
		g.expired = make(map[int]struct{}, len(statuses))
		for _, s := range statuses {
			g.expired[s] = struct{}{}
		}
	}
}

// WithExpiredHook registers fn to run once per expired response.
func WithExpiredHook(fn ExpiredFunc) Option {
	return func(g *Gate) { g.onExpired = fn }
}

// WithLogger sets the logger used for expiry and clear failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate attaches the session token to outgoing requests and turns
// expired-session responses into a cleared session plus ErrSessionExpired.
type Gate struct {
	next      http.RoundTripper
	source    TokenSource
	expired   map[int]struct{}
	onExpired ExpiredFunc
	logger    *slog.Logger
}

// NewGate wraps next. A nil next uses http.DefaultTransport.
func NewGate(next http.RoundTripper, source TokenSource, opts ...Option) *Gate {
	if next == nil {
		next = http.DefaultTransport
	}
	g := &Gate{
		next:    next,
		source:  source,
		expired: map[int]struct{}{http.StatusUnauthorized: {}},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RoundTrip implements http.RoundTripper.
func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if skipsSession(ctx) || g.source == nil {
		return g.next.RoundTrip(req)
	}

	token, ok := g.source.Token()
	if !ok {
		if requiresSession(ctx) {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, ErrNoSession
		}
		return g.next.RoundTrip(req)
	}

	out := req.Clone(ctx)
	out.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if _, expired := g.expired[resp.StatusCode]; !expired {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	cleared, clearErr := g.source.ClearIfToken(ctx, token)
	if clearErr != nil {
		g.logger.WarnContext(ctx, "session clear after expiry failed", slog.Any("error", clearErr))
	}
	g.logger.InfoContext(ctx, "session expired",
		slog.Int("status", resp.StatusCode),
		slog.Bool("cleared", cleared),
	)
	if g.onExpired != nil {
		g.onExpired(ctx, cleared)
	}
	return nil, ErrSessionExpired
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
