package goPortal

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goPortal/internal/audit"
	"github.com/MrEthical07/goPortal/jwt"
	"github.com/MrEthical07/goPortal/session"
	"github.com/MrEthical07/goPortal/transport"
)

// Identity is the authenticated user.
type Identity = session.Identity

// IdentityPatch lists the profile fields to change. Nil fields are left
// alone.
type IdentityPatch = session.IdentityPatch

// Session is the active bearer token and its identity.
type Session = session.Session

// TokenClaims are the unverified claims of the session token.
type TokenClaims = jwt.Claims

// Client is the portal client: login and 2FA flows, the session store and
// every session-gated backend call. Methods are safe for concurrent use.
type Client struct {
	config  Config
	store   *session.Store
	api     *transport.Client
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger

	adminMu    sync.Mutex
	adminToken string
	adminValue bool

	unsubscribe func()
	closed      atomic.Bool
}

func (c *Client) ready() error {
	if c == nil || c.api == nil || c.closed.Load() {
		return ErrClientNotReady
	}
	return nil
}

// Close flushes pending audit events and detaches internal observers. The
// persisted session is left in place.
func (c *Client) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.audit.Close()
}

// AuditDropped returns the number of audit events dropped by the dispatcher.
func (c *Client) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns a copy of the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return c.metrics.Snapshot()
}

// Session returns the active session.
func (c *Client) Session() (Session, bool) {
	if c == nil || c.store == nil {
		return Session{}, false
	}
	return c.store.Current()
}

// OnSessionChange registers fn to run after every session change. present is
// false once the session was cleared. The returned function unregisters fn.
func (c *Client) OnSessionChange(fn func(s Session, present bool)) func() {
	if c == nil || c.store == nil || fn == nil {
		return func() {}
	}
	return c.store.OnChange(session.ChangeFunc(fn))
}

// Hydrate restores a persisted token. The restored session has no identity
// and is not validated until the first authorized call, see
// [Client.LoadIdentity].
func (c *Client) Hydrate(ctx context.Context) (Session, bool, error) {
	if err := c.ready(); err != nil {
		return Session{}, false, err
	}
	sess, ok, err := c.store.Hydrate(ctx)
	if err != nil {
		c.logger.Warn("session restore failed", "error", err)
		return Session{}, false, err
	}
	if ok && sess.Restored {
		c.metrics.Inc(MetricSessionRestored)
		c.emitAudit(ctx, auditEventSessionRestored, true, "", nil, nil)
		c.logger.Debug("session restored from storage")
	}
	return sess, ok, nil
}

// Logout tells the backend the token is no longer used and clears the local
// session. The backend answer is best effort; only a local clear failure is
// returned.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	sess, ok := c.store.Current()
	if !ok {
		return c.store.Clear(ctx)
	}
	if err := c.api.Logout(ctx); err != nil && !isGateError(err) {
		c.logger.Warn("logout acknowledgement failed", "error", err)
	}
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("session clear failed", "error", err)
		return err
	}
	c.emitAudit(ctx, auditEventLogout, true, sess.User.ID, nil, nil)
	return nil
}

// Do sends a session-gated request for any other backend resource and
// decodes a JSON answer into out when out is non-nil. It fails with
// ErrNoSession without an active session.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.api.Do(ctx, method, path, body, out); err != nil {
		return newError(ErrRequest, "request", err)
	}
	return nil
}

// TokenInfo returns the claims of the session token without verifying its
// signature. Use it for display only; the backend remains the authority.
func (c *Client) TokenInfo() (TokenClaims, error) {
	if err := c.ready(); err != nil {
		return TokenClaims{}, err
	}
	token, ok := c.store.Token()
	if !ok {
		return TokenClaims{}, ErrNoSession
	}
	return jwt.Inspect(token)
}

func (c *Client) commit(ctx context.Context, sess Session) error {
	if err := c.store.Commit(ctx, sess); err != nil {
		c.logger.Warn("session commit failed", "error", err)
		return err
	}
	c.metrics.Inc(MetricSessionCommitted)
	return nil
}

func (c *Client) onSessionExpired(ctx context.Context, cleared bool) {
	c.metrics.Inc(MetricSessionExpired)
	c.emitAudit(ctx, auditEventSessionExpired, false, "", ErrSessionExpired, func() map[string]string {
		return map[string]string{"cleared": strconv.FormatBool(cleared)}
	})
}

func (c *Client) onSessionChange(s Session, present bool) {
	c.adminMu.Lock()
	if !present || s.Token != c.adminToken {
		c.adminToken = ""
		c.adminValue = false
	}
	c.adminMu.Unlock()
	if !present {
		c.metrics.Inc(MetricSessionCleared)
	}
}

func (c *Client) observeCall(op string, d time.Duration, err error) {
	c.metrics.Observe(MetricBackendLatency, d)
	if err != nil && !errors.Is(err, ErrNoSession) {
		c.metrics.Inc(MetricBackendCallFailure)
		c.logger.Debug("backend call failed", "op", op, "duration", d, "error", err)
	}
}

func (c *Client) userID() string {
	sess, ok := c.store.Current()
	if !ok {
		return ""
	}
	return sess.User.ID
}

func (c *Client) hasSession() bool {
	_, ok := c.store.Token()
	return ok
}

func (c *Client) debug(msg string, args ...any) {
	c.logger.Debug(msg, args...)
}
