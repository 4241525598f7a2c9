package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goPortal/middleware"
	"github.com/MrEthical07/goPortal/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxBodyBytes    = 1 << 20
	tracerName      = "github.com/MrEthical07/goPortal/transport"
	requestIDHeader = "X-Request-ID"
)

// Paths lists the backend endpoints. Zero fields fall back to DefaultPaths.
type Paths struct {
	Login             string
	CompleteLogin     string
	TwoFactorStatus   string
	TwoFactorSetup    string
	TwoFactorVerify   string
	TwoFactorDisable  string
	Profile           string
	VerificationEmail string
	Logout            string
	AdminProbe        string
}

// DefaultPaths are the portal backend routes.
var DefaultPaths = Paths{
	Login:             "/auth/login",
	CompleteLogin:     "/auth/2fa/login",
	TwoFactorStatus:   "/auth/2fa/status",
	TwoFactorSetup:    "/auth/2fa/setup",
	TwoFactorVerify:   "/auth/2fa/verify",
	TwoFactorDisable:  "/auth/2fa/disable",
	Profile:           "/users/me",
	VerificationEmail: "/users/me/verification",
	Logout:            "/auth/logout",
	AdminProbe:        "/admin/users?limit=1",
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&p.Login, d.Login)
	fill(&p.CompleteLogin, d.CompleteLogin)
	fill(&p.TwoFactorStatus, d.TwoFactorStatus)
	fill(&p.TwoFactorSetup, d.TwoFactorSetup)
	fill(&p.TwoFactorVerify, d.TwoFactorVerify)
	fill(&p.TwoFactorDisable, d.TwoFactorDisable)
	fill(&p.Profile, d.Profile)
	fill(&p.VerificationEmail, d.VerificationEmail)
	fill(&p.Logout, d.Logout)
	fill(&p.AdminProbe, d.AdminProbe)
	return p
}

// ObserveFunc receives the duration and outcome of every backend call.
type ObserveFunc func(op string, d time.Duration, err error)

// Option configures a [Client].
type Option func(*Client)

// WithTracerProvider sets the provider used for client spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithPaths overrides backend routes.
func WithPaths(p Paths) Option {
	return func(c *Client) { c.paths = p.withDefaults() }
}

// WithObserver registers fn for call latency and outcome.
func WithObserver(fn ObserveFunc) Option {
	return func(c *Client) { c.observe = fn }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client talks to the portal backend. The supplied http.Client is expected
// to route through a middleware.Gate.
type Client struct {
	base      *url.URL
	http      *http.Client
	paths     Paths
	tracer    trace.Tracer
	observe   ObserveFunc
	userAgent string
}

// New returns a client for baseURL.
func New(baseURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url has no host: %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		base:   base,
		http:   httpClient,
		paths:  DefaultPaths,
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login verifies the first factor.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var resp loginResponse
	err := c.call(middleware.WithoutSession(ctx), "login", http.MethodPost, c.paths.Login,
		loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return LoginResult{}, err
	}
	return resp.result()
}

// CompleteTwoFactorLogin verifies the second factor against a challenge.
func (c *Client) CompleteTwoFactorLogin(ctx context.Context, challenge, code string) (LoginResult, error) {
	var resp loginResponse
	err := c.call(middleware.WithoutSession(ctx), "complete_2fa_login", http.MethodPost, c.paths.CompleteLogin,
		completeLoginRequest{SessionToken: challenge, Code: code}, &resp)
	if err != nil {
		return LoginResult{}, err
	}
	out, err := resp.result()
	if err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, fmt.Errorf("%w: second factor answered without a session token", ErrMalformedResponse)
	}
	return out, nil
}

func (r loginResponse) result() (LoginResult, error) {
	switch {
	case r.Token != "":
		out := LoginResult{Token: r.Token}
		if r.User != nil {
			out.User = *r.User
		}
		return out, nil
	case r.Requires2FA && r.SessionToken != "":
		return LoginResult{ChallengeToken: r.SessionToken}, nil
	case r.Requires2FA:
		return LoginResult{}, fmt.Errorf("%w: second factor required without a challenge token", ErrMalformedResponse)
	default:
		return LoginResult{}, fmt.Errorf("%w: login answered without token or challenge", ErrMalformedResponse)
	}
}

// TwoFactorStatus reports whether 2FA is enabled for the session user.
func (c *Client) TwoFactorStatus(ctx context.Context) (bool, error) {
	var resp statusResponse
	if err := c.call(middleware.RequireSession(ctx), "get_2fa_status", http.MethodGet, c.paths.TwoFactorStatus, nil, &resp); err != nil {
		return false, err
	}
	if resp.Enabled == nil {
		return false, fmt.Errorf("%w: status without enabled flag", ErrMalformedResponse)
	}
	return *resp.Enabled, nil
}

// SetupTwoFactor asks the backend for fresh enrollment material.
func (c *Client) SetupTwoFactor(ctx context.Context) (SetupMaterial, error) {
	var resp setupResponse
	if err := c.call(middleware.RequireSession(ctx), "setup_2fa", http.MethodPost, c.paths.TwoFactorSetup, struct{}{}, &resp); err != nil {
		return SetupMaterial{}, err
	}
	if resp.QRCode == "" && resp.ManualEntryKey == "" {
		return SetupMaterial{}, fmt.Errorf("%w: setup without enrollment material", ErrMalformedResponse)
	}
	return SetupMaterial{QRCode: resp.QRCode, ManualEntryKey: resp.ManualEntryKey}, nil
}

// VerifyTwoFactorSetup confirms enrollment with a TOTP code.
func (c *Client) VerifyTwoFactorSetup(ctx context.Context, code string) error {
	return c.call(middleware.RequireSession(ctx), "verify_2fa_setup", http.MethodPost, c.paths.TwoFactorVerify, codeRequest{Code: code}, nil)
}

// DisableTwoFactor disables 2FA after checking a TOTP code.
func (c *Client) DisableTwoFactor(ctx context.Context, code string) error {
	return c.call(middleware.RequireSession(ctx), "disable_2fa", http.MethodPost, c.paths.TwoFactorDisable, codeRequest{Code: code}, nil)
}

// UpdateProfile sends the changed fields and returns the stored identity. A
// bodiless 2xx ack yields a zero Identity.
func (c *Client) UpdateProfile(ctx context.Context, patch session.IdentityPatch) (session.Identity, error) {
	var out session.Identity
	if err := c.call(middleware.RequireSession(ctx), "update_profile", http.MethodPatch, c.paths.Profile, patch, &optionalBody{out: &out}); err != nil {
		return session.Identity{}, err
	}
	return out, nil
}

// CurrentUser fetches the identity of the session user.
func (c *Client) CurrentUser(ctx context.Context) (session.Identity, error) {
	var out session.Identity
	if err := c.call(middleware.RequireSession(ctx), "get_current_user", http.MethodGet, c.paths.Profile, nil, &out); err != nil {
		return session.Identity{}, err
	}
	if out.ID == "" && out.Email == "" {
		return session.Identity{}, fmt.Errorf("%w: identity without id", ErrMalformedResponse)
	}
	return out, nil
}

// RequestAccountVerification asks the backend to send a verification email.
func (c *Client) RequestAccountVerification(ctx context.Context) error {
	return c.call(middleware.RequireSession(ctx), "request_account_verification", http.MethodPost, c.paths.VerificationEmail, struct{}{}, nil)
}

// Logout tells the backend the token is no longer used.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(middleware.RequireSession(ctx), "logout", http.MethodPost, c.paths.Logout, struct{}{}, nil)
}

// ProbeAdmin calls an admin-only endpoint. 2xx means admin; 403 and 404 mean
// not admin. Any other outcome is returned as an error.
func (c *Client) ProbeAdmin(ctx context.Context) (bool, error) {
	err := c.call(middleware.RequireSession(ctx), "admin_probe", http.MethodGet, c.paths.AdminProbe, nil, nil)
	if err == nil {
		return true, nil
	}
	if apiErr, ok := AsAPIError(err); ok &&
		(apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound) {
		return false, nil
	}
	return false, err
}

// Do sends an arbitrary session-gated request and decodes a JSON answer
// into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.call(middleware.RequireSession(ctx), "request", method, path, body, out)
}

// optionalBody marks a response target that the backend may leave empty.
type optionalBody struct{ out any }

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "portal."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("portal.operation", op),
		),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
		if c.observe != nil {
			c.observe(op, time.Since(start), err)
		}
	}()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unwrapGateError(err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(op, resp.StatusCode, data)
	}
	if opt, ok := out.(*optionalBody); ok {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		out = opt.out
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return fmt.Errorf("%w: %s returned an empty body", ErrMalformedResponse, op)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	target := *c.base
	target.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	target.RawQuery = ref.RawQuery

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set(requestIDHeader, requestIDFromContext(ctx))
	return req, nil
}

func decodeAPIError(op string, status int, data []byte) error {
	apiErr := &APIError{Op: op, Status: status}
	var body errorResponse
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}

func unwrapGateError(err error) error {
	switch {
	case errors.Is(err, middleware.ErrSessionExpired):
		return middleware.ErrSessionExpired
	case errors.Is(err, middleware.ErrNoSession):
		return middleware.ErrNoSession
	default:
		return err
	}
}

type requestIDContextKey struct{}

// WithRequestID sets the X-Request-ID sent with requests made under ctx.
// Without it every request gets a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestID returns the id set with WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func requestIDFromContext(ctx context.Context) string {
	if id := RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
