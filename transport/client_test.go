package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goPortal/internal/backendtest"
	"github.com/MrEthical07/goPortal/middleware"
	"github.com/MrEthical07/goPortal/session"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type transportFixture struct {
	backend  *backendtest.Server
	store    *session.Store
	client   *Client
	recorder *tracetest.SpanRecorder
}

func newTransportFixture(t *testing.T) *transportFixture {
	t.Helper()
	return newTransportFixtureWith(t, backendtest.Config{})
}

func newTransportFixtureWith(t *testing.T, cfg backendtest.Config) *transportFixture {
	t.Helper()
	backend, err := backendtest.New(cfg)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	backend.AddAccount(backendtest.Account{
		Identity: session.Identity{ID: "u-plain", FirstName: "Pat", Email: "plain@b.com"},
		Password: "pw",
	})
	backend.AddAccount(backendtest.Account{
		Identity:  session.Identity{ID: "u-2fa", FirstName: "Ada", Email: "a@b.com"},
		Password:  "pw",
		TwoFactor: true,
	})

	store := session.NewStore(nil)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	httpClient := &http.Client{Transport: middleware.NewGate(nil, store), Timeout: 5 * time.Second}
	client, err := New(srv.URL, httpClient, WithTracerProvider(tp))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &transportFixture{backend: backend, store: store, client: client, recorder: recorder}
}

func (f *transportFixture) login(t *testing.T) {
	t.Helper()
	res, err := f.client.Login(context.Background(), "plain@b.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.store.Commit(context.Background(), session.Session{Token: res.Token, User: res.User}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestLoginWithoutSecondFactor(t *testing.T) {
	f := newTransportFixture(t)
	res, err := f.client.Login(context.Background(), "plain@b.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.RequiresSecondFactor() || res.User.ID != "u-plain" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLoginRejectedCarriesServerMessage(t *testing.T) {
	f := newTransportFixture(t)
	_, err := f.client.Login(context.Background(), "plain@b.com", "wrong")
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || err.Error() != "Invalid email or password" {
		t.Fatalf("unexpected error %d %q", apiErr.Status, err.Error())
	}
}

func TestTwoFactorLoginChallengeLifecycle(t *testing.T) {
	f := newTransportFixture(t)
	ctx := context.Background()

	res, err := f.client.Login(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.RequiresSecondFactor() {
		t.Fatalf("expected challenge, got %+v", res)
	}

	_, err = f.client.CompleteTwoFactorLogin(ctx, res.ChallengeToken, "999999")
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Terminal() {
		t.Fatalf("wrong code must be retryable, got %v", err)
	}

	done, err := f.client.CompleteTwoFactorLogin(ctx, res.ChallengeToken, backendtest.DefaultCode)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Token == "" || done.User.ID != "u-2fa" {
		t.Fatalf("unexpected completion %+v", done)
	}

	_, err = f.client.CompleteTwoFactorLogin(ctx, res.ChallengeToken, backendtest.DefaultCode)
	apiErr, ok = AsAPIError(err)
	if !ok || !apiErr.Terminal() {
		t.Fatalf("reused challenge must be terminal, got %v", err)
	}
}

func TestSessionCallsRequireSession(t *testing.T) {
	f := newTransportFixture(t)
	if _, err := f.client.TwoFactorStatus(context.Background()); !errors.Is(err, middleware.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if f.backend.Calls("GET /auth/2fa/status") != 0 {
		t.Fatal("expected no request without session")
	}
}

func TestTwoFactorEnrollmentCalls(t *testing.T) {
	f := newTransportFixture(t)
	f.login(t)
	ctx := context.Background()

	enabled, err := f.client.TwoFactorStatus(ctx)
	if err != nil || enabled {
		t.Fatalf("status: enabled=%v err=%v", enabled, err)
	}
	material, err := f.client.SetupTwoFactor(ctx)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if material.ManualEntryKey == "" || !strings.HasPrefix(material.QRCode, "otpauth://") {
		t.Fatalf("unexpected material %+v", material)
	}
	if err := f.client.VerifyTwoFactorSetup(ctx, "000000"); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := f.client.VerifyTwoFactorSetup(ctx, backendtest.DefaultCode); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !f.backend.TwoFactorEnabled("plain@b.com") {
		t.Fatal("expected backend flag enabled")
	}
	if err := f.client.DisableTwoFactor(ctx, backendtest.DefaultCode); err != nil {
		t.Fatalf("disable: %v", err)
	}
}

func TestExpiredTokenClearsStore(t *testing.T) {
	f := newTransportFixture(t)
	f.login(t)
	token, _ := f.store.Token()
	f.backend.Revoke(token)

	_, err := f.client.CurrentUser(context.Background())
	if err != middleware.ErrSessionExpired {
		t.Fatalf("expected bare ErrSessionExpired, got %v", err)
	}
	if _, ok := f.store.Current(); ok {
		t.Fatal("expected store cleared")
	}
}

func TestProfileAndVerification(t *testing.T) {
	f := newTransportFixture(t)
	f.login(t)
	ctx := context.Background()

	last := "Lovelace"
	id, err := f.client.UpdateProfile(ctx, session.IdentityPatch{LastName: &last})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if id.LastName != "Lovelace" || id.FirstName != "Pat" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if err := f.client.RequestAccountVerification(ctx); err != nil {
		t.Fatalf("verification: %v", err)
	}
	if f.backend.VerificationEmailsSent("plain@b.com") != 1 {
		t.Fatal("expected one verification email")
	}
}

func TestUpdateProfileAcceptsEmptyAck(t *testing.T) {
	f := newTransportFixtureWith(t, backendtest.Config{EmptyProfileAck: true})
	f.login(t)

	last := "Lovelace"
	id, err := f.client.UpdateProfile(context.Background(), session.IdentityPatch{LastName: &last})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !id.Empty() {
		t.Fatalf("expected zero identity for a bodiless ack, got %+v", id)
	}
}

func TestEmptyBodyRejectedForRequiredTarget(t *testing.T) {
	f := newTransportFixtureWith(t, backendtest.Config{EmptyProfileAck: true})
	f.login(t)

	last := "Lovelace"
	var out session.Identity
	ctx := middleware.RequireSession(context.Background())
	err := f.client.call(ctx, "update_profile", http.MethodPatch, f.client.paths.Profile, session.IdentityPatch{LastName: &last}, &out)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestProbeAdmin(t *testing.T) {
	f := newTransportFixture(t)
	f.login(t)
	admin, err := f.client.ProbeAdmin(context.Background())
	if err != nil || admin {
		t.Fatalf("expected not admin, admin=%v err=%v", admin, err)
	}
}

func TestSpansDoNotCarryCredentials(t *testing.T) {
	f := newTransportFixture(t)
	_, _ = f.client.Login(context.Background(), "plain@b.com", "pw")

	spans := f.recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "portal.login" {
		t.Fatalf("unexpected spans %d", len(spans))
	}
	for _, attr := range spans[0].Attributes() {
		if v := attr.Value.Emit(); strings.Contains(v, "plain@b.com") || v == "pw" {
			t.Fatalf("span attribute %s leaks credentials", attr.Key)
		}
	}
}

func TestObserverSeesEveryCall(t *testing.T) {
	f := newTransportFixture(t)
	var ops []string
	f.client.observe = func(op string, _ time.Duration, _ error) { ops = append(ops, op) }
	_, _ = f.client.Login(context.Background(), "plain@b.com", "bad")
	if len(ops) != 1 || ops[0] != "login" {
		t.Fatalf("unexpected observed ops %v", ops)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "http://", "::"} {
		if _, err := New(u, nil); err == nil {
			t.Fatalf("expected error for %q", u)
		}
	}
}

func TestAPIErrorTerminal(t *testing.T) {
	cases := []struct {
		err  *APIError
		want bool
	}{
		{&APIError{Status: http.StatusGone}, true},
		{&APIError{Status: http.StatusBadRequest, Code: CodeChallengeExpired}, true},
		{&APIError{Status: http.StatusBadRequest, Code: CodeInvalidCode}, false},
		{&APIError{Status: http.StatusUnauthorized}, false},
	}
	for i, tc := range cases {
		if got := tc.err.Terminal(); got != tc.want {
			t.Fatalf("case %d: Terminal()=%v want %v", i, got, tc.want)
		}
	}
}
