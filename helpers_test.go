package goPortal

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/goPortal/internal/backendtest"
	"github.com/MrEthical07/goPortal/session"
)

const (
	plainEmail = "plain@b.com"
	mfaEmail   = "a@b.com"
	adminEmail = "admin@b.com"
	password   = "pw"
)

type portalFixture struct {
	backend *backendtest.Server
	srv     *httptest.Server
	storage *session.MemoryStorage
	sink    *ChannelSink
	client  *Client
}

func newPortalFixture(t *testing.T, mutate ...func(*Config)) *portalFixture {
	t.Helper()
	return newPortalFixtureWith(t, backendtest.Config{}, mutate...)
}

func newPortalFixtureWith(t *testing.T, bcfg backendtest.Config, mutate ...func(*Config)) *portalFixture {
	t.Helper()

	backend, err := backendtest.New(bcfg)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	backend.AddAccount(backendtest.Account{
		Identity: session.Identity{ID: "u-plain", FirstName: "Pat", LastName: "Lee", Email: plainEmail},
		Password: password,
	})
	backend.AddAccount(backendtest.Account{
		Identity:  session.Identity{ID: "u-2fa", FirstName: "Ada", Email: mfaEmail},
		Password:  password,
		TwoFactor: true,
	})
	backend.AddAccount(backendtest.Account{
		Identity: session.Identity{ID: "u-admin", FirstName: "Root", Email: adminEmail, AccountVerified: true},
		Password: password,
		Admin:    true,
	})

	f := &portalFixture{
		backend: backend,
		srv:     srv,
		storage: session.NewMemoryStorage(),
		sink:    NewChannelSink(512),
	}
	f.client = f.build(t, mutate...)
	return f
}

func (f *portalFixture) build(t *testing.T, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Transport.BaseURL = f.srv.URL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	for _, fn := range mutate {
		fn(&cfg)
	}

	client, err := New().WithConfig(cfg).WithTokenStorage(f.storage).WithAuditSink(f.sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func (f *portalFixture) login(t *testing.T, email string) Session {
	t.Helper()
	ctx := context.Background()

	flow, err := f.client.NewLoginFlow(nil)
	if err != nil {
		t.Fatalf("NewLoginFlow: %v", err)
	}
	st, err := flow.SubmitCredentials(ctx, email, password)
	if err != nil {
		t.Fatalf("SubmitCredentials(%s): %v", email, err)
	}
	if _, ok := st.(LoginSecondFactorRequired); ok {
		st, err = flow.SubmitSecondFactor(ctx, backendtest.DefaultCode)
		if err != nil {
			t.Fatalf("SubmitSecondFactor: %v", err)
		}
	}
	auth, ok := st.(LoginAuthenticated)
	if !ok {
		t.Fatalf("expected authenticated, got %s", st.Phase())
	}
	return auth.Session
}

// events closes the client to flush the dispatcher and returns what the sink
// received.
func (f *portalFixture) events(t *testing.T) []AuditEvent {
	t.Helper()
	f.client.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-f.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []AuditEvent, eventType string) bool {
	for _, ev := range events {
		if ev.EventType == eventType {
			return true
		}
	}
	return false
}
