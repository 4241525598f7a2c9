package goPortal

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/goPortal/internal/backendtest"
)

func strPtr(s string) *string { return &s }

func TestUpdateProfileWritesThrough(t *testing.T) {
	f := newPortalFixture(t)
	f.login(t, plainEmail)

	updated, err := f.client.UpdateProfile(context.Background(), IdentityPatch{FirstName: strPtr("Patricia")})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.FirstName != "Patricia" || updated.LastName != "Lee" {
		t.Fatalf("unexpected identity: %+v", updated)
	}
	sess, _ := f.client.Session()
	if sess.User.FirstName != "Patricia" {
		t.Fatal("expected stored identity updated")
	}

	events := f.events(t)
	for _, ev := range events {
		if ev.EventType == auditEventProfileUpdated && ev.Success {
			if ev.Metadata["fields"] != "firstName" {
				t.Fatalf("unexpected fields metadata %q", ev.Metadata["fields"])
			}
			return
		}
	}
	t.Fatal("missing profile_updated event")
}

func TestUpdateProfileEmptyAckMergesLocally(t *testing.T) {
	f := newPortalFixtureWith(t, backendtest.Config{EmptyProfileAck: true})
	f.login(t, plainEmail)

	updated, err := f.client.UpdateProfile(context.Background(), IdentityPatch{FirstName: strPtr("Patricia")})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.FirstName != "Patricia" || updated.LastName != "Lee" || updated.ID != "u-plain" {
		t.Fatalf("expected patch merged into the stored identity, got %+v", updated)
	}
	sess, _ := f.client.Session()
	if sess.User.FirstName != "Patricia" || sess.User.Email != plainEmail {
		t.Fatalf("session identity not written through: %+v", sess.User)
	}
	if got := f.client.MetricsSnapshot().Counters[MetricProfileUpdated]; got != 1 {
		t.Fatalf("expected one profile update counted, got %d", got)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	f := newPortalFixture(t)
	f.login(t, plainEmail)
	verified := true

	for name, patch := range map[string]IdentityPatch{
		"empty":         {},
		"blank name":    {FirstName: strPtr("  ")},
		"blank email":   {Email: strPtr("")},
		"bad email":     {Email: strPtr("nope")},
		"verified only": {AccountVerified: &verified},
	} {
		if _, err := f.client.UpdateProfile(context.Background(), patch); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}
	if n := f.backend.Calls("PATCH /users/me"); n != 0 {
		t.Fatalf("expected no PATCH calls, got %d", n)
	}
}

func TestUpdateProfileConflictKeepsIdentity(t *testing.T) {
	f := newPortalFixture(t)
	before := f.login(t, plainEmail)

	_, err := f.client.UpdateProfile(context.Background(), IdentityPatch{Email: strPtr(mfaEmail)})
	if !errors.Is(err, ErrUpdate) {
		t.Fatalf("expected ErrUpdate, got %v", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Status != http.StatusConflict {
		t.Fatalf("expected 409 error, got %#v", err)
	}
	if err.Error() != "Email address is already in use" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	sess, ok := f.client.Session()
	if !ok || sess.User.Email != before.User.Email {
		t.Fatal("failed update must leave the identity unchanged")
	}
}

func TestUpdateProfileWithoutSession(t *testing.T) {
	f := newPortalFixture(t)
	if _, err := f.client.UpdateProfile(context.Background(), IdentityPatch{FirstName: strPtr("X")}); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRequestAccountVerification(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	f.login(t, plainEmail)

	if err := f.client.RequestAccountVerification(ctx); err != nil {
		t.Fatalf("RequestAccountVerification: %v", err)
	}
	if n := f.backend.VerificationEmailsSent(plainEmail); n != 1 {
		t.Fatalf("expected one email, got %d", n)
	}

	admin := newPortalFixture(t)
	admin.login(t, adminEmail)
	err := admin.client.RequestAccountVerification(ctx)
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest for verified account, got %v", err)
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		f := newPortalFixture(t)
		if _, err := f.client.IsAdmin(ctx); err != ErrNoSession {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
	})

	t.Run("admin from capability", func(t *testing.T) {
		f := newPortalFixture(t)
		f.login(t, adminEmail)
		ok, err := f.client.IsAdmin(ctx)
		if err != nil || !ok {
			t.Fatalf("expected admin, got %v (%v)", ok, err)
		}
		if n := f.backend.Calls("GET /admin/users"); n != 0 {
			t.Fatalf("expected no probe, got %d", n)
		}
	})

	t.Run("plain user probed once", func(t *testing.T) {
		f := newPortalFixture(t)
		f.login(t, plainEmail)
		for i := 0; i < 3; i++ {
			ok, err := f.client.IsAdmin(ctx)
			if err != nil || ok {
				t.Fatalf("expected not admin, got %v (%v)", ok, err)
			}
		}
		if n := f.backend.Calls("GET /admin/users"); n != 1 {
			t.Fatalf("expected one probe, got %d", n)
		}
	})

	t.Run("cached answer survives profile update", func(t *testing.T) {
		f := newPortalFixture(t)
		f.login(t, plainEmail)
		if ok, err := f.client.IsAdmin(ctx); err != nil || ok {
			t.Fatalf("expected not admin, got %v (%v)", ok, err)
		}
		if _, err := f.client.UpdateProfile(ctx, IdentityPatch{LastName: strPtr("Lin")}); err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if ok, err := f.client.IsAdmin(ctx); err != nil || ok {
			t.Fatalf("expected not admin, got %v (%v)", ok, err)
		}
		if n := f.backend.Calls("GET /admin/users"); n != 1 {
			t.Fatalf("identity patch must not reset the probe cache, got %d probes", n)
		}

		f.login(t, plainEmail)
		if _, err := f.client.IsAdmin(ctx); err != nil {
			t.Fatalf("IsAdmin: %v", err)
		}
		if n := f.backend.Calls("GET /admin/users"); n != 2 {
			t.Fatalf("new token must probe again, got %d probes", n)
		}
	})

	t.Run("probe disabled", func(t *testing.T) {
		f := newPortalFixture(t, func(cfg *Config) { cfg.Capability.ProbeEnabled = false })
		f.login(t, plainEmail)
		ok, err := f.client.IsAdmin(ctx)
		if err != nil || ok {
			t.Fatalf("expected not admin, got %v (%v)", ok, err)
		}
		if n := f.backend.Calls("GET /admin/users"); n != 0 {
			t.Fatalf("expected no probe, got %d", n)
		}
	})

	t.Run("probe failure degrades", func(t *testing.T) {
		f := newPortalFixture(t, func(cfg *Config) { cfg.Capability.ProbeTimeout = 20 * time.Millisecond })
		f.login(t, plainEmail)
		release := make(chan struct{})
		defer close(release)
		f.backend.OnRoute("GET /admin/users", func() { <-release })

		ok, err := f.client.IsAdmin(ctx)
		if err != nil || ok {
			t.Fatalf("expected degraded false, got %v (%v)", ok, err)
		}
		if f.client.MetricsSnapshot().Counters[MetricAdminProbeFailure] != 1 {
			t.Fatal("expected admin probe failure counter")
		}
		if _, ok := f.client.Session(); !ok {
			t.Fatal("probe failure must not clear the session")
		}
	})
}
