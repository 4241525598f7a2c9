package goPortal

import (
	"context"
	"strings"

	"github.com/MrEthical07/goPortal/jwt"
)

// UpdateProfile sends the changed fields and writes the stored identity
// through to the session. An empty patch, or a blank email or name, fails
// with ErrValidation without a network call.
func (c *Client) UpdateProfile(ctx context.Context, patch IdentityPatch) (Identity, error) {
	if err := c.ready(); err != nil {
		return Identity{}, err
	}
	// Verification status is owned by the backend.
	patch.AccountVerified = nil
	if err := validatePatch(patch); err != nil {
		return Identity{}, err
	}
	cur, ok := c.store.Current()
	if !ok {
		return Identity{}, ErrNoSession
	}

	updated, err := c.api.UpdateProfile(ctx, patch)
	if err != nil {
		err = newError(ErrUpdate, "update_profile", err)
		c.emitAudit(ctx, auditEventProfileUpdated, false, cur.User.ID, err, nil)
		return Identity{}, err
	}

	if updated.Empty() {
		// Backend acknowledged without a body; merge locally.
		updated, err = c.store.PatchIdentity(patch)
	} else {
		if updated.Capabilities == nil {
			updated.Capabilities = cur.User.Capabilities
		}
		err = c.store.SetIdentity(updated)
	}
	if err != nil {
		return Identity{}, err
	}

	c.metrics.Inc(MetricProfileUpdated)
	c.emitAudit(ctx, auditEventProfileUpdated, true, updated.ID, nil, func() map[string]string {
		return map[string]string{"fields": changedFields(patch)}
	})
	return updated, nil
}

// RequestAccountVerification asks the backend to send a verification email.
func (c *Client) RequestAccountVerification(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.api.RequestAccountVerification(ctx); err != nil {
		return newError(ErrRequest, "request_account_verification", err)
	}
	c.emitAudit(ctx, auditEventAccountVerificationSent, true, c.userID(), nil, nil)
	return nil
}

// LoadIdentity fetches the session user and stores it. For a restored
// session this is the first authorized call: an expired token clears the
// session and returns ErrSessionExpired.
func (c *Client) LoadIdentity(ctx context.Context) (Identity, error) {
	if err := c.ready(); err != nil {
		return Identity{}, err
	}
	id, err := c.api.CurrentUser(ctx)
	if err != nil {
		return Identity{}, newError(ErrRequest, "get_current_user", err)
	}
	if err := c.store.SetIdentity(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// IsAdmin reports whether the session user may open the admin area. An
// explicit capability on the identity or a role claim on the token is used
// when present. Otherwise, if enabled, an admin-only endpoint is probed; a
// failed probe degrades to false. Only gate errors are returned.
func (c *Client) IsAdmin(ctx context.Context) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	sess, ok := c.store.Current()
	if !ok {
		return false, ErrNoSession
	}
	capability := c.config.Capability.AdminCapability
	if sess.User.HasCapability(capability) {
		return true, nil
	}
	if claims, err := jwt.Inspect(sess.Token); err == nil && claims.HasRole(capability) {
		return true, nil
	}
	if !c.config.Capability.ProbeEnabled {
		return false, nil
	}

	// The probe answer is cached per token and survives identity patches:
	// capabilities on the identity are checked above on every call, so only
	// a new token can change what the probe would say.
	c.adminMu.Lock()
	if c.adminToken == sess.Token {
		v := c.adminValue
		c.adminMu.Unlock()
		return v, nil
	}
	c.adminMu.Unlock()

	probeCtx := ctx
	if t := c.config.Capability.ProbeTimeout; t > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	admin, err := c.api.ProbeAdmin(probeCtx)
	if err != nil {
		if isGateError(err) {
			return false, gateError(err)
		}
		c.metrics.Inc(MetricAdminProbeFailure)
		c.emitAudit(ctx, auditEventAdminProbeFailed, false, sess.User.ID, newError(ErrRequest, "admin_probe", err), nil)
		c.logger.Warn("admin probe failed, treating as not admin", "error", err)
		return false, nil
	}

	c.adminMu.Lock()
	if tok, ok := c.store.Token(); ok && tok == sess.Token {
		c.adminToken = sess.Token
		c.adminValue = admin
	}
	c.adminMu.Unlock()
	return admin, nil
}

func validatePatch(p IdentityPatch) error {
	if p.IsZero() {
		return newError(ErrValidation, "update_profile", nil)
	}
	for _, v := range []*string{p.FirstName, p.LastName, p.Email} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return newError(ErrValidation, "update_profile", nil)
		}
	}
	if p.Email != nil && !strings.Contains(*p.Email, "@") {
		return newError(ErrValidation, "update_profile", nil)
	}
	return nil
}

func changedFields(p IdentityPatch) string {
	var fields []string
	if p.FirstName != nil {
		fields = append(fields, "firstName")
	}
	if p.LastName != nil {
		fields = append(fields, "lastName")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.Phone != nil {
		fields = append(fields, "phone")
	}
	return strings.Join(fields, ",")
}
