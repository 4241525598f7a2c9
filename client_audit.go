package goPortal

import (
	"context"
	"errors"

	"github.com/MrEthical07/goPortal/internal/audit"
)

const (
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventMFARequired             = "mfa_required"
	auditEventMFASuccess              = "mfa_success"
	auditEventMFAFailure              = "mfa_failure"
	auditEventMFAChallengeExpired     = "mfa_challenge_expired"
	auditEventSessionRestored         = "session_restored"
	auditEventSessionExpired          = "session_expired"
	auditEventLogout                  = "logout"
	auditEventTOTPSetupRequested      = "totp_setup_requested"
	auditEventTOTPEnabled             = "totp_enabled"
	auditEventTOTPDisabled            = "totp_disabled"
	auditEventTOTPVerificationFailure = "totp_verification_failure"
	auditEventProfileUpdated          = "profile_updated"
	auditEventAccountVerificationSent = "account_verification_requested"
	auditEventAdminProbeFailed        = "admin_probe_failed"
)

// AuditErrorCode is the coarse error class recorded on failed events.
type AuditErrorCode string

const (
	auditErrValidation     AuditErrorCode = "validation"
	auditErrCredential     AuditErrorCode = "invalid_credentials"
	auditErrSecondFactor   AuditErrorCode = "second_factor_invalid"
	auditErrVerification   AuditErrorCode = "verification_invalid"
	auditErrSetup          AuditErrorCode = "setup_failed"
	auditErrSessionExpired AuditErrorCode = "session_expired"
	auditErrNoSession      AuditErrorCode = "no_session"
	auditErrPersist        AuditErrorCode = "persist_failed"
	auditErrRequest        AuditErrorCode = "request_failed"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		EventType: eventType,
		UserID:    userID,
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrCredential):
		return auditErrCredential
	case errors.Is(err, ErrSecondFactor):
		return auditErrSecondFactor
	case errors.Is(err, ErrVerification):
		return auditErrVerification
	case errors.Is(err, ErrSetup):
		return auditErrSetup
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrNoSession):
		return auditErrNoSession
	case errors.Is(err, ErrPersist):
		return auditErrPersist
	case errors.Is(err, ErrUpdate),
		errors.Is(err, ErrRequest),
		errors.Is(err, ErrUnknownStatus):
		return auditErrRequest
	default:
		return auditErrInternal
	}
}
