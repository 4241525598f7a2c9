package flows

import (
	"context"
	"fmt"
)

// ErrorSet carries host-level sentinel errors used by the flows.
type ErrorSet struct {
	Validation     error
	Credential     error
	SecondFactor   error
	Setup          error
	Verification   error
	InvalidState   error
	Busy           error
	Cancelled      error
	NoSession      error
	SessionExpired error
}

// ErrorFunc builds the error returned for a failed backend call. kind is one
// of the ErrorSet sentinels.
type ErrorFunc func(kind error, op string, cause error) error

// AuditFunc emits an audit event. metadata is evaluated lazily.
type AuditFunc func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)

// Hooks groups the observability callbacks shared by all machines.
type Hooks struct {
	MetricInc func(int)
	EmitAudit AuditFunc
	Debug     func(msg string, args ...any)
}

func (h Hooks) withDefaults() Hooks {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.Debug == nil {
		h.Debug = func(string, ...any) {}
	}
	return h
}

func defaultErrorFunc(kind error, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// isGateError reports whether err signals a missing or expired session.
func (e ErrorSet) isGateError(err error) bool {
	return matches(err, e.SessionExpired) || matches(err, e.NoSession)
}
