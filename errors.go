package goPortal

import (
	"errors"

	"github.com/MrEthical07/goPortal/middleware"
	"github.com/MrEthical07/goPortal/session"
	"github.com/MrEthical07/goPortal/transport"
)

var (
	// ErrValidation is returned for input rejected before any network call.
	ErrValidation = errors.New("invalid input")
	// ErrCredential is returned when the backend rejects email and password.
	ErrCredential = errors.New("credentials rejected")
	// ErrSecondFactor is returned when the backend rejects a login TOTP code.
	ErrSecondFactor = errors.New("second factor rejected")
	// ErrSetup is returned when the backend cannot start 2FA enrollment.
	ErrSetup = errors.New("two-factor setup failed")
	// ErrVerification is returned when an enable or disable code is rejected.
	ErrVerification = errors.New("verification code rejected")
	// ErrUpdate is returned when a profile update is rejected.
	ErrUpdate = errors.New("profile update failed")
	// ErrRequest is returned when a plain session request fails.
	ErrRequest = errors.New("request failed")
	// ErrUnknownStatus is returned when the 2FA status cannot be fetched.
	ErrUnknownStatus = errors.New("two-factor status unknown")
	// ErrFlowBusy is returned when a flow already has a call in flight.
	ErrFlowBusy = errors.New("operation already in progress")
	// ErrInvalidState is returned for operations not accepted in the current
	// phase.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrFlowCancelled is returned to the caller of a call whose response
	// arrived after Reset or Cancel.
	ErrFlowCancelled = errors.New("operation cancelled")
	// ErrClientNotReady is returned by methods on a nil or closed Client.
	ErrClientNotReady = errors.New("client not initialized")

	// ErrNoSession is returned when an operation needs a session and none is
	// active.
	ErrNoSession = session.ErrNoSession
	// ErrSessionExpired is returned after the backend rejected the session
	// token. The session has already been cleared.
	ErrSessionExpired = middleware.ErrSessionExpired
	// ErrPersist is returned when the token could not be written to durable
	// storage.
	ErrPersist = session.ErrPersist
)

// Error is a failed backend operation. Error() returns the server message
// verbatim when there is one. errors.Is matches both Kind and the cause.
type Error struct {
	Kind    error
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newError builds the error for a failed operation of kind. Gate errors are
// returned bare so callers can tell an expired session from a rejection.
func newError(kind error, op string, cause error) error {
	if isGateError(cause) {
		return gateError(cause)
	}
	e := &Error{Kind: kind, Op: op, Err: cause}
	if apiErr, ok := transport.AsAPIError(cause); ok {
		e.Status = apiErr.Status
		e.Code = apiErr.Code
		e.Message = apiErr.Message
	}
	return e
}

func isGateError(err error) bool {
	return err != nil && (errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNoSession))
}

func gateError(err error) error {
	if errors.Is(err, ErrSessionExpired) {
		return ErrSessionExpired
	}
	return ErrNoSession
}

// ServerMessage returns the backend message carried by err, if any.
func ServerMessage(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message, true
	}
	if apiErr, ok := transport.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}
