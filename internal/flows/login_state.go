package flows

import "github.com/MrEthical07/goPortal/session"

// LoginPhase names a phase of the login machine.
type LoginPhase uint8

const (
	PhaseIdle LoginPhase = iota
	PhaseCredentialsSubmitted
	PhaseSecondFactorRequired
	PhaseSecondFactorSubmitted
	PhaseAuthenticated
	PhaseFailed
)

func (p LoginPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCredentialsSubmitted:
		return "credentials_submitted"
	case PhaseSecondFactorRequired:
		return "second_factor_required"
	case PhaseSecondFactorSubmitted:
		return "second_factor_submitted"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoginState is the sealed set of login machine states. Err returns the
// error attached to the state for display, if any.
type LoginState interface {
	Phase() LoginPhase
	Err() error
	loginState()
}

// LoginIdle waits for credentials.
type LoginIdle struct{ err error }

// LoginCredentialsSubmitted waits for the credential verifier.
type LoginCredentialsSubmitted struct{}

// LoginSecondFactorRequired holds a live challenge and waits for a code.
type LoginSecondFactorRequired struct {
	challenge string
	err       error
}

// LoginSecondFactorSubmitted waits for the second-factor verifier.
type LoginSecondFactorSubmitted struct{ challenge string }

// LoginAuthenticated is terminal: the session has been committed.
type LoginAuthenticated struct{ Session session.Session }

// LoginFailed ends an attempt; credentials may be submitted again.
type LoginFailed struct{ err error }

func (LoginIdle) Phase() LoginPhase                  { return PhaseIdle }
func (LoginCredentialsSubmitted) Phase() LoginPhase  { return PhaseCredentialsSubmitted }
func (LoginSecondFactorRequired) Phase() LoginPhase  { return PhaseSecondFactorRequired }
func (LoginSecondFactorSubmitted) Phase() LoginPhase { return PhaseSecondFactorSubmitted }
func (LoginAuthenticated) Phase() LoginPhase         { return PhaseAuthenticated }
func (LoginFailed) Phase() LoginPhase                { return PhaseFailed }

func (s LoginIdle) Err() error                 { return s.err }
func (LoginCredentialsSubmitted) Err() error   { return nil }
func (s LoginSecondFactorRequired) Err() error { return s.err }
func (LoginSecondFactorSubmitted) Err() error  { return nil }
func (LoginAuthenticated) Err() error          { return nil }
func (s LoginFailed) Err() error               { return s.err }

func (LoginIdle) loginState()                  {}
func (LoginCredentialsSubmitted) loginState()  {}
func (LoginSecondFactorRequired) loginState()  {}
func (LoginSecondFactorSubmitted) loginState() {}
func (LoginAuthenticated) loginState()         {}
func (LoginFailed) loginState()                {}

func withoutError(st LoginState) LoginState {
	switch s := st.(type) {
	case LoginIdle:
		return LoginIdle{}
	case LoginSecondFactorRequired:
		return LoginSecondFactorRequired{challenge: s.challenge}
	case LoginFailed:
		return LoginFailed{}
	default:
		return st
	}
}

func withError(st LoginState, err error) LoginState {
	switch s := st.(type) {
	case LoginIdle:
		return LoginIdle{err: err}
	case LoginSecondFactorRequired:
		return LoginSecondFactorRequired{challenge: s.challenge, err: err}
	case LoginFailed:
		return LoginFailed{err: err}
	default:
		return st
	}
}
