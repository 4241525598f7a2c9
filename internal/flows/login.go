package flows

import (
	"context"
	"strings"
	"sync"

	"github.com/MrEthical07/goPortal/session"
	"github.com/MrEthical07/goPortal/transport"
)

// LoginVerifier is the backend side of the two login phases.
type LoginVerifier interface {
	Login(ctx context.Context, email, password string) (transport.LoginResult, error)
	CompleteTwoFactorLogin(ctx context.Context, challenge, code string) (transport.LoginResult, error)
}

// LoginMetrics carries metric IDs used by the login machine.
type LoginMetrics struct {
	LoginSuccess        int
	LoginFailure        int
	LoginValidation     int
	SecondFactorNeeded  int
	SecondFactorSuccess int
	SecondFactorFailure int
	ChallengeExpired    int
	StaleDiscarded      int
}

// LoginEvents carries audit event names used by the login machine.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	MFARequired      string
	MFASuccess       string
	MFAFailure       string
	ChallengeExpired string
}

// LoginDeps captures login machine dependencies.
type LoginDeps struct {
	Verifier   LoginVerifier
	Commit     func(context.Context, session.Session) error
	IsTerminal func(error) bool
	NewError   ErrorFunc
	CodeDigits int

	// OnTransition runs after every state change, outside the machine lock.
	OnTransition func(LoginState)

	Hooks   Hooks
	Errors  ErrorSet
	Metrics LoginMetrics
	Events  LoginEvents
}

// LoginMachine drives one login attempt from credentials to a committed
// session.
type LoginMachine struct {
	deps LoginDeps

	mu    sync.Mutex
	state LoginState
	epoch uint64
	busy  bool
}

// NewLoginMachine returns a machine in the idle phase.
func NewLoginMachine(deps LoginDeps) *LoginMachine {
	if deps.NewError == nil {
		deps.NewError = defaultErrorFunc
	}
	if deps.IsTerminal == nil {
		deps.IsTerminal = func(error) bool { return false }
	}
	if deps.CodeDigits <= 0 {
		deps.CodeDigits = DefaultCodeDigits
	}
	deps.Hooks = deps.Hooks.withDefaults()
	return &LoginMachine{deps: deps, state: LoginIdle{}}
}

// State returns the current state.
func (m *LoginMachine) State() LoginState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether a verifier call is in flight.
func (m *LoginMachine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// SubmitCredentials runs the first phase. It is accepted from Idle and Failed.
func (m *LoginMachine) SubmitCredentials(ctx context.Context, email, password string) (LoginState, error) {
	email = strings.TrimSpace(email)

	m.mu.Lock()
	if m.busy {
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.Busy
	}
	switch m.state.(type) {
	case LoginIdle, LoginFailed:
	default:
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.InvalidState
	}
	if email == "" || password == "" {
		err := m.deps.NewError(m.deps.Errors.Validation, "login", nil)
		st := m.setLocked(withError(m.state, err))
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.LoginValidation)
		m.notify(st)
		return st, err
	}
	epoch := m.epoch
	m.busy = true
	st := m.setLocked(LoginCredentialsSubmitted{})
	m.mu.Unlock()
	m.notify(st)

	res, callErr := m.deps.Verifier.Login(ctx, email, password)

	m.mu.Lock()
	if epoch != m.epoch {
		st := m.state
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.StaleDiscarded)
		m.deps.Hooks.Debug("login response discarded after reset", "phase", PhaseCredentialsSubmitted.String())
		return st, m.deps.Errors.Cancelled
	}
	m.busy = false

	if callErr != nil {
		err := m.deps.NewError(m.deps.Errors.Credential, "login", callErr)
		st := m.setLocked(LoginFailed{err: err})
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.LoginFailure)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.LoginFailure, false, "", err, nil)
		m.notify(st)
		return st, err
	}

	if res.RequiresSecondFactor() {
		st := m.setLocked(LoginSecondFactorRequired{challenge: res.ChallengeToken})
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.SecondFactorNeeded)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.MFARequired, true, "", nil, nil)
		m.notify(st)
		return st, nil
	}

	st, err := m.commitLocked(ctx, res)
	m.mu.Unlock()
	if err != nil {
		m.deps.Hooks.MetricInc(m.deps.Metrics.LoginFailure)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.LoginFailure, false, res.User.ID, err, nil)
	} else {
		m.deps.Hooks.MetricInc(m.deps.Metrics.LoginSuccess)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.LoginSuccess, true, res.User.ID, nil, func() map[string]string {
			return map[string]string{"second_factor": "false"}
		})
	}
	m.notify(st)
	return st, err
}

// SubmitSecondFactor runs the second phase with a TOTP code. It is accepted
// only while a challenge is outstanding.
func (m *LoginMachine) SubmitSecondFactor(ctx context.Context, code string) (LoginState, error) {
	m.mu.Lock()
	if m.busy {
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.Busy
	}
	cur, ok := m.state.(LoginSecondFactorRequired)
	if !ok {
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.InvalidState
	}
	if !ValidCode(code, m.deps.CodeDigits) {
		err := m.deps.NewError(m.deps.Errors.Validation, "complete_2fa_login", nil)
		st := m.setLocked(LoginSecondFactorRequired{challenge: cur.challenge, err: err})
		m.mu.Unlock()
		m.notify(st)
		return st, err
	}
	epoch := m.epoch
	m.busy = true
	st := m.setLocked(LoginSecondFactorSubmitted{challenge: cur.challenge})
	m.mu.Unlock()
	m.notify(st)

	res, callErr := m.deps.Verifier.CompleteTwoFactorLogin(ctx, cur.challenge, code)

	m.mu.Lock()
	if epoch != m.epoch {
		st := m.state
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.StaleDiscarded)
		m.deps.Hooks.Debug("second factor response discarded after reset", "phase", PhaseSecondFactorSubmitted.String())
		return st, m.deps.Errors.Cancelled
	}
	m.busy = false

	if callErr != nil {
		err := m.deps.NewError(m.deps.Errors.SecondFactor, "complete_2fa_login", callErr)
		if m.deps.IsTerminal(callErr) {
			st := m.setLocked(LoginFailed{err: err})
			m.mu.Unlock()
			m.deps.Hooks.MetricInc(m.deps.Metrics.ChallengeExpired)
			m.deps.Hooks.EmitAudit(ctx, m.deps.Events.ChallengeExpired, false, "", err, nil)
			m.notify(st)
			return st, err
		}
		st := m.setLocked(LoginSecondFactorRequired{challenge: cur.challenge, err: err})
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.SecondFactorFailure)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.MFAFailure, false, "", err, nil)
		m.notify(st)
		return st, err
	}

	st, err := m.commitLocked(ctx, res)
	m.mu.Unlock()
	if err != nil {
		m.deps.Hooks.MetricInc(m.deps.Metrics.SecondFactorFailure)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.MFAFailure, false, res.User.ID, err, nil)
	} else {
		m.deps.Hooks.MetricInc(m.deps.Metrics.SecondFactorSuccess)
		m.deps.Hooks.MetricInc(m.deps.Metrics.LoginSuccess)
		m.deps.Hooks.EmitAudit(ctx, m.deps.Events.MFASuccess, true, res.User.ID, nil, func() map[string]string {
			return map[string]string{"second_factor": "true"}
		})
	}
	m.notify(st)
	return st, err
}

// InputChanged clears the displayed error without changing the phase.
func (m *LoginMachine) InputChanged() LoginState {
	m.mu.Lock()
	if m.state.Err() == nil {
		st := m.state
		m.mu.Unlock()
		return st
	}
	st := m.setLocked(withoutError(m.state))
	m.mu.Unlock()
	m.notify(st)
	return st
}

// Reset discards any challenge and returns to Idle. A verifier response for
// the abandoned attempt is discarded when it arrives.
func (m *LoginMachine) Reset() LoginState {
	m.mu.Lock()
	m.epoch++
	m.busy = false
	st := m.setLocked(LoginIdle{})
	m.mu.Unlock()
	m.notify(st)
	return st
}

// commitLocked installs the session. The machine lock is held so a Reset
// cannot interleave between the epoch check and the commit.
func (m *LoginMachine) commitLocked(ctx context.Context, res transport.LoginResult) (LoginState, error) {
	sess := session.Session{Token: res.Token, User: res.User}
	if err := m.deps.Commit(ctx, sess); err != nil {
		return m.setLocked(LoginFailed{err: err}), err
	}
	return m.setLocked(LoginAuthenticated{Session: sess}), nil
}

func (m *LoginMachine) setLocked(st LoginState) LoginState {
	prev := m.state
	m.state = st
	if prev == nil || prev.Phase() != st.Phase() {
		m.deps.Hooks.Debug("login transition", "from", phaseName(prev), "to", st.Phase().String())
	}
	return st
}

func (m *LoginMachine) notify(st LoginState) {
	if m.deps.OnTransition != nil {
		m.deps.OnTransition(st)
	}
}

func phaseName(st LoginState) string {
	if st == nil {
		return ""
	}
	return st.Phase().String()
}
