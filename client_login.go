package goPortal

import (
	"context"

	"github.com/MrEthical07/goPortal/internal/flows"
	"github.com/MrEthical07/goPortal/transport"
)

// LoginPhase names the phase of a [LoginFlow].
type LoginPhase = flows.LoginPhase

const (
	PhaseIdle                  = flows.PhaseIdle
	PhaseCredentialsSubmitted  = flows.PhaseCredentialsSubmitted
	PhaseSecondFactorRequired  = flows.PhaseSecondFactorRequired
	PhaseSecondFactorSubmitted = flows.PhaseSecondFactorSubmitted
	PhaseAuthenticated         = flows.PhaseAuthenticated
	PhaseFailed                = flows.PhaseFailed
)

// LoginState is the state of a [LoginFlow]. The concrete type is one of
// LoginIdle, LoginCredentialsSubmitted, LoginSecondFactorRequired,
// LoginSecondFactorSubmitted, LoginAuthenticated or LoginFailed.
type LoginState = flows.LoginState

type (
	LoginIdle                  = flows.LoginIdle
	LoginCredentialsSubmitted  = flows.LoginCredentialsSubmitted
	LoginSecondFactorRequired  = flows.LoginSecondFactorRequired
	LoginSecondFactorSubmitted = flows.LoginSecondFactorSubmitted
	LoginAuthenticated         = flows.LoginAuthenticated
	LoginFailed                = flows.LoginFailed
)

// LoginFlow drives one two-phase login. Safe for concurrent use; a submit
// while another is in flight fails with ErrFlowBusy.
type LoginFlow struct {
	machine *flows.LoginMachine
}

// NewLoginFlow returns a flow in the idle phase. onTransition, when non-nil,
// runs after every state change.
func (c *Client) NewLoginFlow(onTransition func(LoginState)) (*LoginFlow, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	m := flows.NewLoginMachine(flows.LoginDeps{
		Verifier:     c.api,
		Commit:       c.commit,
		IsTerminal:   isTerminalChallengeError,
		NewError:     newError,
		CodeDigits:   c.config.TwoFactor.CodeDigits,
		OnTransition: onTransition,
		Hooks:        c.flowHooks(),
		Errors:       flowErrors,
		Metrics: flows.LoginMetrics{
			LoginSuccess:        int(MetricLoginSuccess),
			LoginFailure:        int(MetricLoginFailure),
			LoginValidation:     int(MetricLoginValidation),
			SecondFactorNeeded:  int(MetricSecondFactorRequired),
			SecondFactorSuccess: int(MetricSecondFactorSuccess),
			SecondFactorFailure: int(MetricSecondFactorFailure),
			ChallengeExpired:    int(MetricChallengeExpired),
			StaleDiscarded:      int(MetricStaleResponseDiscarded),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			MFARequired:      auditEventMFARequired,
			MFASuccess:       auditEventMFASuccess,
			MFAFailure:       auditEventMFAFailure,
			ChallengeExpired: auditEventMFAChallengeExpired,
		},
	})
	return &LoginFlow{machine: m}, nil
}

// State returns the current state.
func (f *LoginFlow) State() LoginState { return f.machine.State() }

// Busy reports whether a submit is in flight.
func (f *LoginFlow) Busy() bool { return f.machine.Busy() }

// SubmitCredentials runs the first phase. Empty email or password fails with
// ErrValidation without a network call.
func (f *LoginFlow) SubmitCredentials(ctx context.Context, email, password string) (LoginState, error) {
	return f.machine.SubmitCredentials(ctx, email, password)
}

// SubmitSecondFactor answers the outstanding challenge with a TOTP code.
func (f *LoginFlow) SubmitSecondFactor(ctx context.Context, code string) (LoginState, error) {
	return f.machine.SubmitSecondFactor(ctx, code)
}

// InputChanged clears the displayed error.
func (f *LoginFlow) InputChanged() LoginState { return f.machine.InputChanged() }

// Reset abandons the attempt and any challenge.
func (f *LoginFlow) Reset() LoginState { return f.machine.Reset() }

var flowErrors = flows.ErrorSet{
	Validation:     ErrValidation,
	Credential:     ErrCredential,
	SecondFactor:   ErrSecondFactor,
	Setup:          ErrSetup,
	Verification:   ErrVerification,
	InvalidState:   ErrInvalidState,
	Busy:           ErrFlowBusy,
	Cancelled:      ErrFlowCancelled,
	NoSession:      ErrNoSession,
	SessionExpired: ErrSessionExpired,
}

func (c *Client) flowHooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: c.metrics.metricInc,
		EmitAudit: c.emitAudit,
		Debug:     c.debug,
	}
}

func isTerminalChallengeError(err error) bool {
	apiErr, ok := transport.AsAPIError(err)
	return ok && apiErr.Terminal()
}
