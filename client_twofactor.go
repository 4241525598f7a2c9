package goPortal

import (
	"context"

	"github.com/MrEthical07/goPortal/internal/flows"
)

// TwoFactorPhase names the phase of a [TwoFactorFlow].
type TwoFactorPhase = flows.TwoFactorPhase

const (
	PhaseTwoFactorInactive = flows.PhaseInactive
	PhaseSetupRequested    = flows.PhaseSetupRequested
	PhaseAwaitingSetup     = flows.PhaseAwaitingSetupConfirmation
	PhaseConfirmingSetup   = flows.PhaseConfirmingSetup
	PhaseTwoFactorEnabled  = flows.PhaseEnabled
	PhaseAwaitingDisable   = flows.PhaseAwaitingDisableConfirmation
	PhaseConfirmingDisable = flows.PhaseConfirmingDisable
)

// TwoFactorState is the state of a [TwoFactorFlow].
type TwoFactorState = flows.TwoFactorState

// EnrollmentMaterial is the QR payload and manual key shown while enabling
// 2FA. It is only reachable from the awaiting and confirming setup states.
type EnrollmentMaterial = flows.EnrollmentMaterial

type (
	TwoFactorInactive          = flows.TwoFactorInactive
	TwoFactorSetupRequested    = flows.TwoFactorSetupRequested
	TwoFactorAwaitingSetup     = flows.TwoFactorAwaitingSetup
	TwoFactorConfirmingSetup   = flows.TwoFactorConfirmingSetup
	TwoFactorEnabled           = flows.TwoFactorEnabled
	TwoFactorAwaitingDisable   = flows.TwoFactorAwaitingDisable
	TwoFactorConfirmingDisable = flows.TwoFactorConfirmingDisable
)

// TwoFactorFlow runs the enable and disable dialogs for the signed-in user.
// Enabled flips only after the backend confirmed the change.
type TwoFactorFlow struct {
	machine *flows.TwoFactorMachine
}

// TwoFactorStatus fetches whether 2FA is enabled for the session user.
func (c *Client) TwoFactorStatus(ctx context.Context) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	enabled, err := c.api.TwoFactorStatus(ctx)
	if err != nil {
		return false, newError(ErrUnknownStatus, "get_2fa_status", err)
	}
	return enabled, nil
}

// NewTwoFactorFlow fetches the current status and returns a flow resting in
// the matching phase. onTransition, when non-nil, runs after every state
// change.
func (c *Client) NewTwoFactorFlow(ctx context.Context, onTransition func(TwoFactorState)) (*TwoFactorFlow, error) {
	enabled, err := c.TwoFactorStatus(ctx)
	if err != nil {
		return nil, err
	}
	m := flows.NewTwoFactorMachine(flows.TwoFactorDeps{
		Backend:      c.api,
		HasSession:   c.hasSession,
		UserID:       c.userID,
		NewError:     newError,
		CodeDigits:   c.config.TwoFactor.CodeDigits,
		OnStatus:     c.onTwoFactorStatus,
		OnTransition: onTransition,
		Hooks:        c.flowHooks(),
		Errors:       flowErrors,
		Metrics: flows.TwoFactorMetrics{
			SetupRequested:      int(MetricTwoFactorSetupRequested),
			SetupFailed:         int(MetricTwoFactorSetupFailed),
			Enabled:             int(MetricTwoFactorEnabled),
			Disabled:            int(MetricTwoFactorDisabled),
			VerificationFailure: int(MetricTwoFactorVerificationFailure),
			StaleDiscarded:      int(MetricStaleResponseDiscarded),
		},
		Events: flows.TwoFactorEvents{
			SetupRequested:      auditEventTOTPSetupRequested,
			Enabled:             auditEventTOTPEnabled,
			Disabled:            auditEventTOTPDisabled,
			VerificationFailure: auditEventTOTPVerificationFailure,
		},
	}, enabled)
	return &TwoFactorFlow{machine: m}, nil
}

func (c *Client) onTwoFactorStatus(enabled bool) {
	c.logger.Info("two-factor status changed", "enabled", enabled)
}

// State returns the current state.
func (f *TwoFactorFlow) State() TwoFactorState { return f.machine.State() }

// Enabled returns the cached status.
func (f *TwoFactorFlow) Enabled() bool { return f.machine.Enabled() }

// Busy reports whether a backend call is in flight.
func (f *TwoFactorFlow) Busy() bool { return f.machine.Busy() }

// RequestSetup fetches enrollment material. Called again while material is
// shown it replaces it.
func (f *TwoFactorFlow) RequestSetup(ctx context.Context) (TwoFactorState, error) {
	return f.machine.RequestSetup(ctx)
}

// ConfirmSetup enables 2FA with a code from the authenticator app.
func (f *TwoFactorFlow) ConfirmSetup(ctx context.Context, code string) (TwoFactorState, error) {
	return f.machine.ConfirmSetup(ctx, code)
}

// RequestDisable opens the disable dialog.
func (f *TwoFactorFlow) RequestDisable() (TwoFactorState, error) {
	return f.machine.RequestDisable()
}

// ConfirmDisable disables 2FA with a current code.
func (f *TwoFactorFlow) ConfirmDisable(ctx context.Context, code string) (TwoFactorState, error) {
	return f.machine.ConfirmDisable(ctx, code)
}

// Cancel closes the open dialog and discards any material.
func (f *TwoFactorFlow) Cancel() TwoFactorState { return f.machine.Cancel() }

// InputChanged clears the displayed error.
func (f *TwoFactorFlow) InputChanged() TwoFactorState { return f.machine.InputChanged() }
