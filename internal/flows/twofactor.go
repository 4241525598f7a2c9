package flows

import (
	"context"
	"sync"

	"github.com/MrEthical07/goPortal/transport"
)

// TwoFactorBackend is the backend side of enrollment and disablement.
type TwoFactorBackend interface {
	SetupTwoFactor(ctx context.Context) (transport.SetupMaterial, error)
	VerifyTwoFactorSetup(ctx context.Context, code string) error
	DisableTwoFactor(ctx context.Context, code string) error
}

// TwoFactorMetrics carries metric IDs used by the 2FA machine.
type TwoFactorMetrics struct {
	SetupRequested      int
	SetupFailed         int
	Enabled             int
	Disabled            int
	VerificationFailure int
	StaleDiscarded      int
}

// TwoFactorEvents carries audit event names used by the 2FA machine.
type TwoFactorEvents struct {
	SetupRequested      string
	Enabled             string
	Disabled            string
	VerificationFailure string
}

// TwoFactorDeps captures 2FA machine dependencies.
type TwoFactorDeps struct {
	Backend    TwoFactorBackend
	HasSession func() bool
	UserID     func() string
	NewError   ErrorFunc
	CodeDigits int

	// OnStatus runs whenever a confirmed server transition flips the cached
	// status, outside the machine lock.
	OnStatus func(enabled bool)
	// OnTransition runs after every state change, outside the machine lock.
	OnTransition func(TwoFactorState)

	Hooks   Hooks
	Errors  ErrorSet
	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
}

// TwoFactorMachine runs the enable and disable dialogs for one session. The
// cached status flips only on a confirmed backend transition.
type TwoFactorMachine struct {
	deps TwoFactorDeps

	mu      sync.Mutex
	state   TwoFactorState
	enabled bool
	epoch   uint64
	busy    bool
}

// NewTwoFactorMachine returns a machine resting in the phase matching the
// fetched status.
func NewTwoFactorMachine(deps TwoFactorDeps, enabled bool) *TwoFactorMachine {
	if deps.NewError == nil {
		deps.NewError = defaultErrorFunc
	}
	if deps.HasSession == nil {
		deps.HasSession = func() bool { return true }
	}
	if deps.UserID == nil {
		deps.UserID = func() string { return "" }
	}
	if deps.CodeDigits <= 0 {
		deps.CodeDigits = DefaultCodeDigits
	}
	deps.Hooks = deps.Hooks.withDefaults()
	return &TwoFactorMachine{deps: deps, enabled: enabled, state: restingState(enabled, nil)}
}

// State returns the current state.
func (m *TwoFactorMachine) State() TwoFactorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Enabled returns the cached 2FA status.
func (m *TwoFactorMachine) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Busy reports whether a backend call is in flight.
func (m *TwoFactorMachine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// RequestSetup asks the backend for fresh enrollment material. While
// material is on display it acts as the explicit retry and replaces it.
func (m *TwoFactorMachine) RequestSetup(ctx context.Context) (TwoFactorState, error) {
	m.mu.Lock()
	if st, err := m.guardLocked(); err != nil {
		m.mu.Unlock()
		return st, err
	}
	switch m.state.(type) {
	case TwoFactorInactive, TwoFactorAwaitingSetup:
	default:
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.InvalidState
	}
	epoch := m.epoch
	m.busy = true
	st := m.setLocked(TwoFactorSetupRequested{})
	m.mu.Unlock()
	m.notify(st)

	material, callErr := m.deps.Backend.SetupTwoFactor(ctx)

	m.mu.Lock()
	if epoch != m.epoch {
		st := m.state
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.StaleDiscarded)
		m.deps.Hooks.Debug("setup material discarded after cancel")
		return st, m.deps.Errors.Cancelled
	}
	m.busy = false

	if callErr != nil {
		err := m.errorFor(m.deps.Errors.Setup, "setup_2fa", callErr)
		st := m.setLocked(TwoFactorInactive{err: err})
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.SetupFailed)
		m.notify(st)
		return st, err
	}

	st = m.setLocked(TwoFactorAwaitingSetup{material: EnrollmentMaterial{
		SecretDisplay:  material.QRCode,
		ManualEntryKey: material.ManualEntryKey,
	}})
	m.mu.Unlock()
	m.deps.Hooks.MetricInc(m.deps.Metrics.SetupRequested)
	m.deps.Hooks.EmitAudit(ctx, m.deps.Events.SetupRequested, true, m.deps.UserID(), nil, nil)
	m.notify(st)
	return st, nil
}

// ConfirmSetup verifies code against the displayed material. A mismatch keeps
// the same material on display.
func (m *TwoFactorMachine) ConfirmSetup(ctx context.Context, code string) (TwoFactorState, error) {
	m.mu.Lock()
	if st, err := m.guardLocked(); err != nil {
		m.mu.Unlock()
		return st, err
	}
	cur, ok := m.state.(TwoFactorAwaitingSetup)
	if !ok {
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.InvalidState
	}
	if !ValidCode(code, m.deps.CodeDigits) {
		err := m.deps.NewError(m.deps.Errors.Validation, "verify_2fa_setup", nil)
		st := m.setLocked(TwoFactorAwaitingSetup{material: cur.material, err: err})
		m.mu.Unlock()
		m.notify(st)
		return st, err
	}
	epoch := m.epoch
	m.busy = true
	st := m.setLocked(TwoFactorConfirmingSetup{material: cur.material})
	m.mu.Unlock()
	m.notify(st)

	callErr := m.deps.Backend.VerifyTwoFactorSetup(ctx, code)

	m.mu.Lock()
	if callErr == nil {
		st, flipped := m.confirmedLocked(epoch, true)
		m.mu.Unlock()
		m.afterConfirmed(ctx, flipped, true)
		m.notify(st)
		return st, nil
	}
	if epoch != m.epoch {
		st := m.state
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.StaleDiscarded)
		return st, m.deps.Errors.Cancelled
	}
	m.busy = false
	err := m.errorFor(m.deps.Errors.Verification, "verify_2fa_setup", callErr)
	if m.deps.Errors.isGateError(callErr) {
		st = m.setLocked(TwoFactorInactive{err: err})
	} else {
		st = m.setLocked(TwoFactorAwaitingSetup{material: cur.material, err: err})
	}
	m.mu.Unlock()
	m.deps.Hooks.MetricInc(m.deps.Metrics.VerificationFailure)
	m.deps.Hooks.EmitAudit(ctx, m.deps.Events.VerificationFailure, false, m.deps.UserID(), err, func() map[string]string {
		return map[string]string{"dialog": "enable"}
	})
	m.notify(st)
	return st, err
}

// RequestDisable opens the disable dialog. The backend has no disable
// challenge, so no call is made.
func (m *TwoFactorMachine) RequestDisable() (TwoFactorState, error) {
	m.mu.Lock()
	if st, err := m.guardLocked(); err != nil {
		m.mu.Unlock()
		return st, err
	}
	if _, ok := m.state.(TwoFactorEnabled); !ok {
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.InvalidState
	}
	st := m.setLocked(TwoFactorAwaitingDisable{})
	m.mu.Unlock()
	m.notify(st)
	return st, nil
}

// ConfirmDisable disables 2FA after the backend accepts code.
func (m *TwoFactorMachine) ConfirmDisable(ctx context.Context, code string) (TwoFactorState, error) {
	m.mu.Lock()
	if st, err := m.guardLocked(); err != nil {
		m.mu.Unlock()
		return st, err
	}
	if _, ok := m.state.(TwoFactorAwaitingDisable); !ok {
		st := m.state
		m.mu.Unlock()
		return st, m.deps.Errors.InvalidState
	}
	if !ValidCode(code, m.deps.CodeDigits) {
		err := m.deps.NewError(m.deps.Errors.Validation, "disable_2fa", nil)
		st := m.setLocked(TwoFactorAwaitingDisable{err: err})
		m.mu.Unlock()
		m.notify(st)
		return st, err
	}
	epoch := m.epoch
	m.busy = true
	st := m.setLocked(TwoFactorConfirmingDisable{})
	m.mu.Unlock()
	m.notify(st)

	callErr := m.deps.Backend.DisableTwoFactor(ctx, code)

	m.mu.Lock()
	if callErr == nil {
		st, flipped := m.confirmedLocked(epoch, false)
		m.mu.Unlock()
		m.afterConfirmed(ctx, flipped, false)
		m.notify(st)
		return st, nil
	}
	if epoch != m.epoch {
		st := m.state
		m.mu.Unlock()
		m.deps.Hooks.MetricInc(m.deps.Metrics.StaleDiscarded)
		return st, m.deps.Errors.Cancelled
	}
	m.busy = false
	err := m.errorFor(m.deps.Errors.Verification, "disable_2fa", callErr)
	if m.deps.Errors.isGateError(callErr) {
		st = m.setLocked(TwoFactorEnabled{err: err})
	} else {
		st = m.setLocked(TwoFactorAwaitingDisable{err: err})
	}
	m.mu.Unlock()
	m.deps.Hooks.MetricInc(m.deps.Metrics.VerificationFailure)
	m.deps.Hooks.EmitAudit(ctx, m.deps.Events.VerificationFailure, false, m.deps.UserID(), err, func() map[string]string {
		return map[string]string{"dialog": "disable"}
	})
	m.notify(st)
	return st, err
}

// Cancel closes any open dialog, discarding enrollment material. Pending
// setup responses are discarded when they arrive.
func (m *TwoFactorMachine) Cancel() TwoFactorState {
	m.mu.Lock()
	m.epoch++
	m.busy = false
	st := m.setLocked(restingState(m.enabled, nil))
	m.mu.Unlock()
	m.notify(st)
	return st
}

// InputChanged clears the displayed error without changing the phase.
func (m *TwoFactorMachine) InputChanged() TwoFactorState {
	m.mu.Lock()
	if m.state.Err() == nil {
		st := m.state
		m.mu.Unlock()
		return st
	}
	st := m.setLocked(clearTwoFactorError(m.state))
	m.mu.Unlock()
	m.notify(st)
	return st
}

func (m *TwoFactorMachine) guardLocked() (TwoFactorState, error) {
	if m.busy {
		return m.state, m.deps.Errors.Busy
	}
	if !m.deps.HasSession() {
		return m.state, m.deps.Errors.NoSession
	}
	return nil, nil
}

// confirmedLocked applies a confirmed server transition. The status cache
// always follows the backend. The phase changes when the dialog that issued
// the call is still open, or when the live state belongs to the sub-flow the
// new status makes unreachable; any call pending there is discarded.
func (m *TwoFactorMachine) confirmedLocked(epoch uint64, enabled bool) (TwoFactorState, bool) {
	flipped := m.enabled != enabled
	m.enabled = enabled
	if epoch == m.epoch {
		m.busy = false
		return m.setLocked(restingState(enabled, nil)), flipped
	}
	if m.state.Phase().enrollment() == enabled {
		m.epoch++
		m.busy = false
		return m.setLocked(restingState(enabled, nil)), flipped
	}
	return m.state, flipped
}

func (m *TwoFactorMachine) afterConfirmed(ctx context.Context, flipped, enabled bool) {
	metric, event := m.deps.Metrics.Disabled, m.deps.Events.Disabled
	if enabled {
		metric, event = m.deps.Metrics.Enabled, m.deps.Events.Enabled
	}
	m.deps.Hooks.MetricInc(metric)
	m.deps.Hooks.EmitAudit(ctx, event, true, m.deps.UserID(), nil, nil)
	if flipped && m.deps.OnStatus != nil {
		m.deps.OnStatus(enabled)
	}
}

// errorFor passes gate errors through so callers can tell an expired session
// from a rejected code.
func (m *TwoFactorMachine) errorFor(kind error, op string, cause error) error {
	if m.deps.Errors.isGateError(cause) {
		return cause
	}
	return m.deps.NewError(kind, op, cause)
}

func (m *TwoFactorMachine) setLocked(st TwoFactorState) TwoFactorState {
	prev := m.state
	m.state = st
	if prev == nil || prev.Phase() != st.Phase() {
		from := ""
		if prev != nil {
			from = prev.Phase().String()
		}
		m.deps.Hooks.Debug("two-factor transition", "from", from, "to", st.Phase().String())
	}
	return st
}

func (m *TwoFactorMachine) notify(st TwoFactorState) {
	if m.deps.OnTransition != nil {
		m.deps.OnTransition(st)
	}
}
