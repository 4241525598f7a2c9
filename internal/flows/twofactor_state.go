package flows

// TwoFactorPhase names a phase of the 2FA dialog.
type TwoFactorPhase uint8

const (
	PhaseInactive TwoFactorPhase = iota
	PhaseSetupRequested
	PhaseAwaitingSetupConfirmation
	PhaseConfirmingSetup
	PhaseEnabled
	PhaseAwaitingDisableConfirmation
	PhaseConfirmingDisable
)

func (p TwoFactorPhase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseSetupRequested:
		return "setup_requested"
	case PhaseAwaitingSetupConfirmation:
		return "awaiting_setup_confirmation"
	case PhaseConfirmingSetup:
		return "confirming_setup"
	case PhaseEnabled:
		return "enabled"
	case PhaseAwaitingDisableConfirmation:
		return "awaiting_disable_confirmation"
	case PhaseConfirmingDisable:
		return "confirming_disable"
	default:
		return "unknown"
	}
}

// Resting reports whether no dialog is open in this phase.
func (p TwoFactorPhase) Resting() bool {
	return p == PhaseInactive || p == PhaseEnabled
}

// enrollment reports whether p belongs to the enable sub-flow, which is only
// reachable while 2FA is disabled.
func (p TwoFactorPhase) enrollment() bool {
	return p <= PhaseConfirmingSetup
}

// EnrollmentMaterial is shown to the user while enabling 2FA. SecretDisplay
// is the otpauth payload to render as a QR code.
type EnrollmentMaterial struct {
	SecretDisplay  string
	ManualEntryKey string
}

// TwoFactorState is the sealed set of 2FA dialog states.
type TwoFactorState interface {
	Phase() TwoFactorPhase
	Err() error
	twoFactorState()
}

// TwoFactorInactive rests with 2FA disabled.
type TwoFactorInactive struct{ err error }

// TwoFactorSetupRequested waits for enrollment material.
type TwoFactorSetupRequested struct{}

// TwoFactorAwaitingSetup shows material and waits for a confirmation code.
type TwoFactorAwaitingSetup struct {
	material EnrollmentMaterial
	err      error
}

// Material returns the enrollment material on display.
func (s TwoFactorAwaitingSetup) Material() EnrollmentMaterial { return s.material }

// TwoFactorConfirmingSetup waits for the backend to check the setup code.
type TwoFactorConfirmingSetup struct{ material EnrollmentMaterial }

// Material returns the enrollment material on display.
func (s TwoFactorConfirmingSetup) Material() EnrollmentMaterial { return s.material }

// TwoFactorEnabled rests with 2FA enabled.
type TwoFactorEnabled struct{ err error }

// TwoFactorAwaitingDisable waits for the code that authorizes disabling.
type TwoFactorAwaitingDisable struct{ err error }

// TwoFactorConfirmingDisable waits for the backend to check the disable code.
type TwoFactorConfirmingDisable struct{}

func (TwoFactorInactive) Phase() TwoFactorPhase          { return PhaseInactive }
func (TwoFactorSetupRequested) Phase() TwoFactorPhase    { return PhaseSetupRequested }
func (TwoFactorAwaitingSetup) Phase() TwoFactorPhase     { return PhaseAwaitingSetupConfirmation }
func (TwoFactorConfirmingSetup) Phase() TwoFactorPhase   { return PhaseConfirmingSetup }
func (TwoFactorEnabled) Phase() TwoFactorPhase           { return PhaseEnabled }
func (TwoFactorAwaitingDisable) Phase() TwoFactorPhase   { return PhaseAwaitingDisableConfirmation }
func (TwoFactorConfirmingDisable) Phase() TwoFactorPhase { return PhaseConfirmingDisable }

func (s TwoFactorInactive) Err() error        { return s.err }
func (TwoFactorSetupRequested) Err() error    { return nil }
func (s TwoFactorAwaitingSetup) Err() error   { return s.err }
func (TwoFactorConfirmingSetup) Err() error   { return nil }
func (s TwoFactorEnabled) Err() error         { return s.err }
func (s TwoFactorAwaitingDisable) Err() error { return s.err }
func (TwoFactorConfirmingDisable) Err() error { return nil }

func (TwoFactorInactive) twoFactorState()          {}
func (TwoFactorSetupRequested) twoFactorState()    {}
func (TwoFactorAwaitingSetup) twoFactorState()     {}
func (TwoFactorConfirmingSetup) twoFactorState()   {}
func (TwoFactorEnabled) twoFactorState()           {}
func (TwoFactorAwaitingDisable) twoFactorState()   {}
func (TwoFactorConfirmingDisable) twoFactorState() {}

func clearTwoFactorError(st TwoFactorState) TwoFactorState {
	switch s := st.(type) {
	case TwoFactorInactive:
		return TwoFactorInactive{}
	case TwoFactorAwaitingSetup:
		return TwoFactorAwaitingSetup{material: s.material}
	case TwoFactorEnabled:
		return TwoFactorEnabled{}
	case TwoFactorAwaitingDisable:
		return TwoFactorAwaitingDisable{}
	default:
		return st
	}
}

func restingState(enabled bool, err error) TwoFactorState {
	if enabled {
		return TwoFactorEnabled{err: err}
	}
	return TwoFactorInactive{err: err}
}
