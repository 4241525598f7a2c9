package flows

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/goPortal/transport"
)

type fakeTwoFactorBackend struct {
	mu          sync.Mutex
	setupCalls  int
	verifyCalls int
	disable     int
	setupErr    error
	verifyErr   error
	validCode   string
	serial      int

	block   chan struct{}
	entered chan struct{}
	// verifyBlock, when set, gates VerifyTwoFactorSetup instead of block.
	verifyBlock chan struct{}
}

func (f *fakeTwoFactorBackend) wait() { f.waitOn(f.block) }

func (f *fakeTwoFactorBackend) waitOn(gate chan struct{}) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
}

func (f *fakeTwoFactorBackend) SetupTwoFactor(context.Context) (transport.SetupMaterial, error) {
	f.mu.Lock()
	f.setupCalls++
	f.serial++
	n := f.serial
	f.mu.Unlock()
	f.wait()
	if f.setupErr != nil {
		return transport.SetupMaterial{}, f.setupErr
	}
	key := "KEY" + string(rune('0'+n))
	return transport.SetupMaterial{QRCode: "otpauth://totp/Portal?secret=" + key, ManualEntryKey: key}, nil
}

func (f *fakeTwoFactorBackend) VerifyTwoFactorSetup(_ context.Context, code string) error {
	f.mu.Lock()
	f.verifyCalls++
	f.mu.Unlock()
	if f.verifyBlock != nil {
		f.waitOn(f.verifyBlock)
	} else {
		f.wait()
	}
	if f.verifyErr != nil {
		return f.verifyErr
	}
	if code != f.validCode {
		return &transport.APIError{Status: 400, Code: transport.CodeInvalidCode, Message: "Invalid verification code"}
	}
	return nil
}

func (f *fakeTwoFactorBackend) DisableTwoFactor(_ context.Context, code string) error {
	f.mu.Lock()
	f.disable++
	f.mu.Unlock()
	f.wait()
	if code != f.validCode {
		return &transport.APIError{Status: 400, Message: "Invalid verification code"}
	}
	return nil
}

type twoFactorFixture struct {
	machine  *TwoFactorMachine
	backend  *fakeTwoFactorBackend
	session  bool
	statuses []bool
}

func newTwoFactorTest(t *testing.T, enabled bool) *twoFactorFixture {
	t.Helper()
	f := &twoFactorFixture{backend: &fakeTwoFactorBackend{validCode: "123456"}, session: true}
	f.machine = NewTwoFactorMachine(TwoFactorDeps{
		Backend:    f.backend,
		HasSession: func() bool { return f.session },
		OnStatus:   func(enabled bool) { f.statuses = append(f.statuses, enabled) },
		Errors:     testErrors,
	}, enabled)
	return f
}

func TestEnableFlowHappyPath(t *testing.T) {
	f := newTwoFactorTest(t, false)
	ctx := context.Background()

	st, err := f.machine.RequestSetup(ctx)
	if err != nil {
		t.Fatalf("request setup: %v", err)
	}
	awaiting, ok := st.(TwoFactorAwaitingSetup)
	if !ok || awaiting.Material().ManualEntryKey == "" {
		t.Fatalf("expected material on display, got %#v", st)
	}

	st, err = f.machine.ConfirmSetup(ctx, "123456")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if st.Phase() != PhaseEnabled || !f.machine.Enabled() {
		t.Fatalf("expected enabled, got %s enabled=%v", st.Phase(), f.machine.Enabled())
	}
	if len(f.statuses) != 1 || !f.statuses[0] {
		t.Fatalf("expected one status flip, got %v", f.statuses)
	}
}

func TestConfirmSetupMismatchKeepsMaterial(t *testing.T) {
	f := newTwoFactorTest(t, false)
	ctx := context.Background()
	st, _ := f.machine.RequestSetup(ctx)
	before := st.(TwoFactorAwaitingSetup).Material()

	st, err := f.machine.ConfirmSetup(ctx, "000000")
	if !errors.Is(err, testErrors.Verification) {
		t.Fatalf("expected verification error, got %v", err)
	}
	after, ok := st.(TwoFactorAwaitingSetup)
	if !ok {
		t.Fatalf("expected awaiting setup, got %s", st.Phase())
	}
	if after.Material() != before {
		t.Fatal("material must not be regenerated after a mismatch")
	}
	if f.machine.Enabled() || len(f.statuses) != 0 {
		t.Fatal("status must not flip on mismatch")
	}
	if f.backend.setupCalls != 1 {
		t.Fatalf("expected a single setup call, got %d", f.backend.setupCalls)
	}
}

func TestRequestSetupRetryReplacesMaterial(t *testing.T) {
	f := newTwoFactorTest(t, false)
	ctx := context.Background()
	first, _ := f.machine.RequestSetup(ctx)
	second, err := f.machine.RequestSetup(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if first.(TwoFactorAwaitingSetup).Material() == second.(TwoFactorAwaitingSetup).Material() {
		t.Fatal("explicit retry must fetch new material")
	}
}

func TestRequestSetupFailureLeavesStatus(t *testing.T) {
	f := newTwoFactorTest(t, false)
	f.backend.setupErr = errors.New("backend down")

	st, err := f.machine.RequestSetup(context.Background())
	if !errors.Is(err, testErrors.Setup) {
		t.Fatalf("expected setup error, got %v", err)
	}
	if st.Phase() != PhaseInactive || f.machine.Enabled() {
		t.Fatalf("expected inactive, got %s", st.Phase())
	}
}

func TestCancelledSetupDiscardsLateMaterial(t *testing.T) {
	f := newTwoFactorTest(t, false)
	f.backend.block = make(chan struct{})
	f.backend.entered = make(chan struct{}, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.RequestSetup(ctx)
		done <- err
	}()
	<-f.backend.entered

	if st := f.machine.Cancel(); st.Phase() != PhaseInactive {
		t.Fatalf("expected inactive after cancel, got %s", st.Phase())
	}
	close(f.backend.block)
	if err := <-done; !errors.Is(err, testErrors.Cancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if st := f.machine.State(); st.Phase() != PhaseInactive {
		t.Fatalf("late material populated the dialog: %s", st.Phase())
	}
}

func TestLateConfirmAckUpdatesRestingStatus(t *testing.T) {
	f := newTwoFactorTest(t, false)
	ctx := context.Background()
	_, _ = f.machine.RequestSetup(ctx)

	f.backend.block = make(chan struct{})
	f.backend.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		_, err := f.machine.ConfirmSetup(ctx, "123456")
		done <- err
	}()
	<-f.backend.entered

	f.machine.Cancel()
	close(f.backend.block)
	if err := <-done; err != nil {
		t.Fatalf("confirmed ack: %v", err)
	}
	if !f.machine.Enabled() || f.machine.State().Phase() != PhaseEnabled {
		t.Fatalf("confirmed transition must update status, got %s enabled=%v", f.machine.State().Phase(), f.machine.Enabled())
	}
}

// startSetupAfterCancelledConfirm leaves a confirm ack and a fresh setup
// request both in flight after the user cancelled the first dialog.
func startSetupAfterCancelledConfirm(t *testing.T, f *twoFactorFixture) (confirmDone, setupDone chan error) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.machine.RequestSetup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	f.backend.verifyBlock = make(chan struct{})
	f.backend.block = make(chan struct{})
	f.backend.entered = make(chan struct{}, 1)

	confirmDone = make(chan error, 1)
	go func() {
		_, err := f.machine.ConfirmSetup(ctx, "123456")
		confirmDone <- err
	}()
	<-f.backend.entered

	if st := f.machine.Cancel(); st.Phase() != PhaseInactive {
		t.Fatalf("expected inactive after cancel, got %s", st.Phase())
	}

	setupDone = make(chan error, 1)
	go func() {
		_, err := f.machine.RequestSetup(ctx)
		setupDone <- err
	}()
	<-f.backend.entered
	return confirmDone, setupDone
}

func assertEnabledAndResting(t *testing.T, f *twoFactorFixture) {
	t.Helper()
	st := f.machine.State()
	if !f.machine.Enabled() || st.Phase() != PhaseEnabled {
		t.Fatalf("enrollment dialog open while status enabled: enabled=%v phase=%s", f.machine.Enabled(), st.Phase())
	}
	if f.machine.Busy() {
		t.Fatal("machine must not stay busy")
	}
}

func TestLateConfirmAckClosesNewSetupRequest(t *testing.T) {
	f := newTwoFactorTest(t, false)
	confirmDone, setupDone := startSetupAfterCancelledConfirm(t, f)

	close(f.backend.verifyBlock)
	if err := <-confirmDone; err != nil {
		t.Fatalf("confirmed ack: %v", err)
	}
	assertEnabledAndResting(t, f)

	close(f.backend.block)
	if err := <-setupDone; !errors.Is(err, testErrors.Cancelled) {
		t.Fatalf("expected pending setup to be discarded, got %v", err)
	}
	assertEnabledAndResting(t, f)
	if len(f.statuses) != 1 || !f.statuses[0] {
		t.Fatalf("expected one status flip to enabled, got %v", f.statuses)
	}
}

func TestLateConfirmAckClosesNewMaterial(t *testing.T) {
	f := newTwoFactorTest(t, false)
	confirmDone, setupDone := startSetupAfterCancelledConfirm(t, f)

	close(f.backend.block)
	if err := <-setupDone; err != nil {
		t.Fatalf("setup: %v", err)
	}
	if st := f.machine.State(); st.Phase() != PhaseAwaitingSetupConfirmation {
		t.Fatalf("expected fresh material, got %s", st.Phase())
	}

	close(f.backend.verifyBlock)
	if err := <-confirmDone; err != nil {
		t.Fatalf("confirmed ack: %v", err)
	}
	assertEnabledAndResting(t, f)
	if _, err := f.machine.ConfirmSetup(context.Background(), "123456"); !errors.Is(err, testErrors.InvalidState) {
		t.Fatalf("expected invalid state for a closed dialog, got %v", err)
	}
}

func TestDisableFlow(t *testing.T) {
	f := newTwoFactorTest(t, true)
	ctx := context.Background()

	if _, err := f.machine.RequestSetup(ctx); !errors.Is(err, testErrors.InvalidState) {
		t.Fatalf("setup must be unreachable when enabled, got %v", err)
	}

	st, err := f.machine.RequestDisable()
	if err != nil || st.Phase() != PhaseAwaitingDisableConfirmation {
		t.Fatalf("request disable: %s %v", st.Phase(), err)
	}

	st, err = f.machine.ConfirmDisable(ctx, "111111")
	if !errors.Is(err, testErrors.Verification) || st.Phase() != PhaseAwaitingDisableConfirmation {
		t.Fatalf("expected verification error in dialog, got %s %v", st.Phase(), err)
	}
	if !f.machine.Enabled() {
		t.Fatal("status must stay enabled on mismatch")
	}

	st, err = f.machine.ConfirmDisable(ctx, "123456")
	if err != nil || st.Phase() != PhaseInactive || f.machine.Enabled() {
		t.Fatalf("expected inactive, got %s %v", st.Phase(), err)
	}
}

func TestRequestDisableRequiresEnabled(t *testing.T) {
	f := newTwoFactorTest(t, false)
	if _, err := f.machine.RequestDisable(); !errors.Is(err, testErrors.InvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	f := newTwoFactorTest(t, false)
	f.session = false
	ctx := context.Background()

	if _, err := f.machine.RequestSetup(ctx); !errors.Is(err, testErrors.NoSession) {
		t.Fatalf("setup: expected no session, got %v", err)
	}
	if _, err := f.machine.ConfirmSetup(ctx, "123456"); !errors.Is(err, testErrors.NoSession) {
		t.Fatalf("confirm: expected no session, got %v", err)
	}
	if _, err := f.machine.RequestDisable(); !errors.Is(err, testErrors.NoSession) {
		t.Fatalf("disable: expected no session, got %v", err)
	}
	if f.backend.setupCalls != 0 {
		t.Fatal("expected no backend call without session")
	}
}

func TestExpiredSessionDuringConfirmClosesDialog(t *testing.T) {
	f := newTwoFactorTest(t, false)
	ctx := context.Background()
	_, _ = f.machine.RequestSetup(ctx)
	f.backend.verifyErr = testErrors.SessionExpired

	st, err := f.machine.ConfirmSetup(ctx, "123456")
	if err != testErrors.SessionExpired {
		t.Fatalf("expected bare session expired, got %v", err)
	}
	if st.Phase() != PhaseInactive {
		t.Fatalf("expected dialog closed, got %s", st.Phase())
	}
}

func TestConfirmSetupValidatesCode(t *testing.T) {
	f := newTwoFactorTest(t, false)
	ctx := context.Background()
	_, _ = f.machine.RequestSetup(ctx)

	st, err := f.machine.ConfirmSetup(ctx, "12 456")
	if !errors.Is(err, testErrors.Validation) || st.Phase() != PhaseAwaitingSetupConfirmation {
		t.Fatalf("expected validation error, got %s %v", st.Phase(), err)
	}
	if f.backend.verifyCalls != 0 {
		t.Fatal("invalid code must not reach backend")
	}
	if st := f.machine.InputChanged(); st.Err() != nil {
		t.Fatal("expected error cleared")
	}
}
