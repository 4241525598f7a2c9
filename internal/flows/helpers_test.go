package flows

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/goPortal/session"
	"github.com/MrEthical07/goPortal/transport"
)

var testErrors = ErrorSet{
	Validation:     errors.New("validation"),
	Credential:     errors.New("credential"),
	SecondFactor:   errors.New("second factor"),
	Setup:          errors.New("setup"),
	Verification:   errors.New("verification"),
	InvalidState:   errors.New("invalid state"),
	Busy:           errors.New("busy"),
	Cancelled:      errors.New("cancelled"),
	NoSession:      errors.New("no session"),
	SessionExpired: errors.New("session expired"),
}

type fakeVerifier struct {
	mu sync.Mutex

	loginCalls    int
	completeCalls int
	challenges    []string

	loginResult transport.LoginResult
	loginErr    error
	validCode   string
	terminal    map[string]bool

	// block, when set, is received from before a call returns.
	block chan struct{}
	// entered, when set, is signalled once a call has started.
	entered chan struct{}
}

func (f *fakeVerifier) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeVerifier) Login(_ context.Context, email, password string) (transport.LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	f.wait()
	if f.loginErr != nil {
		return transport.LoginResult{}, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeVerifier) CompleteTwoFactorLogin(_ context.Context, challenge, code string) (transport.LoginResult, error) {
	f.mu.Lock()
	f.completeCalls++
	f.challenges = append(f.challenges, challenge)
	used := f.terminal[challenge]
	f.mu.Unlock()
	f.wait()
	if used {
		return transport.LoginResult{}, &transport.APIError{Status: 410, Code: transport.CodeChallengeExpired, Message: "Verification session expired"}
	}
	if code != f.validCode {
		return transport.LoginResult{}, &transport.APIError{Status: 400, Code: transport.CodeInvalidCode, Message: "Invalid verification code"}
	}
	f.mu.Lock()
	if f.terminal == nil {
		f.terminal = map[string]bool{}
	}
	f.terminal[challenge] = true
	f.mu.Unlock()
	return transport.LoginResult{Token: "tok-final", User: session.Identity{ID: "u-1", Email: "a@b.com"}}, nil
}

func (f *fakeVerifier) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.completeCalls
}

func isTerminal(err error) bool {
	apiErr, ok := transport.AsAPIError(err)
	return ok && apiErr.Terminal()
}

type recordingCommit struct {
	mu       sync.Mutex
	sessions []session.Session
	err      error
}

func (r *recordingCommit) commit(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *recordingCommit) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type metricCounter struct {
	mu     sync.Mutex
	counts map[int]int
}

func (m *metricCounter) inc(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[int]int{}
	}
	m.counts[id]++
}

func (m *metricCounter) get(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[id]
}
