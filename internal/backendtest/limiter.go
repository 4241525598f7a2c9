package backendtest

import (
	"strings"
	"sync"
	"time"
)

// loginLimiter counts failed logins per email inside a fixed window. Once
// max failures are recorded further attempts are refused until the window
// ends.
type loginLimiter struct {
	max      int
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	failures map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

func newLoginLimiter(max int, cooldown time.Duration, now func() time.Time) *loginLimiter {
	return &loginLimiter{max: max, cooldown: cooldown, now: now, failures: map[string]*window{}}
}

// allowed reports whether email may attempt a login now.
func (l *loginLimiter) allowed(email string) bool {
	if l == nil || l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.failures[key(email)]
	if !ok {
		return true
	}
	if !l.now().Before(w.resetAt) {
		delete(l.failures, key(email))
		return true
	}
	return w.count < l.max
}

func (l *loginLimiter) fail(email string) {
	if l == nil || l.max <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.failures[key(email)]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cooldown)}
		l.failures[key(email)] = w
	}
	w.count++
}

func (l *loginLimiter) reset(email string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.failures, key(email))
	l.mu.Unlock()
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
