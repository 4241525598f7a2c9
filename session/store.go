package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")
	// ErrPersist is returned when the durable token entry cannot be written or removed.
	ErrPersist = errors.New("session persistence failed")
	// ErrEmptyToken is returned when committing a session without a token.
	ErrEmptyToken = errors.New("session token is empty")
)

// ChangeFunc observes session changes. present is false after a clear.
type ChangeFunc func(s Session, present bool)

// Store holds the current session and mirrors its token into a TokenStorage.
// All methods are safe for concurrent use. Mutations are serialized so the
// durable entry and the in-memory session never disagree about ordering.
type Store struct {
	storage TokenStorage

	writeMu sync.Mutex

	mu      sync.RWMutex
	current Session
	present bool

	obsMu     sync.Mutex
	observers map[int]ChangeFunc
	nextObs   int
}

// NewStore returns a store persisting through storage. A nil storage keeps
// the token in memory only.
func NewStore(storage TokenStorage) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Store{
		storage:   storage,
		observers: map[int]ChangeFunc{},
	}
}

// Current returns a copy of the active session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return Session{}, false
	}
	return s.current.clone(), true
}

// Token returns the bearer token of the active session.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return "", false
	}
	return s.current.Token, true
}

// Commit persists the token and then installs sess as the active session.
// A persistence failure leaves the store unchanged.
func (s *Store) Commit(ctx context.Context, sess Session) error {
	if sess.Token == "" {
		return ErrEmptyToken
	}

	s.writeMu.Lock()
	if err := s.storage.Save(ctx, sess.Token); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	next := sess.clone()
	s.mu.Lock()
	s.current = next
	s.present = true
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(next.clone(), true)
	return nil
}

// Clear removes the active session and the durable entry. Clearing an empty
// store is a no-op apart from removing any stray durable entry.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	err := s.storage.Delete(ctx)
	s.mu.Lock()
	had := s.present
	s.current = Session{}
	s.present = false
	s.mu.Unlock()
	s.writeMu.Unlock()

	if had {
		s.notify(Session{}, false)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// ClearIfToken clears the session only while token is still the active one.
// It reports whether a session was cleared.
func (s *Store) ClearIfToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	s.writeMu.Lock()
	s.mu.RLock()
	match := s.present && s.current.Token == token
	s.mu.RUnlock()
	if !match {
		s.writeMu.Unlock()
		return false, nil
	}

	err := s.storage.Delete(ctx)
	s.mu.Lock()
	s.current = Session{}
	s.present = false
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(Session{}, false)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return true, nil
}

// PatchIdentity merges p into the active identity and returns the result.
func (s *Store) PatchIdentity(p IdentityPatch) (Identity, error) {
	s.writeMu.Lock()
	s.mu.Lock()
	if !s.present {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return Identity{}, ErrNoSession
	}
	s.current.User = p.Apply(s.current.User)
	snapshot := s.current.clone()
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(snapshot, true)
	return snapshot.User, nil
}

// SetIdentity replaces the active identity, typically after the backend
// returned a fresh profile. It clears the Restored marker.
func (s *Store) SetIdentity(id Identity) error {
	s.writeMu.Lock()
	s.mu.Lock()
	if !s.present {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return ErrNoSession
	}
	s.current.User = id.clone()
	s.current.Restored = false
	snapshot := s.current.clone()
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(snapshot, true)
	return nil
}

// Hydrate loads a persisted token into the store. The restored session has
// an empty identity until the first authorized fetch fills it. An already
// active session is returned unchanged.
func (s *Store) Hydrate(ctx context.Context) (Session, bool, error) {
	s.writeMu.Lock()
	s.mu.RLock()
	if s.present {
		cur := s.current.clone()
		s.mu.RUnlock()
		s.writeMu.Unlock()
		return cur, true, nil
	}
	s.mu.RUnlock()

	token, ok, err := s.storage.Load(ctx)
	if err != nil {
		s.writeMu.Unlock()
		return Session{}, false, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if !ok {
		s.writeMu.Unlock()
		return Session{}, false, nil
	}

	restored := Session{Token: token, Restored: true}
	s.mu.Lock()
	s.current = restored
	s.present = true
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(restored.clone(), true)
	return restored.clone(), true, nil
}

// OnChange registers fn to run after every change. The returned function
// removes the observer.
func (s *Store) OnChange(fn ChangeFunc) func() {
	if fn == nil {
		return func() {}
	}
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(sess Session, present bool) {
	s.obsMu.Lock()
	fns := make([]ChangeFunc, 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(sess, present)
	}
}
