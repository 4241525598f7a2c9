package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultTokenKey is the fixed name of the durable entry holding the bearer token.
const DefaultTokenKey = "token"

// ErrStorageUnavailable is returned when the durable backend cannot be reached.
var ErrStorageUnavailable = errors.New("token storage unavailable")

// TokenStorage persists exactly one bearer token. Load reports false when no
// token is stored. Delete of a missing token is not an error.
type TokenStorage interface {
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// MemoryStorage keeps the token in process memory. It is the default when no
// durable backend is configured.
type MemoryStorage struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.set, nil
}

func (m *MemoryStorage) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

func (m *MemoryStorage) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.set = false
	return nil
}

// FileStorage stores the token in a single file named after the key inside
// dir. The file is written with mode 0600 and replaced atomically.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage returns a storage writing dir/key. An empty key falls back
// to [DefaultTokenKey].
func NewFileStorage(dir, key string) (*FileStorage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file storage directory is required")
	}
	if key == "" {
		key = DefaultTokenKey
	}
	if strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid token key %q", key)
	}
	return &FileStorage{path: filepath.Join(dir, key)}, nil
}

// Path returns the file holding the token.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load(context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (f *FileStorage) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".token-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (f *FileStorage) Delete(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
