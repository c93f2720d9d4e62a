// Package state persists the serialized keyring state as one opaque blob.
package state

import (
	"context"
	"fmt"
	"sync"
)

// Store loads and saves the keyring state blob. Load returns nil, nil when
// nothing has been saved yet. Save replaces the whole blob atomically.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Path      string // file path or sqlite DSN
	RedisAddr string
	RedisKey  string
}

// Open builds the store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path)
	case BackendSQLite:
		return OpenSQLiteStore(opts.Path)
	case BackendRedis:
		return DialRedisStore(opts.RedisAddr, opts.RedisKey)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
	}
}

// MemoryStore keeps the blob in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	blob []byte

	// FailSave, when set, is returned by Save instead of storing.
	FailSave error
	saves    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.blob == nil {
		return nil, nil
	}
	out := make([]byte, len(m.blob))
	copy(out, m.blob)
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.blob = append([]byte(nil), blob...)
	m.saves++
	return nil
}

// Saves reports how many successful saves happened.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *MemoryStore) Close() error { return nil }
