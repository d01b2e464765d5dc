// Package store provides in-process snapshot store implementations.
package store

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the current payload, every corrupt backup and the metadata
// keys in process memory. Payloads are copied on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	payload []byte
	backups []Backup
	meta    map[string]string
	now     func() time.Time
}

// Backup is a stashed raw payload that lost all of its orders on import.
type Backup struct {
	Payload   []byte
	CreatedAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		meta: make(map[string]string),
		now:  time.Now,
	}
}

// Save overwrites the current payload.
func (m *Memory) Save(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = clone(payload)
	return nil
}

// Load returns the current payload, or nil if nothing was saved yet.
func (m *Memory) Load(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.payload), nil
}

// SaveCorruptBackup appends a backup. Older backups are kept.
func (m *Memory) SaveCorruptBackup(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = append(m.backups, Backup{Payload: clone(payload), CreatedAt: m.now().UTC()})
	return nil
}

// LoadCorruptBackup returns the most recent backup, or nil.
func (m *Memory) LoadCorruptBackup(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.backups) == 0 {
		return nil, nil
	}
	return clone(m.backups[len(m.backups)-1].Payload), nil
}

// Backups returns every stored backup, oldest first.
func (m *Memory) Backups() []Backup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Backup, len(m.backups))
	for i, b := range m.backups {
		out[i] = Backup{Payload: clone(b.Payload), CreatedAt: b.CreatedAt}
	}
	return out
}

func (m *Memory) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

// Meta returns the value for key and "" when unset.
func (m *Memory) Meta(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[key], nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
