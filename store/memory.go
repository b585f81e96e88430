package store

import (
	"context"
	"sync"

	"github.com/patriciaforestry/mpf"
)

// Memory is an in-memory mpf.Store, backed by a plain map guarded by a
// RWMutex. It is intended for tests and short-lived tries; nothing is
// persisted across process restarts.
type Memory struct {
	mu   sync.RWMutex
	data map[mpf.Hash][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[mpf.Hash][]byte)}
}

func (m *Memory) Get(_ context.Context, key mpf.Hash) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Put(_ context.Context, key mpf.Hash, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, key mpf.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Exists(_ context.Context, key mpf.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *Memory) Batch(ctx context.Context, ops []mpf.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.Tombstone {
			delete(m.data, op.Key)
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		m.data[op.Key] = v
	}
	return nil
}

var _ mpf.Store = (*Memory)(nil)
