package tokenstore

import (
	"context"
	"sync"
)

// Memory is a process-local Store. It does not survive restarts.
type Memory struct {
	mu     sync.RWMutex
	data   map[Key]string
	closed bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[Key]string)}
}

func (m *Memory) Get(_ context.Context, key Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Put(_ context.Context, values map[Key]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range values {
		if v == "" {
			delete(m.data, k)
			continue
		}
		m.data[k] = v
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
