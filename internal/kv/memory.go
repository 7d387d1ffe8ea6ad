package kv

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store. With a positive quota it rejects writes that
// would grow the sum of key and value lengths past the quota, the way browser
// storage does.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	size   int64
	quota  int64
	closed bool

	failSet error
	sets    int
}

// NewMemory creates an in-memory store. quotaBytes <= 0 means unlimited.
func NewMemory(quotaBytes int64) *Memory {
	return &Memory{
		data:  make(map[string]string),
		quota: quotaBytes,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sets++
	if m.failSet != nil {
		return m.failSet
	}

	next := m.size + int64(len(key)+len(value))
	if old, ok := m.data[key]; ok {
		next -= int64(len(key) + len(old))
	}
	if m.quota > 0 && next > m.quota {
		return fmt.Errorf("%w: %d bytes needed, limit %d", ErrQuotaExceeded, next, m.quota)
	}
	m.data[key] = value
	m.size = next
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if old, ok := m.data[key]; ok {
		m.size -= int64(len(key) + len(old))
		delete(m.data, key)
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Size returns the bytes currently counted against the quota.
func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// SetCount returns how many Set calls the store has received, including
// rejected ones.
func (m *Memory) SetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets
}

// FailSets makes every subsequent Set return err until called with nil.
func (m *Memory) FailSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = err
}
