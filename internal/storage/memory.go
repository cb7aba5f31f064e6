package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryMedium keeps entries in process memory.
type MemoryMedium struct {
	mu    sync.RWMutex
	data  map[string][]byte
	used  int64
	quota int64
}

// NewMemoryMedium creates an empty medium; quota <= 0 disables the limit.
func NewMemoryMedium(quota int64) *MemoryMedium {
	return &MemoryMedium{data: make(map[string][]byte), quota: quota}
}

func (m *MemoryMedium) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryMedium) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldSize int64
	if old, ok := m.data[key]; ok {
		oldSize = EntrySize(key, old)
	}
	newSize := EntrySize(key, value)
	if err := checkQuota(key, m.used, oldSize, newSize, m.quota); err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	m.used += newSize - oldSize
	return nil
}

func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= EntrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryMedium) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryMedium) Usage(context.Context) (Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Usage{Used: m.used, Quota: m.quota}, nil
}

// SetQuota changes the limit; existing entries are kept even when they
// already exceed it.
func (m *MemoryMedium) SetQuota(quota int64) {
	m.mu.Lock()
	m.quota = quota
	m.mu.Unlock()
}

func (m *MemoryMedium) Close() error { return nil }
