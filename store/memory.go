package store

import (
	"bytes"
	"sync"
)

// Memory is an in-process Storage.
type Memory struct {
	data map[string][]byte
	mu   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}

	return bytes.Clone(v), nil
}

func (m *Memory) Apply(batch Batch) error {
	for k := range batch {
		if k == "" {
			return errInvalidKey.Fmt(k)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range batch {
		if v == nil {
			delete(m.data, k)
			continue
		}

		m.data[k] = bytes.Clone(v)
	}

	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}

	return keys, nil
}

func (m *Memory) Close() error {
	return nil
}
