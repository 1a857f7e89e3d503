package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is a map-backed Adapter for tests and ephemeral use.
type Memory struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]json.RawMessage)}
}

// Get implements Adapter.
func (m *Memory) Get(_ context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("get %q: unmarshal: %w", key, err)
	}
	return true, nil
}

// GetMultiple implements Adapter.
func (m *Memory) GetMultiple(_ context.Context, keys []string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if raw, ok := m.values[k]; ok {
			out[k] = raw
		}
	}
	return out, nil
}

// Set implements Adapter.
func (m *Memory) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %q: marshal: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
	return nil
}

// SetMultiple implements Adapter.
func (m *Memory) SetMultiple(ctx context.Context, values map[string]any) error {
	for key, value := range values {
		if err := m.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Remove implements Adapter.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// RemoveMultiple implements Adapter.
func (m *Memory) RemoveMultiple(_ context.Context, keys []string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.values, k)
	}
	m.mu.Unlock()
	return nil
}
