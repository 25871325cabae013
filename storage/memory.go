// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Store.  The zero value is not usable, see NewMemory.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// ensure that Memory implements the Store interface
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]string),
	}
}

// Get implements Store.Get.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	const op = "Memory.Get"
	if key == "" {
		return "", fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrNotFound)
	}
	return v, nil
}

// Set implements Store.Set.
func (m *Memory) Set(_ context.Context, key, value string) error {
	const op = "Memory.Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// Remove implements Store.Remove.
func (m *Memory) Remove(_ context.Context, key string) error {
	const op = "Memory.Remove"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Keys implements Store.Keys.  Keys are returned sorted.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
