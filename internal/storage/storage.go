// Package storage holds the client's persisted state in two scopes: a
// short-lived session scope that dies with the process and a long-lived
// local scope kept on disk between runs.
package storage

import (
	"errors"
	"sync"
)

// Store is a string key/value scope.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// Well-known keys.
const (
	KeyRefreshToken = "auth.refresh_token"
	KeySubject      = "auth.subject"
)

// Memory is the session scope.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty session scope.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.data = make(map[string]string)
	m.mu.Unlock()
	return nil
}

// Len reports how many keys are held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Scopes bundles both persisted scopes.
type Scopes struct {
	Session Store
	Local   Store
}

// Purge clears every scope, continuing past failures.
func (s Scopes) Purge() error {
	var errs []error
	for _, st := range []Store{s.Session, s.Local} {
		if st == nil {
			continue
		}
		if err := st.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
