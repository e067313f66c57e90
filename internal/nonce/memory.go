// Package nonce remembers request nonces for a bounded window so that signed
// requests cannot be replayed.
package nonce

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrReplayed is returned when a nonce was already seen within its window.
	ErrReplayed = errors.New("nonce already used")
	// ErrInvalidTTL is returned for a non-positive ttl.
	ErrInvalidTTL = errors.New("ttl must be > 0")
)

// MemoryStore holds nonces in a map protected by a mutex.
// Expired entries are pruned by a background janitor.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // value = expiry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore returns an empty store without a janitor.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Remember records nonce for ttl. It fails with ErrReplayed when the nonce is
// still remembered from an earlier call.
func (m *MemoryStore) Remember(nonce string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.entries[nonce]; ok && now.Before(exp) {
		return ErrReplayed
	}
	m.entries[nonce] = now.Add(ttl)
	return nil
}

// Len returns the number of remembered nonces, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ExpireNonces drops every expired nonce.
func (m *MemoryStore) ExpireNonces() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
}

// StartJanitor prunes expired nonces every interval until Close.
func (m *MemoryStore) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ExpireNonces()
			case <-m.stop:
				return
			}
		}
	}()
}

// Close stops the janitor.
func (m *MemoryStore) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}
