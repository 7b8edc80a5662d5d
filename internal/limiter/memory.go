package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with the same window and lockout rules as PG.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*attempts
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]*attempts),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func memKey(scope string, ipHash []byte) string { return scope + "\x00" + string(ipHash) }

// Allow reports whether an attempt is currently allowed.
func (m *Memory) Allow(_ context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.entries[memKey(scope, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if d := a.blockedUntil.Sub(m.now()); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

// Success forgets failures of an unblocked client.
func (m *Memory) Success(_ context.Context, scope string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(scope, ipHash)
	if a, ok := m.entries[k]; ok && !a.blockedUntil.After(m.now()) {
		delete(m.entries, k)
	}
	return nil
}

// Failure records a failed attempt.
func (m *Memory) Failure(_ context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := memKey(scope, ipHash)
	a, ok := m.entries[k]
	if !ok {
		a = &attempts{}
		m.entries[k] = a
	}
	if now.Sub(a.updatedAt) > m.window {
		a.fails = 0
	}
	a.fails++
	a.updatedAt = now
	if a.fails >= m.maxFails {
		a.fails = 0
		a.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}

// Purge drops entries that are neither blocking nor inside the window.
func (m *Memory) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for k, a := range m.entries {
		if !a.blockedUntil.After(now) && now.Sub(a.updatedAt) > m.window {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}
