package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type lease struct {
	token   string
	expires time.Time
}

// MemoryLocker holds leases in process
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]lease), now: time.Now}
}

func (m *MemoryLocker) tryOnce(name, token string, hold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.leases[name]; ok && now.Before(l.expires) {
		return false
	}
	m.leases[name] = lease{token: token, expires: now.Add(hold)}
	return true
}

// TryAcquire polls for name until wait elapses
func (m *MemoryLocker) TryAcquire(ctx context.Context, name string, wait, hold time.Duration) (string, error) {
	token := uuid.NewString()
	err := poll(ctx, wait, func() (bool, error) {
		return m.tryOnce(name, token, hold), nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Release drops the lease if token still owns it
func (m *MemoryLocker) Release(_ context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[name]; ok && l.token == token {
		delete(m.leases, name)
	}
	return nil
}

// IsHeld reports whether token still owns an unexpired lease on name
func (m *MemoryLocker) IsHeld(_ context.Context, name, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[name]
	return ok && l.token == token && m.now().Before(l.expires), nil
}

func (m *MemoryLocker) held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[name]
	return ok && m.now().Before(l.expires)
}
