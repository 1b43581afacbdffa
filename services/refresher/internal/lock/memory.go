package lock

import (
	"context"
	"sync"
	"time"
)

// memoryLocker is a development-only locker.
// WARNING: not suitable for production, it does not work across instances.
type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryHold
	clock func() time.Time
}

type memoryHold struct {
	token   string
	expires time.Time
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]memoryHold), clock: time.Now}
}

func (l *memoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, false, nil
	}
	token := newToken()
	l.held[key] = memoryHold{token: token, expires: now.Add(ttl)}
	return &memoryLease{l: l, key: key, token: token}, true, nil
}

type memoryLease struct {
	l     *memoryLocker
	key   string
	token string
}

func (m *memoryLease) Release(context.Context) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if h, ok := m.l.held[m.key]; ok && h.token == m.token {
		delete(m.l.held, m.key)
	}
	return nil
}
