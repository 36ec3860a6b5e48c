// Package lock keeps at most one save in flight per letter.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when another holder owns the key.
var ErrBusy = errors.New("lock held by another save")

// Guard hands out non-blocking, per-key exclusive holds. release is safe to
// call more than once.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// Memory is a process-local Guard.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryAcquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrBusy
	}
	m.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
