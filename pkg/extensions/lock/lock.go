// Package lock serializes enable and disable runs per course.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to one course at a time. The returned unlock function must
// be called exactly once.
type Locker interface {
	Lock(ctx context.Context, courseID string) (unlock func(), err error)
}

// Memory is a process-local Locker.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// NewMemory creates a process-local Locker.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*slot)}
}

// Lock blocks until courseID is free or ctx is done.
func (m *Memory) Lock(ctx context.Context, courseID string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[courseID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[courseID] = s
	}
	s.waiters++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(courseID, s, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(courseID, s, true) })
	}, nil
}

func (m *Memory) release(courseID string, s *slot, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held {
		<-s.ch
	}
	s.waiters--
	if s.waiters == 0 {
		delete(m.slots, courseID)
	}
}
