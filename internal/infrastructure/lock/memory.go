// Package lock provides the per-student locks that serialize ledger commands.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
)

// DefaultAcquireTimeout is used when no timeout is configured
const DefaultAcquireTimeout = 5 * time.Second

// slot is one student's lock. refs counts holders and waiters so the slot can
// be dropped once nobody uses it.
type slot struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes commands per student inside one process
type MemoryLocker struct {
	mu      sync.Mutex
	slots   map[uuid.UUID]*slot
	timeout time.Duration
}

// NewMemoryLocker creates a MemoryLocker. Acquire gives up after timeout.
func NewMemoryLocker(timeout time.Duration) *MemoryLocker {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &MemoryLocker{
		slots:   make(map[uuid.UUID]*slot),
		timeout: timeout,
	}
}

// Acquire blocks until the student's lock is free, the timeout elapses or ctx
// is done. Both failures are reported as CONCURRENCY_CONFLICT.
func (l *MemoryLocker) Acquire(ctx context.Context, studentID uuid.UUID) (func(), error) {
	s := l.ref(studentID)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		l.unref(studentID)
		return nil, conflictError(studentID, l.timeout, nil)
	case <-ctx.Done():
		l.unref(studentID)
		return nil, conflictError(studentID, l.timeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(studentID)
		})
	}, nil
}

func (l *MemoryLocker) ref(studentID uuid.UUID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[studentID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[studentID] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) unref(studentID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.slots[studentID]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, studentID)
		}
	}
}

// held returns the number of students with a holder or waiter
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func conflictError(studentID uuid.UUID, timeout time.Duration, cause error) *shared.DomainError {
	return &shared.DomainError{
		Code:    shared.CodeConcurrencyConflict,
		Message: fmt.Sprintf("student %s is locked by another command (waited %s)", studentID, timeout),
		Cause:   cause,
	}
}
