package reconciliation

import (
	"context"

	"github.com/google/uuid"
)

// StudentLocker serializes all mutations of one student's account.
// Acquire blocks until the lock is held or gives up with a
// CONCURRENCY_CONFLICT error; release must be called exactly once.
type StudentLocker interface {
	Acquire(ctx context.Context, studentID uuid.UUID) (release func(), err error)
}
