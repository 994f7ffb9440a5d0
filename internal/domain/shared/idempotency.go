package shared

import (
	"context"
	"time"
)

// StoredResponse is the outcome of a command remembered under a client's
// Idempotency-Key. Pending is set between Reserve and Complete.
type StoredResponse struct {
	Pending bool   `json:"pending,omitempty"`
	Status  int    `json:"status,omitempty"`
	Body    []byte `json:"body,omitempty"`
}

// IdempotencyStore remembers client-supplied request keys so a retried command
// is answered from the first execution instead of running twice.
type IdempotencyStore interface {
	// Reserve claims key for a command about to run.
	// Returns false if the key is already reserved or completed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete stores the response of the command that reserved key
	Complete(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error

	// Lookup returns what is stored under key, if anything
	Lookup(ctx context.Context, key string) (*StoredResponse, bool, error)

	// Forget releases key so the command may be retried
	Forget(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
