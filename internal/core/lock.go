// Package core defines the ports between the harvest services and their adapters.
package core

import (
	"context"
	"time"
)

// LockRepository provides a distributed mutual exclusion primitive.
type LockRepository interface {
	// Acquire atomically sets key to token only if it doesn't already exist.
	// Returns true if the lock was taken.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release deletes key if it still holds token.
	// Returns false if the lock had expired or was taken by someone else.
	Release(ctx context.Context, key, token string) (bool, error)
	// Health checks the health of the backing store.
	Health(ctx context.Context) error
}
