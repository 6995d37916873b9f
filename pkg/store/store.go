// Package store provides the key-value persistence backend used by the job
// store, the auth substrate, and the candidate pool. Two implementations
// exist: an in-memory backend for single-process deployments and tests, and
// a Redis backend for multi-replica deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for backend operations.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable is returned when the backend cannot be reached.
	// Readers degrade to "not found + warning"; writers abort the request.
	ErrUnavailable = errors.New("store unavailable")
)

// Backend is the minimal key-value contract.
// A zero TTL means the key does not expire.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets the key only if it does not exist. Returns true if set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// GetDel atomically reads and deletes (consume-once semantics for tickets).
	GetDel(ctx context.Context, key string) ([]byte, error)
	// Keys returns all live keys with the given prefix. Used by the TTL
	// sweep and running-jobs snapshot; key cardinality is bounded by job TTLs.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Expire refreshes the TTL of an existing key (sliding sessions).
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
