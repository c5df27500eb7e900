// Package store provides local state persistence interfaces and implementations.
package store

import (
	"context"
)

// Repository defines the interface for the console's durable key/value state.
// Values are serialized text (JSON); callers own the schema of each value and
// must treat entries that fail to parse as absent, purging them via Delete.
type Repository interface {
	// Get retrieves the value stored under key. The second return value is
	// false when no entry exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put creates or overwrites the entry under key.
	Put(ctx context.Context, key string, value string) error

	// Delete removes the entry under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies storage connectivity and returns an error if the database
	// is unreachable.
	Ping(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
