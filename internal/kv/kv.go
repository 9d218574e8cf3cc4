// Package kv provides the local key-value substrate the session store
// persists into. Implementations have an explicit lifecycle and are
// injected rather than reached for as ambient globals, so tests can
// substitute fakes.
package kv

import "context"

// Store is a flat key-value namespace. Implementations are safe for use
// from a single process; writes from concurrent processes are
// last-writer-wins with no optimistic locking.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	// SizeInBytes reports the aggregate size of all stored keys and values.
	SizeInBytes(ctx context.Context) (int64, error)
	Close() error
}
