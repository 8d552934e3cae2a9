// Package kvstore provides the durable key-value substrate backing the
// chat store and the API key pool. Records are small JSON blobs written
// whole on every mutation, so the interface is a plain get/put/delete.
package kvstore

import "context"

// Store is the durable key-value substrate. Get returns (nil, nil) when the
// key is absent; callers treat a missing record as empty state.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
