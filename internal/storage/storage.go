// Package storage is the persistence collaborator behind the token
// cache and the auth registry. Backends are interchangeable: a plain
// in-memory map, a bolt file, or the embedded sqlite database a desktop
// shell proxies. Values are opaque blobs; callers own the encoding.
package storage

import "context"

type Store interface {
	// Get returns the stored value, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
