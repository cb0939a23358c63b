// Package kvstore defines the machine's persistence boundary: a small
// key-value contract holding JSON-encoded records. One backend is selected
// at process start; the domain layer never sees which.
package kvstore

import "context"

// Gateway is implemented per storage backend. Get reports absence through
// the found flag rather than an error so callers can fall back to defaults
// without error inspection.
type Gateway interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	HasKey(ctx context.Context, key string) (bool, error)
}
