// Package kvstore wraps the hosted key-value service every other component
// persists through. The store is treated as external and eventually
// consistent: a write may not be visible to an immediate read from another
// instance, List is capped and approximate, and no transactions or
// compare-and-swap are available. Callers are designed around those caveats
// rather than the concrete client's stronger local guarantees.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps transport-level failures. The admission path treats it
// as a fail-closed deny; the analytics path swallows it.
var ErrUnavailable = errors.New("kv store unavailable")

type Store interface {
	// Get returns the value at key, or ok=false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Put writes value at key. A positive ttl makes the record self-evict;
	// ttl <= 0 stores without expiration.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// List returns up to limit keys beginning with prefix. Results beyond the
	// cap are silently dropped; callers must not assume exhaustiveness.
	List(ctx context.Context, prefix string, limit int) ([]string, error)

	Close() error
}
