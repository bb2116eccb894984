// Package cache provides byte-payload caching for fetched registry
// artifacts (gemspec files, index downloads) with file, redis, and null
// backends.
//
// Keys are hashed before storage, so arbitrary URLs and gem full names are
// safe keys. A TTL of zero means the entry never expires; gemspec payloads
// are immutable per (name, version, platform), so they are stored without
// expiry.
package cache

import (
	"context"
	"time"
)

// Cache is the backend interface. Implementations must tolerate concurrent
// use from multiple sessions.
type Cache interface {
	// Get returns the payload for key. hit is false on a miss; a miss is
	// not an error.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores a payload. ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Scoped wraps a Cache, prefixing every key. Different artifact kinds
// (gemspecs, indexes) share one backend without key collisions.
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped returns a view of inner with all keys prefixed.
func NewScoped(inner Cache, prefix string) *Scoped {
	return &Scoped{inner: inner, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close is a no-op; the owner of the inner cache closes it.
func (s *Scoped) Close() error { return nil }

var _ Cache = (*Scoped)(nil)
