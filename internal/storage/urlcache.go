package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	cache "github.com/go-pkgz/expirable-cache"
)

// ErrUnavailable means the download URL could not be produced right now; the
// file is temporarily unfetchable, not lost.
var ErrUnavailable = errors.New("download url unavailable")

const (
	urlTTL         = time.Hour
	maxCachedURLs  = 1024
	resolveTimeout = 10 * time.Second
)

// Resolver turns a file handle into a short-lived download URL upstream.
type Resolver func(ctx context.Context, fileID string) (string, error)

// URLCache caches ephemeral download URLs per file handle. Entries live for
// an hour, matching the platform's link validity, and the cache is a bounded
// LRU so it cannot grow without limit over the process lifetime. Staleness
// is checked lazily at lookup; there is no background sweep.
type URLCache struct {
	resolve Resolver
	cache   cache.Cache
}

// NewURLCache creates a cache over the given upstream resolver.
func NewURLCache(resolve Resolver) (*URLCache, error) {
	return newURLCache(resolve, urlTTL)
}

func newURLCache(resolve Resolver, ttl time.Duration) (*URLCache, error) {
	c, err := cache.NewCache(cache.TTL(ttl), cache.MaxKeys(maxCachedURLs), cache.LRU())
	if err != nil {
		return nil, fmt.Errorf("create url cache: %w", err)
	}
	return &URLCache{resolve: resolve, cache: c}, nil
}

// Resolve returns a download URL for the file handle, from cache when fresh,
// otherwise via one upstream call. Failed resolutions are never cached.
func (c *URLCache) Resolve(ctx context.Context, fileID string) (string, error) {
	if v, ok := c.cache.Get(fileID); ok {
		return v.(string), nil
	}

	resCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	url, err := c.resolve(resCtx, fileID)
	if err != nil {
		log.Printf("storage: resolve url failed: %v", err)
		return "", ErrUnavailable
	}
	c.cache.Set(fileID, url, 0)
	return url, nil
}

// Invalidate drops the cached URL for the handle, used when the underlying
// file is deleted.
func (c *URLCache) Invalidate(fileID string) {
	c.cache.Invalidate(fileID)
}
