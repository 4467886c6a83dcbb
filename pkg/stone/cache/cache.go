package cache

import (
	"errors"
	"time"
)

// Cache provides freshness-aware access to cached metadata documents.
type Cache struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// Open opens or creates a cache at the given path. Entries older than ttl
// are treated as missing; a ttl of zero keeps entries forever and a negative
// ttl makes every entry stale (revalidate on each use).
func Open(path string, ttl time.Duration) (*Cache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	return &Cache{store: store, ttl: ttl, now: time.Now}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// TTL returns the freshness window of the cache.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns a fresh cached document, or ErrNotFound.
func (c *Cache) Lookup(repository, path string) (*Entry, error) {
	entry, err := c.store.Get(repository, path)
	if err != nil {
		return nil, err
	}
	if c.ttl < 0 || (c.ttl > 0 && entry.Age(c.now()) > c.ttl) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Save stores a document fetched now.
func (c *Cache) Save(repository, path string, body []byte, lastModified string) error {
	entry := &Entry{
		Body:         body,
		LastModified: lastModified,
		FetchedAt:    c.now().UnixNano(),
	}
	// Keep entries on disk a little longer than their freshness window so an
	// expired document can still be revalidated with If-Modified-Since.
	return c.store.Put(repository, path, entry, 2*c.ttl)
}

// Stale returns a cached document regardless of its age, or ErrNotFound.
func (c *Cache) Stale(repository, path string) (*Entry, error) {
	return c.store.Get(repository, path)
}

// Invalidate removes a cached document.
func (c *Cache) Invalidate(repository, path string) error {
	err := c.store.Delete(repository, path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ClearAll removes all cached entries.
func (c *Cache) ClearAll() error {
	return c.store.DeletePrefix("")
}

// Len returns the number of cached documents.
func (c *Cache) Len() (int, error) {
	return c.store.Count("")
}
