package resolver

import (
	"context"
	"errors"

	"github.com/jamesainslie/stone/pkg/stone/cache"
	"github.com/jamesainslie/stone/pkg/stone/logging"
)

// Cache is the subset of *cache.Cache used by CachedFetcher.
type Cache interface {
	Lookup(repository, path string) (*cache.Entry, error)
	Stale(repository, path string) (*cache.Entry, error)
	Save(repository, path string, body []byte, lastModified string) error
}

// CachedFetcher serves fresh documents from a cache and revalidates expired
// ones with a conditional request.
type CachedFetcher struct {
	next  DocumentFetcher
	cache Cache
}

// NewCachedFetcher decorates next with c.
func NewCachedFetcher(next DocumentFetcher, c Cache) *CachedFetcher {
	return &CachedFetcher{next: next, cache: c}
}

// FetchDocument implements DocumentFetcher. The caller's ifModifiedSince is
// ignored; the cached Last-Modified value is used instead.
func (f *CachedFetcher) FetchDocument(ctx context.Context, repository, path, _ string) (*Document, error) {
	log := logging.Get("resolver")
	repository = normalizeRepository(repository)

	if entry, err := f.cache.Lookup(repository, path); err == nil {
		log.Debug("metadata cache hit", "repository", repository, "path", path)
		return &Document{Body: entry.Body, LastModified: entry.LastModified}, nil
	}

	var since string
	stale, err := f.cache.Stale(repository, path)
	if err == nil {
		since = stale.LastModified
	}

	doc, err := f.next.FetchDocument(ctx, repository, path, since)
	switch {
	case errors.Is(err, ErrNotModified) && stale != nil:
		log.Debug("metadata not modified", "repository", repository, "path", path)
		doc = &Document{Body: stale.Body, LastModified: stale.LastModified}
	case err != nil:
		return nil, err
	}

	if err := f.cache.Save(repository, path, doc.Body, doc.LastModified); err != nil {
		log.Warn("failed to cache metadata", "repository", repository, "path", path, "error", err)
	}
	return doc, nil
}
