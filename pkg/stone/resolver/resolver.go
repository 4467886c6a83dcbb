// Package resolver turns package names into the descriptor of their current
// development-branch version by querying Composer metadata repositories.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

// DefaultRepository is the public Packagist metadata repository.
const DefaultRepository = "https://repo.packagist.org"

var (
	// ErrPackageNotFound is returned when a repository has no development
	// version of the requested package.
	ErrPackageNotFound = errors.New("package not found")

	// ErrNotModified is returned by a DocumentFetcher when the caller's
	// If-Modified-Since value is still current.
	ErrNotModified = errors.New("document not modified")
)

// Resolver resolves a package name to a descriptor.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*types.Descriptor, error)
}

// Document is a metadata document retrieved from a repository.
type Document struct {
	Body         []byte
	LastModified string
}

// DocumentFetcher retrieves metadata documents from a repository.
// A non-empty ifModifiedSince makes the request conditional.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, repository, path, ifModifiedSince string) (*Document, error)
}

// ChainResolver asks each resolver in turn and returns the first hit.
// Only ErrPackageNotFound moves on to the next resolver; any other error
// stops the chain.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(ctx context.Context, name string) (*types.Descriptor, error) {
	for _, r := range c {
		d, err := r.Resolve(ctx, name)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, ErrPackageNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
}

// Options configures New.
type Options struct {
	// Repositories are consulted in order; DefaultRepository is appended
	// unless already present.
	Repositories []string
	Client       ClientOptions
	// Cache, when set, stores metadata documents between runs.
	Cache Cache
}

// Client is the configured set of repositories. It resolves through every
// configured repository in order and can be widened with repositories a
// manifest declares.
type Client struct {
	docs  DocumentFetcher
	chain ChainResolver
}

// New builds a Client over the configured repositories.
func New(opts Options) *Client {
	var docs DocumentFetcher = NewHTTPFetcher(opts.Client)
	if opts.Cache != nil {
		docs = NewCachedFetcher(docs, opts.Cache)
	}

	repos := append([]string(nil), opts.Repositories...)
	if !slices.ContainsFunc(repos, func(r string) bool { return normalizeRepository(r) == DefaultRepository }) {
		repos = append(repos, DefaultRepository)
	}

	c := &Client{docs: docs}
	c.chain = c.resolversFor(repos)
	return c
}

// Resolve implements Resolver.
func (c *Client) Resolve(ctx context.Context, name string) (*types.Descriptor, error) {
	return c.chain.Resolve(ctx, name)
}

// Repositories returns the repositories consulted, in order.
func (c *Client) Repositories() []string {
	out := make([]string, 0, len(c.chain))
	for _, r := range c.chain {
		if p, ok := r.(*PackagistResolver); ok {
			out = append(out, p.Repository())
		}
	}
	return out
}

// WithRepositories returns a resolver that consults urls before the
// configured repositories. URLs already configured are not repeated.
func (c *Client) WithRepositories(urls []string) Resolver {
	known := c.Repositories()
	var extra []string
	for _, u := range urls {
		u = normalizeRepository(u)
		if u == "" || slices.Contains(known, u) || slices.Contains(extra, u) {
			continue
		}
		extra = append(extra, u)
	}
	if len(extra) == 0 {
		return c
	}
	return append(c.resolversFor(extra), c.chain...)
}

func (c *Client) resolversFor(repos []string) ChainResolver {
	chain := make(ChainResolver, 0, len(repos))
	for _, r := range repos {
		chain = append(chain, NewPackagistResolver(r, c.docs))
	}
	return chain
}
