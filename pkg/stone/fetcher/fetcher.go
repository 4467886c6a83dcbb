// Package fetcher places package sources into mirror directories. Each
// version control system has its own implementation; Dispatcher picks one
// from the descriptor's source type.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

// ErrUnsupportedSource is returned for source types no fetcher handles.
var ErrUnsupportedSource = errors.New("unsupported source type")

// Fetcher downloads or updates package sources.
//
// FetchFresh places desc's sources at targetDir, replacing whatever is there.
// FetchIncremental moves an existing checkout from old to desc, falling back
// to a fresh fetch when targetDir holds no usable checkout.
type Fetcher interface {
	FetchFresh(ctx context.Context, desc *types.Descriptor, targetDir string) error
	FetchIncremental(ctx context.Context, old, desc *types.Descriptor, targetDir string) error
}

// Dispatcher routes each fetch to the fetcher registered for the source type.
type Dispatcher struct {
	fetchers map[string]Fetcher
}

// NewDispatcher returns a dispatcher with no fetchers registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{fetchers: make(map[string]Fetcher)}
}

// Default returns a dispatcher for git, hg and svn sources.
func Default() *Dispatcher {
	d := NewDispatcher()
	d.Register(types.SourceGit, NewGitFetcher())
	d.Register(types.SourceHg, NewHgFetcher(nil))
	d.Register(types.SourceSvn, NewSvnFetcher(nil))
	return d
}

// Register installs f for sourceType, replacing any previous fetcher.
func (d *Dispatcher) Register(sourceType string, f Fetcher) {
	d.fetchers[sourceType] = f
}

// Supports reports whether a fetcher is registered for sourceType.
func (d *Dispatcher) Supports(sourceType string) bool {
	_, ok := d.fetchers[sourceType]
	return ok
}

func (d *Dispatcher) lookup(desc *types.Descriptor) (Fetcher, error) {
	f, ok := d.fetchers[desc.Source.Type]
	if !ok {
		return nil, fmt.Errorf("%w %q for %s", ErrUnsupportedSource, desc.Source.Type, desc.Name)
	}
	return f, nil
}

// FetchFresh implements Fetcher.
func (d *Dispatcher) FetchFresh(ctx context.Context, desc *types.Descriptor, targetDir string) error {
	f, err := d.lookup(desc)
	if err != nil {
		return err
	}
	return f.FetchFresh(ctx, desc, targetDir)
}

// FetchIncremental implements Fetcher. A change of source type between old
// and desc is handled as a fresh fetch.
func (d *Dispatcher) FetchIncremental(ctx context.Context, old, desc *types.Descriptor, targetDir string) error {
	f, err := d.lookup(desc)
	if err != nil {
		return err
	}
	if old == nil || old.Source.Type != desc.Source.Type {
		return f.FetchFresh(ctx, desc, targetDir)
	}
	return f.FetchIncremental(ctx, old, desc, targetDir)
}

// resetDir removes dir and recreates its parent.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
