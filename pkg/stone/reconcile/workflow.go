// Package reconcile implements the mirror reconciliation cycle: load the
// installed records, resolve the desired packages, fetch what changed, and
// persist the records and the repository index.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/stone/pkg/stone/composer"
	"github.com/jamesainslie/stone/pkg/stone/index"
	"github.com/jamesainslie/stone/pkg/stone/lock"
	"github.com/jamesainslie/stone/pkg/stone/logging"
	"github.com/jamesainslie/stone/pkg/stone/state"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// Resolver returns the current development-branch descriptor of a package.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*types.Descriptor, error)
}

// RepositoryScoped is implemented by resolvers that can also consult the
// repositories a manifest declares.
type RepositoryScoped interface {
	WithRepositories(urls []string) Resolver
}

// Fetcher places package sources into a target directory.
type Fetcher interface {
	FetchFresh(ctx context.Context, desc *types.Descriptor, targetDir string) error
	FetchIncremental(ctx context.Context, old, desc *types.Descriptor, targetDir string) error
}

// Options configures a Workflow.
type Options struct {
	// MirrorRoot holds one directory per package plus installed.json.
	MirrorRoot string
	// IndexPath is the repository index; defaults to MirrorRoot/packages.json.
	IndexPath string
	// Workers bounds concurrent fetches. Values below 1 mean 1.
	Workers int
	// FetchTimeout bounds each fetch; zero disables the limit.
	FetchTimeout time.Duration
	// Force refreshes packages whose reference did not change.
	Force bool
	// Prune removes packages that are no longer desired.
	Prune bool
	// IncludeDev adds require-dev to the desired set in Mirror.
	IncludeDev bool
	// Platform filters meta-requirements; nil uses the default patterns.
	Platform *composer.PlatformFilter
	// OnEvent receives progress events.
	OnEvent func(Event)
}

// Workflow reconciles a mirror root against a desired package set.
type Workflow struct {
	opts     Options
	resolver Resolver
	fetcher  Fetcher
	store    *state.Store
	log      *logging.Logger
}

// New returns a workflow. MirrorRoot is made absolute so the file:// URLs in
// the index do not depend on the working directory.
func New(opts Options, resolver Resolver, fetcher Fetcher) (*Workflow, error) {
	if opts.MirrorRoot == "" {
		return nil, errors.New("mirror root is required")
	}
	root, err := filepath.Abs(opts.MirrorRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving mirror root: %w", err)
	}
	opts.MirrorRoot = root

	if opts.IndexPath == "" {
		opts.IndexPath = filepath.Join(root, index.FileName)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Platform == nil {
		opts.Platform = composer.MustPlatformFilter(nil)
	}

	return &Workflow{
		opts:     opts,
		resolver: resolver,
		fetcher:  fetcher,
		store:    state.NewStore(root),
		log:      logging.Get("reconcile"),
	}, nil
}

// Options returns the effective options.
func (w *Workflow) Options() Options {
	return w.opts
}

// Mirror reconciles the mirror against the requirements of a manifest.
// Platform requirements (php, ext-*, ...) are never resolved.
func (w *Workflow) Mirror(ctx context.Context, manifestPath string) (*RunResult, error) {
	manifest, err := composer.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	packages, platform := w.opts.Platform.Split(manifest.Requirements(w.opts.IncludeDev))
	if len(platform) > 0 {
		w.log.Debug("skipping platform requirements", "count", len(platform))
	}

	names := make([]string, 0, len(packages))
	for _, req := range packages {
		names = append(names, req.Name)
	}

	resolver := w.resolver
	if scoped, ok := resolver.(RepositoryScoped); ok {
		if urls := manifest.ComposerRepositoryURLs(); len(urls) > 0 {
			resolver = scoped.WithRepositories(urls)
		}
	}

	result := &RunResult{Mode: ModeMirror, Manifest: manifest.Path}
	return w.run(ctx, result, resolver, func(*state.Records) []string { return names })
}

// Update re-resolves every installed package and refreshes what changed.
func (w *Workflow) Update(ctx context.Context) (*RunResult, error) {
	result := &RunResult{Mode: ModeUpdate}
	return w.run(ctx, result, w.resolver, (*state.Records).Names)
}

func (w *Workflow) run(ctx context.Context, result *RunResult, resolver Resolver, desired func(*state.Records) []string) (*RunResult, error) {
	result.Started = time.Now()
	defer func() { result.Duration = time.Since(result.Started) }()

	l, err := lock.Acquire(w.opts.MirrorRoot)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := l.Release(); err != nil {
			w.log.Warn("failed to release lock", "error", err)
		}
	}()

	records, err := w.store.Load()
	if err != nil {
		return nil, err
	}

	names := desired(records)
	w.log.Info("reconciling", "mode", result.Mode, "packages", len(names), "installed", records.Len())

	plan, err := w.resolveAll(ctx, resolver, names, records)
	if err != nil {
		return nil, err
	}

	next := records.Clone()
	fetchErr := w.execute(ctx, plan, next, result)

	var drop []string
	var pruneErr error
	if w.opts.Prune && fetchErr == nil {
		drop, pruneErr = w.prune(names, next, result)
	}

	if err := w.persist(next, drop); err != nil {
		return result, errors.Join(fetchErr, err)
	}
	result.Installed = next.Len()
	w.emit(Event{Kind: EventSaved})

	w.log.Info("reconcile finished",
		"mode", result.Mode,
		"fetched", result.Fetched,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"pruned", result.Pruned,
		"failed", result.Failed)

	if fetchErr != nil {
		return result, fetchErr
	}
	if pruneErr != nil {
		return result, fmt.Errorf("pruning: %w", pruneErr)
	}
	return result, nil
}

// resolveAll resolves every name before anything is fetched, so a single
// unresolvable package leaves the mirror untouched.
func (w *Workflow) resolveAll(ctx context.Context, resolver Resolver, names []string, records *state.Records) ([]decision, error) {
	plan := make([]decision, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !types.ValidPackageName(name) {
			return nil, &PackageError{Name: name, Kind: ErrUnresolvablePackage, Err: errors.New("invalid package name")}
		}

		w.emit(Event{Kind: EventResolving, Name: name})
		desc, err := resolver.Resolve(ctx, name)
		if err == nil {
			err = desc.Validate()
		}
		if err != nil {
			w.log.Error("resolution failed", "package", name, "error", err)
			return nil, &PackageError{Name: name, Kind: ErrUnresolvablePackage, Err: err}
		}
		// Mirror directories and records are keyed by the requested name.
		desc = desc.Clone()
		desc.Name = name
		w.emit(Event{Kind: EventResolved, Name: name, Version: desc.Version, Ref: desc.Source.Reference})

		plan = append(plan, w.decide(records.Get(name), desc))
	}
	return plan, nil
}

func (w *Workflow) decide(old, desc *types.Descriptor) decision {
	switch {
	case old == nil:
		return decision{action: ActionFresh, desc: desc}
	case old.SameReference(desc) && !w.opts.Force:
		return decision{action: ActionSkip, old: old, desc: desc}
	default:
		return decision{action: ActionIncremental, old: old, desc: desc}
	}
}

// execute runs the planned fetches on a bounded pool. Successful fetches are
// written into next; the first failure cancels the fetches still pending.
func (w *Workflow) execute(ctx context.Context, plan []decision, next *state.Records, result *RunResult) error {
	outcomes := make([]Outcome, len(plan))
	fetched := make(map[string]*types.Descriptor, len(plan))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Workers)

	for i, d := range plan {
		outcome := Outcome{
			Name:         d.desc.Name,
			Action:       d.action,
			Version:      d.desc.Version,
			NewReference: d.desc.Source.Reference,
		}
		if d.old != nil {
			outcome.OldReference = d.old.Source.Reference
		}

		if d.action == ActionSkip {
			w.log.Info("already up to date", "package", d.desc.Name, "reference", d.desc.ShortReference())
			w.emit(Event{Kind: EventSkipped, Name: d.desc.Name, Action: ActionSkip, Version: d.desc.Version, Ref: d.desc.Source.Reference})
			outcomes[i] = outcome
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				outcome.Action = ActionCanceled
				outcome.Err = gctx.Err()
				outcomes[i] = outcome
				return nil
			}

			start := time.Now()
			err := w.fetch(gctx, d)
			outcome.Duration = time.Since(start)

			if err != nil {
				outcome.Err = err
				outcome.Action = ActionFailed
				if ctx.Err() != nil || (gctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded)) {
					// Interrupted by the caller or by another package's failure.
					outcome.Action = ActionCanceled
				}
				outcomes[i] = outcome
				w.emit(Event{Kind: EventFetchDone, Name: d.desc.Name, Action: outcome.Action, Err: err})
				if outcome.Action == ActionCanceled {
					return nil
				}
				w.log.Error("fetch failed", "package", d.desc.Name, "error", err)
				return &PackageError{Name: d.desc.Name, Kind: ErrFetchFailure, Err: err}
			}

			mu.Lock()
			fetched[d.desc.Name] = d.desc
			mu.Unlock()
			outcomes[i] = outcome
			w.emit(Event{Kind: EventFetchDone, Name: d.desc.Name, Action: d.action, Version: d.desc.Version, Ref: d.desc.Source.Reference})
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	// Reassemble in plan order so new records are appended in manifest order.
	for i, d := range plan {
		if desc, ok := fetched[d.desc.Name]; ok {
			next.Put(desc)
		}
		result.add(outcomes[i])
	}
	return err
}

func (w *Workflow) fetch(ctx context.Context, d decision) error {
	if w.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.FetchTimeout)
		defer cancel()
	}

	dir := types.MirrorDir(w.opts.MirrorRoot, d.desc.Name)
	w.emit(Event{Kind: EventFetchStarted, Name: d.desc.Name, Action: d.action, Version: d.desc.Version, Ref: d.desc.Source.Reference})

	switch d.action {
	case ActionFresh:
		w.log.Info("downloading", "package", d.desc.Name, "version", d.desc.Version, "reference", d.desc.ShortReference())
		return w.fetcher.FetchFresh(ctx, d.desc, dir)
	default:
		w.log.Info("updating", "package", d.desc.Name, "from", d.old.ShortReference(), "to", d.desc.ShortReference())
		return w.fetcher.FetchIncremental(ctx, d.old, d.desc, dir)
	}
}

// prune drops records of packages that are no longer desired and removes
// their mirror directories. A record is only dropped once its directory is
// gone. It returns the names to drop from the index.
func (w *Workflow) prune(desired []string, next *state.Records, result *RunResult) ([]string, error) {
	want := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		want[name] = struct{}{}
	}

	var errs *multierror.Error
	var drop []string
	for _, name := range next.Names() {
		if _, ok := want[name]; ok {
			continue
		}
		old := next.Get(name)
		dir := types.MirrorDir(w.opts.MirrorRoot, name)
		if err := os.RemoveAll(dir); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("removing %s: %w", dir, err))
			continue
		}
		removeIfEmpty(filepath.Dir(dir), w.opts.MirrorRoot)

		next.Delete(name)
		drop = append(drop, name)
		result.add(Outcome{Name: name, Action: ActionPrune, Version: old.Version, OldReference: old.Source.Reference})
		w.log.Info("pruned", "package", name)
		w.emit(Event{Kind: EventPruned, Name: name, Action: ActionPrune})
	}
	sort.Strings(drop)
	return drop, errs.ErrorOrNil()
}

// persist writes installed.json, then the index derived from every record.
func (w *Workflow) persist(next *state.Records, drop []string) error {
	if err := w.store.Save(next); err != nil {
		return fmt.Errorf("saving installed packages: %w", err)
	}
	if _, err := index.Update(w.opts.IndexPath, w.opts.MirrorRoot, next.All(), drop); err != nil {
		return fmt.Errorf("updating repository index: %w", err)
	}
	return nil
}

func (w *Workflow) emit(e Event) {
	if w.opts.OnEvent != nil {
		w.opts.OnEvent(e)
	}
}

// removeIfEmpty removes a vendor directory left empty by pruning.
func removeIfEmpty(dir, root string) {
	if dir == root {
		return
	}
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}
