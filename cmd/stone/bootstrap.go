package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/stone/pkg/stone/cache"
	"github.com/jamesainslie/stone/pkg/stone/composer"
	"github.com/jamesainslie/stone/pkg/stone/config"
	"github.com/jamesainslie/stone/pkg/stone/fetcher"
	"github.com/jamesainslie/stone/pkg/stone/index"
	"github.com/jamesainslie/stone/pkg/stone/journal"
	"github.com/jamesainslie/stone/pkg/stone/logging"
	"github.com/jamesainslie/stone/pkg/stone/output"
	"github.com/jamesainslie/stone/pkg/stone/reconcile"
	"github.com/jamesainslie/stone/pkg/stone/resolver"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// initializeLogging starts the logging system from the configuration.
// Verbose mode mirrors debug output to stderr.
func initializeLogging(cfg config.LoggingConfig, verbose bool) error {
	lc := logging.Config{
		Level:      cfg.Level,
		Path:       cfg.Path,
		Rotation:   parseRotationConfig(cfg.Rotation),
		Components: cfg.Components,
		JSON:       cfg.JSON,
	}
	if verbose {
		lc.ConsoleLevel = "debug"
	}
	return logging.Init(lc)
}

// parseRotationConfig converts the configured rotation to the logging form.
// An empty or invalid max_size falls back to the default.
func parseRotationConfig(cfg config.RotationConfig) logging.RotationConfig {
	rc := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Daily:      cfg.Daily,
	}
	if cfg.MaxSize != "" {
		if size, err := types.ParseSize(cfg.MaxSize); err == nil && size > 0 {
			rc.MaxSize = size
		}
	}
	return rc
}

// runFlags are the per-run overrides shared by mirror, update and watch.
type runFlags struct {
	force      bool
	prune      bool
	noCache    bool
	includeDev bool
	workers    int
	timeout    time.Duration
}

func addRunFlags(cmd *cobra.Command, f *runFlags, withPrune bool) {
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "refresh packages whose reference did not change")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the metadata cache")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "concurrent fetches (0=config)")
	cmd.Flags().DurationVar(&f.timeout, "fetch-timeout", 0, "per-package fetch timeout (0=config)")
	if withPrune {
		cmd.Flags().BoolVar(&f.prune, "prune", false, "remove packages the manifest no longer requires")
		cmd.Flags().BoolVar(&f.includeDev, "dev", false, "also mirror require-dev packages")
	}
}

// mirrorRoot returns the output-dir argument at position i, or the
// configured mirror root.
func mirrorRoot(cfg *config.Config, args []string, i int) (string, error) {
	if len(args) > i {
		root, err := config.ExpandPath(args[i])
		if err != nil {
			return "", err
		}
		return filepath.Abs(root)
	}
	return cfg.Mirror.Root, nil
}

// indexPathFor keeps a configured index path only for the configured root;
// an explicit output-dir gets its own packages.json.
func indexPathFor(cfg *config.Config, root string) string {
	if root == cfg.Mirror.Root {
		return cfg.IndexPath()
	}
	return filepath.Join(root, index.FileName)
}

// openResolver builds the metadata resolver. The returned func releases the
// metadata cache.
func openResolver(cfg *config.Config, noCache bool) (*resolver.Client, func()) {
	log := logging.Get("resolver")
	opts := resolver.Options{
		Repositories: cfg.Resolver.Repositories,
		Client: resolver.ClientOptions{
			Timeout:      cfg.Resolver.Timeout,
			Retries:      cfg.Resolver.Retries,
			RetryWaitMin: cfg.Resolver.RetryWaitMin,
			RetryWaitMax: cfg.Resolver.RetryWaitMax,
		},
	}

	release := func() {}
	if !noCache {
		c, err := cache.Open(cfg.Resolver.CachePath, cfg.Resolver.CacheTTL)
		if err != nil {
			// Another process may hold the cache; resolve without it.
			log.Warn("metadata cache unavailable", "path", cfg.Resolver.CachePath, "error", err)
			printVerbose("metadata cache unavailable: %v", err)
		} else {
			opts.Cache = c
			release = func() {
				if err := c.Close(); err != nil {
					log.Warn("closing metadata cache", "error", err)
				}
			}
		}
	}
	return resolver.New(opts), release
}

// newWorkflow wires the resolver, the fetchers and the configuration into a
// reconciliation workflow for root.
func newWorkflow(cfg *config.Config, root string, f *runFlags) (*reconcile.Workflow, func(), error) {
	platform, err := composer.NewPlatformFilter(cfg.Resolver.PlatformPatterns)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid platform patterns: %w", err)
	}

	res, release := openResolver(cfg, f.noCache)

	opts := reconcile.Options{
		MirrorRoot:   root,
		IndexPath:    indexPathFor(cfg, root),
		Workers:      cfg.Mirror.Workers,
		FetchTimeout: cfg.Mirror.FetchTimeout,
		Force:        f.force,
		Prune:        f.prune,
		IncludeDev:   cfg.Mirror.IncludeDev || f.includeDev,
		Platform:     platform,
		OnEvent:      reportEvent,
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	if f.timeout > 0 {
		opts.FetchTimeout = f.timeout
	}

	wf, err := reconcile.New(opts, res, fetcher.Default())
	if err != nil {
		release()
		return nil, nil, err
	}
	return wf, release, nil
}

// reportEvent prints run progress to stderr in verbose mode.
func reportEvent(e reconcile.Event) {
	switch e.Kind {
	case reconcile.EventFetchStarted:
		printVerbose("%s %s %s", e.Action, e.Name, types.ShortRef(e.Ref))
	case reconcile.EventFetchDone:
		if e.Err != nil {
			printVerbose("failed %s: %v", e.Name, e.Err)
		}
	case reconcile.EventPruned:
		printVerbose("pruned %s", e.Name)
	case reconcile.EventSaved:
		printVerbose("saved installed.json and index")
	}
}

// finishRun records the run in the journal and renders its report. The run
// error is returned so the exit status reflects it.
func finishRun(cmd *cobra.Command, op journal.Operation, wf *reconcile.Workflow, result *reconcile.RunResult, runErr error) error {
	opts := wf.Options()
	if appConfig.History.Enabled {
		recordRun(op, opts.MirrorRoot, result, runErr)
	}

	if !getQuiet() || runErr != nil {
		report := output.RunReport(opts.MirrorRoot, opts.IndexPath, result, runErr)
		if err := render(cmd, report); err != nil {
			return err
		}
	}
	return runErr
}

func recordRun(op journal.Operation, root string, result *reconcile.RunResult, runErr error) {
	log := logging.Get("reconcile")
	j, err := journal.New(appConfig.History.Path)
	if err != nil {
		log.Warn("history unavailable", "error", err)
		return
	}
	entry, err := j.Record(op, root, result, runErr)
	if err != nil {
		log.Warn("recording history", "error", err)
		return
	}
	printVerbose("recorded run %s", entry.ID)

	if n, err := j.Cleanup(appConfig.History.RetentionDays); err != nil {
		log.Warn("cleaning history", "error", err)
	} else if n > 0 {
		log.Debug("removed old history entries", "count", n)
	}
}

// render writes r to the command's stdout in the selected format.
func render(cmd *cobra.Command, r *output.Report) error {
	data, err := output.Render(getOutput(), viper.GetString("template"), r)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// commandContext is the command's context, which main cancels on SIGINT
// and SIGTERM.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
