package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/stone/pkg/stone/logging"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// Runner executes a version control command in dir.
type Runner func(ctx context.Context, dir, name string, args ...string) error

// ExecRunner runs commands with os/exec. The combined output is included
// in the error when the command fails.
func ExecRunner(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logging.Get("fetcher").Debug("running", "cmd", name+" "+strings.Join(args, " "), "dir", dir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(out.String()))
	}
	return nil
}

// HgFetcher mirrors Mercurial sources with the hg binary.
type HgFetcher struct {
	run Runner
}

// NewHgFetcher returns an hg fetcher. A nil run uses ExecRunner.
func NewHgFetcher(run Runner) *HgFetcher {
	if run == nil {
		run = ExecRunner
	}
	return &HgFetcher{run: run}
}

// FetchFresh implements Fetcher.
func (h *HgFetcher) FetchFresh(ctx context.Context, desc *types.Descriptor, targetDir string) error {
	if err := resetDir(targetDir); err != nil {
		return err
	}
	if err := h.run(ctx, targetDir, "hg", "clone", "--noupdate", "--", desc.Source.URL, "."); err != nil {
		return err
	}
	return h.run(ctx, targetDir, "hg", "update", "--clean", "--rev", desc.Source.Reference)
}

// FetchIncremental implements Fetcher.
func (h *HgFetcher) FetchIncremental(ctx context.Context, _, desc *types.Descriptor, targetDir string) error {
	if !isDir(filepath.Join(targetDir, ".hg")) {
		return h.FetchFresh(ctx, desc, targetDir)
	}
	if err := h.run(ctx, targetDir, "hg", "pull", "--", desc.Source.URL); err != nil {
		return err
	}
	return h.run(ctx, targetDir, "hg", "update", "--clean", "--rev", desc.Source.Reference)
}

// SvnFetcher mirrors Subversion sources with the svn binary. As in Composer
// metadata, the reference is a path below the repository URL, optionally
// pinned with "@revision" (e.g. "trunk/@1234").
type SvnFetcher struct {
	run Runner
}

// NewSvnFetcher returns an svn fetcher. A nil run uses ExecRunner.
func NewSvnFetcher(run Runner) *SvnFetcher {
	if run == nil {
		run = ExecRunner
	}
	return &SvnFetcher{run: run}
}

// FetchFresh implements Fetcher.
func (s *SvnFetcher) FetchFresh(ctx context.Context, desc *types.Descriptor, targetDir string) error {
	if err := resetDir(targetDir); err != nil {
		return err
	}
	return s.run(ctx, targetDir, "svn", "checkout", "--non-interactive", "--", svnTarget(desc.Source), ".")
}

// FetchIncremental implements Fetcher.
func (s *SvnFetcher) FetchIncremental(ctx context.Context, _, desc *types.Descriptor, targetDir string) error {
	if !isDir(filepath.Join(targetDir, ".svn")) {
		return s.FetchFresh(ctx, desc, targetDir)
	}
	return s.run(ctx, targetDir, "svn", "switch", "--non-interactive", "--ignore-ancestry", "--", svnTarget(desc.Source), ".")
}

func svnTarget(src types.Source) string {
	return strings.TrimRight(src.URL, "/") + "/" + strings.TrimLeft(src.Reference, "/")
}
