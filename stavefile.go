//go:build stave

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
)

var Default = Build

var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"s": TestShort,
	"l": Lint,
	"i": Install,
}

const (
	binaryName = "stone"
	mainPkg    = "./cmd/stone"
	binDir     = "bin"
)

// All lints, tests and builds.
func All() {
	st.Deps(Lint, Test)
	st.Deps(Build)
}

// Build compiles bin/stone with version information.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	out := filepath.Join(binDir, binaryName)
	if runtime.GOOS == "windows" {
		out += ".exe"
	}
	return sh.RunV(st.GoCmd(), "build", "-ldflags", ldflags(), "-o", out, mainPkg)
}

// Install puts stone in GOBIN with the same version information as Build.
func Install() error {
	return sh.RunV(st.GoCmd(), "install", "-ldflags", ldflags(), mainPkg)
}

// Test runs every test with the race detector, including the fetcher tests
// that clone git repositories on disk.
func Test() error {
	return sh.RunV(st.GoCmd(), "test", "-race", "-cover", "./...")
}

// TestShort skips the fetcher tests that need git repositories on disk.
func TestShort() error {
	return sh.RunV(st.GoCmd(), "test", "-short", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes bin/.
func Clean() error {
	return sh.Rm(binDir)
}

// ldflags sets main.version, main.commit and main.date from git.
func ldflags() string {
	version, commit := "dev", "none"
	if v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && v != "" {
		version = strings.TrimSpace(v)
	}
	if c, err := sh.Output("git", "rev-parse", "--short", "HEAD"); err == nil && c != "" {
		commit = strings.TrimSpace(c)
	}
	date := time.Now().UTC().Format(time.RFC3339)
	return fmt.Sprintf("-X main.version=%s -X main.commit=%s -X main.date=%s", version, commit, date)
}
