package composer

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// DefaultPlatformPatterns match requirement names that denote the language
// runtime, extensions or system libraries rather than installable packages.
var DefaultPlatformPatterns = []string{
	"php",
	"php-*",
	"hhvm",
	"ext-*",
	"lib-*",
	"composer",
	"composer-plugin-api",
	"composer-runtime-api",
}

// PlatformFilter recognises platform requirements by name.
type PlatformFilter struct {
	patterns []string
	globs    []glob.Glob
}

// NewPlatformFilter compiles the given glob patterns.
// An empty list uses DefaultPlatformPatterns.
func NewPlatformFilter(patterns []string) (*PlatformFilter, error) {
	if len(patterns) == 0 {
		patterns = DefaultPlatformPatterns
	}

	f := &PlatformFilter{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("compiling platform pattern %q: %w", p, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// MustPlatformFilter is like NewPlatformFilter but panics on a bad pattern.
func MustPlatformFilter(patterns []string) *PlatformFilter {
	f, err := NewPlatformFilter(patterns)
	if err != nil {
		panic(err)
	}
	return f
}

// Patterns returns the patterns the filter was built from.
func (f *PlatformFilter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// IsPlatform reports whether name is a platform requirement.
func (f *PlatformFilter) IsPlatform(name string) bool {
	name = strings.ToLower(name)
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Split partitions reqs into installable packages and platform requirements,
// preserving order within each group.
func (f *PlatformFilter) Split(reqs []types.Requirement) (packages, platform []types.Requirement) {
	for _, r := range reqs {
		if f.IsPlatform(r.Name) {
			platform = append(platform, r)
			continue
		}
		packages = append(packages, r)
	}
	return packages, platform
}
