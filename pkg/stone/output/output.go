// Package output provides formatters for displaying mirror status and run
// reports in various output formats (pretty, plain, json, yaml, etc.).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

// PackageInfo describes one mirrored package.
type PackageInfo struct {
	// Name is the package name, e.g. "monolog/monolog".
	Name string `json:"name" yaml:"name"`

	// Version is the development version mirrored, e.g. "dev-main".
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Reference is the checked-out VCS revision.
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`

	// OldReference is the revision before a run changed it.
	OldReference string `json:"old_reference,omitempty" yaml:"old_reference,omitempty"`

	// SourceType is the VCS type (git, hg, svn).
	SourceType string `json:"source_type,omitempty" yaml:"source_type,omitempty"`

	// SourceURL is the upstream repository.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`

	// Dir is the package's directory in the mirror.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Action is what the last run did; empty for plain status listings.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// Error is the failure message for a failed package.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Bytes and Files are disk usage, filled in only when measured.
	Bytes     int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Files     int64  `json:"files,omitempty" yaml:"files,omitempty"`
	SizeHuman string `json:"size_human,omitempty" yaml:"size_human,omitempty"`

	// Missing is set when the package directory is absent from the mirror.
	Missing bool `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// RunSummary contains the counters of a mirror or update run.
type RunSummary struct {
	Mode     string        `json:"mode" yaml:"mode"`
	Manifest string        `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Fetched  int           `json:"fetched" yaml:"fetched"`
	Updated  int           `json:"updated" yaml:"updated"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Pruned   int           `json:"pruned" yaml:"pruned"`
	Failed   int           `json:"failed" yaml:"failed"`
	Canceled int           `json:"canceled" yaml:"canceled"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report contains the complete output data for formatting.
type Report struct {
	// Packages is the package listing, in installed.json order.
	Packages []PackageInfo `json:"packages" yaml:"packages"`

	// Run is set when the report describes a run rather than a status.
	Run *RunSummary `json:"run,omitempty" yaml:"run,omitempty"`

	// Source is the mirror root.
	Source string `json:"source" yaml:"source"`

	// IndexPath is the repository index the mirror publishes.
	IndexPath string `json:"index_path,omitempty" yaml:"index_path,omitempty"`

	// HasUsage is set when Bytes and Files were measured.
	HasUsage bool `json:"has_usage,omitempty" yaml:"has_usage,omitempty"`

	// Warnings contains any warning messages generated while reporting.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TotalBytes returns the summed disk usage of all packages.
func (r *Report) TotalBytes() int64 {
	var total int64
	for _, p := range r.Packages {
		total += p.Bytes
	}
	return total
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted report to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any existing
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// Render formats r with the named formatter. A non-empty tmpl selects the
// template formatter regardless of name.
func Render(name, tmpl string, r *Report) ([]byte, error) {
	var f Formatter
	if tmpl != "" {
		f = NewTemplateFormatter(tmpl)
	} else {
		var err error
		if f, err = Get(name); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return nil, fmt.Errorf("formatting %s output: %w", name, err)
	}
	return buf.Bytes(), nil
}

// formatDurationString formats a duration for machine-readable output.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
