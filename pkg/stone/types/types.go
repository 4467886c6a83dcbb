// Package types provides the core data model shared by the stone mirror:
// manifest requirements, resolved package descriptors, and the repository
// entries derived from mirrored packages.
package types

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Source type identifiers used in Composer package metadata.
const (
	SourceGit = "git"
	SourceHg  = "hg"
	SourceSvn = "svn"
)

// Requirement is a single "name => constraint" pair declared in a manifest.
type Requirement struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// String returns the requirement in "name constraint" form.
func (r Requirement) String() string {
	if r.Constraint == "" {
		return r.Name
	}
	return r.Name + " " + r.Constraint
}

// Source describes where a package's sources live in version control.
type Source struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Reference string `json:"reference"`
}

// Descriptor is resolved package metadata for a specific point in time.
//
// Name, Version, VersionNormalized and Source are the fields stone acts on.
// Metadata keeps every other key of the package document (require, autoload,
// type, ...) so a descriptor round-trips through installed.json and can be
// republished in the repository index without losing information.
type Descriptor struct {
	Name              string
	Version           string
	VersionNormalized string
	Source            Source
	Metadata          map[string]json.RawMessage
}

// reservedKeys are the package document keys owned by Descriptor fields.
var reservedKeys = map[string]struct{}{
	"name":               {},
	"version":            {},
	"version_normalized": {},
	"source":             {},
}

// SameReference reports whether d and other point at the same source revision.
func (d *Descriptor) SameReference(other *Descriptor) bool {
	if d == nil || other == nil {
		return false
	}
	return d.Source.Reference == other.Source.Reference
}

// ShortReference returns the first 10 characters of the source reference.
func (d *Descriptor) ShortReference() string {
	return ShortRef(d.Source.Reference)
}

// Clone returns a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]json.RawMessage, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// Without returns a copy of the descriptor with the given metadata keys removed.
func (d *Descriptor) Without(keys ...string) *Descriptor {
	c := d.Clone()
	for _, k := range keys {
		delete(c.Metadata, k)
	}
	return c
}

// MarshalJSON encodes the descriptor in Composer's package dump shape.
// Keys are emitted in sorted order so the output is stable across runs.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(d.Metadata)+4)
	for k, v := range d.Metadata {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		doc[k] = v
	}

	set := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		doc[key] = raw
		return nil
	}

	if err := set("name", d.Name); err != nil {
		return nil, err
	}
	if err := set("version", d.Version); err != nil {
		return nil, err
	}
	if d.VersionNormalized != "" {
		if err := set("version_normalized", d.VersionNormalized); err != nil {
			return nil, err
		}
	}
	if d.Source != (Source{}) {
		if err := set("source", d.Source); err != nil {
			return nil, err
		}
	}

	// encoding/json sorts map keys, which gives a deterministic document.
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a Composer package document.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var out Descriptor
	if raw, ok := doc["name"]; ok {
		if err := json.Unmarshal(raw, &out.Name); err != nil {
			return fmt.Errorf("decoding name: %w", err)
		}
	}
	if raw, ok := doc["version"]; ok {
		if err := json.Unmarshal(raw, &out.Version); err != nil {
			return fmt.Errorf("decoding version: %w", err)
		}
	}
	if raw, ok := doc["version_normalized"]; ok {
		if err := json.Unmarshal(raw, &out.VersionNormalized); err != nil {
			return fmt.Errorf("decoding version_normalized: %w", err)
		}
	}
	if raw, ok := doc["source"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &out.Source); err != nil {
			return fmt.Errorf("decoding source: %w", err)
		}
	}

	for k, v := range doc {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		if out.Metadata == nil {
			out.Metadata = make(map[string]json.RawMessage)
		}
		out.Metadata[k] = v
	}

	*d = out
	return nil
}

// Validate checks that the descriptor carries enough information to be fetched.
func (d *Descriptor) Validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("descriptor has no name")
	case d.Source.Type == "":
		return fmt.Errorf("package %s has no source type", d.Name)
	case d.Source.URL == "":
		return fmt.Errorf("package %s has no source url", d.Name)
	case d.Source.Reference == "":
		return fmt.Errorf("package %s has no source reference", d.Name)
	}
	return nil
}

// RepositoryEntry points a package repository generator at a local mirror.
type RepositoryEntry struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// MirrorDir returns the directory a package is mirrored into under root.
// Package names use "/" as vendor separator regardless of platform.
func MirrorDir(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(name))
}

// FileURL returns the file:// URL for an absolute directory.
func FileURL(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return "file://" + filepath.ToSlash(abs)
}

// NewRepositoryEntry derives the repository entry for a mirrored package.
func NewRepositoryEntry(root string, d *Descriptor) RepositoryEntry {
	return RepositoryEntry{
		Type: d.Source.Type,
		URL:  FileURL(MirrorDir(root, d.Name)),
	}
}

// ValidPackageName reports whether name looks like a "vendor/package" name
// that is safe to use as a directory under the mirror root.
func ValidPackageName(name string) bool {
	parts := strings.Split(name, "/")
	if len(parts) != 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `\:`) {
			return false
		}
	}
	return true
}

// SortedNames returns the keys of m in ascending order.
func SortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShortRef truncates a revision id for display.
func ShortRef(ref string) string {
	if len(ref) > 10 {
		return ref[:10]
	}
	return ref
}
