// Package index maintains the static Composer repository index
// (packages.json) that points Composer at the local mirror.
//
// The document shape is {"packages": {"<name>": {"<version>": <package>}}}.
// Each package's source URL is rewritten to the file:// URL of its mirror
// directory and dist information is dropped, so Composer installs from the
// mirror rather than upstream.
package index

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jamesainslie/stone/pkg/stone/jsonfile"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// FileName is the default index file name inside the mirror root.
const FileName = "packages.json"

// ErrIndexCorrupt is returned when an existing index cannot be decoded.
var ErrIndexCorrupt = errors.New("repository index is corrupt")

// Versions maps a version string to the package document for that version.
type Versions map[string]json.RawMessage

// Document is the on-disk index.
type Document struct {
	Packages map[string]Versions `json:"packages"`
}

// NewDocument returns an empty index document.
func NewDocument() *Document {
	return &Document{Packages: make(map[string]Versions)}
}

// Names returns the package names in the document, sorted.
func (d *Document) Names() []string {
	return types.SortedNames(d.Packages)
}

// Load reads the index at path. A missing file yields an empty document.
func Load(path string) (*Document, error) {
	doc := NewDocument()
	err := jsonfile.Read(path, doc)
	switch {
	case errors.Is(err, jsonfile.ErrNotExist):
		return NewDocument(), nil
	case err != nil:
		var syntaxErr *jsonfile.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		return nil, err
	}
	if doc.Packages == nil {
		doc.Packages = make(map[string]Versions)
	}
	return doc, nil
}

// Derive builds index entries for the given descriptors mirrored under root.
func Derive(root string, descriptors []*types.Descriptor) (*Document, error) {
	doc := NewDocument()
	for _, d := range descriptors {
		entry := types.NewRepositoryEntry(root, d)

		local := d.Without("dist")
		local.Source = types.Source{
			Type:      entry.Type,
			URL:       entry.URL,
			Reference: d.Source.Reference,
		}

		raw, err := json.Marshal(local)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", d.Name, err)
		}
		doc.Packages[d.Name] = Versions{d.Version: raw}
	}
	return doc, nil
}

// Merge returns derived plus every package of previous that derived does not
// contain, except names listed in drop. Entries present in derived win.
func Merge(previous, derived *Document, drop []string) *Document {
	dropped := make(map[string]struct{}, len(drop))
	for _, name := range drop {
		dropped[name] = struct{}{}
	}

	out := NewDocument()
	for name, versions := range derived.Packages {
		out.Packages[name] = versions
	}
	if previous == nil {
		return out
	}
	for name, versions := range previous.Packages {
		if _, ok := out.Packages[name]; ok {
			continue
		}
		if _, ok := dropped[name]; ok {
			continue
		}
		out.Packages[name] = versions
	}
	return out
}

// Write atomically replaces the index at path.
func Write(path string, doc *Document) error {
	if doc.Packages == nil {
		doc.Packages = make(map[string]Versions)
	}
	if err := jsonfile.Write(path, doc); err != nil {
		return fmt.Errorf("writing repository index: %w", err)
	}
	return nil
}

// Update derives the index for descriptors, merges it over the index already
// at path (keeping packages no longer derived unless listed in drop) and
// writes the result. It returns the written document.
func Update(path, root string, descriptors []*types.Descriptor, drop []string) (*Document, error) {
	previous, err := Load(path)
	if err != nil {
		return nil, err
	}
	derived, err := Derive(root, descriptors)
	if err != nil {
		return nil, err
	}
	merged := Merge(previous, derived, drop)
	if err := Write(path, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Init writes an empty index at path unless one already exists.
// It reports whether a file was created.
func Init(path string) (bool, error) {
	if jsonfile.Exists(path) {
		return false, nil
	}
	if err := Write(path, NewDocument()); err != nil {
		return false, err
	}
	return true, nil
}
