// Package state persists the mirror's installed package records
// (installed.json): one descriptor per mirrored package, keyed by name.
package state

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jamesainslie/stone/pkg/stone/jsonfile"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// FileName is the name of the state file inside the mirror root.
const FileName = "installed.json"

// ErrStateCorrupt is returned when installed.json exists but cannot be decoded.
var ErrStateCorrupt = errors.New("installed state is corrupt")

// Records is an ordered set of descriptors with unique names.
// Order is insertion order; replacing a record keeps its position.
type Records struct {
	order []string
	byKey map[string]*types.Descriptor
}

// NewRecords returns an empty record set.
func NewRecords() *Records {
	return &Records{byKey: make(map[string]*types.Descriptor)}
}

// Len returns the number of records.
func (r *Records) Len() int {
	return len(r.order)
}

// Get returns the record for name, or nil.
func (r *Records) Get(name string) *types.Descriptor {
	return r.byKey[name]
}

// Has reports whether a record exists for name.
func (r *Records) Has(name string) bool {
	_, ok := r.byKey[name]
	return ok
}

// Put inserts or replaces the record for d.Name.
func (r *Records) Put(d *types.Descriptor) {
	if _, ok := r.byKey[d.Name]; !ok {
		r.order = append(r.order, d.Name)
	}
	r.byKey[d.Name] = d
}

// Delete removes the record for name. It reports whether a record existed.
func (r *Records) Delete(name string) bool {
	if _, ok := r.byKey[name]; !ok {
		return false
	}
	delete(r.byKey, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Names returns record names in order.
func (r *Records) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns the records in order.
func (r *Records) All() []*types.Descriptor {
	out := make([]*types.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Clone returns a copy of the set. Descriptors are shared, not copied.
func (r *Records) Clone() *Records {
	c := NewRecords()
	for _, d := range r.All() {
		c.Put(d)
	}
	return c
}

// Store reads and writes installed.json under a mirror root.
type Store struct {
	root string
}

// NewStore returns a store for the given mirror root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Path returns the location of installed.json.
func (s *Store) Path() string {
	return filepath.Join(s.root, FileName)
}

// Load reads the installed records. A missing file is an empty set;
// a malformed file is ErrStateCorrupt.
func (s *Store) Load() (*Records, error) {
	var list []*types.Descriptor
	err := jsonfile.Read(s.Path(), &list)
	switch {
	case errors.Is(err, jsonfile.ErrNotExist):
		return NewRecords(), nil
	case err != nil:
		var syntaxErr *jsonfile.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
		}
		return nil, err
	}

	records := NewRecords()
	for i, d := range list {
		if d == nil || d.Name == "" {
			return nil, fmt.Errorf("%w: %s: entry %d has no name", ErrStateCorrupt, s.Path(), i)
		}
		if records.Has(d.Name) {
			return nil, fmt.Errorf("%w: %s: duplicate entry for %s", ErrStateCorrupt, s.Path(), d.Name)
		}
		records.Put(d)
	}
	return records, nil
}

// Save atomically replaces installed.json with records.
func (s *Store) Save(records *Records) error {
	list := records.All()
	if list == nil {
		list = []*types.Descriptor{}
	}
	if err := jsonfile.Write(s.Path(), list); err != nil {
		return fmt.Errorf("saving installed packages: %w", err)
	}
	return nil
}
