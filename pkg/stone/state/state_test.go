package state

import (
	"errors"
	"os"
	"testing"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

func descriptor(name, ref string) *types.Descriptor {
	return &types.Descriptor{
		Name:    name,
		Version: "dev-main",
		Source:  types.Source{Type: types.SourceGit, URL: "https://example.org/" + name + ".git", Reference: ref},
	}
}

func TestRecords_OrderAndReplace(t *testing.T) {
	t.Parallel()
	r := NewRecords()
	r.Put(descriptor("b/b", "1"))
	r.Put(descriptor("a/a", "1"))
	r.Put(descriptor("b/b", "2"))

	names := r.Names()
	if len(names) != 2 || names[0] != "b/b" || names[1] != "a/a" {
		t.Fatalf("Names() = %v, want [b/b a/a]", names)
	}
	if got := r.Get("b/b").Source.Reference; got != "2" {
		t.Errorf("replaced reference = %q, want 2", got)
	}

	if !r.Delete("b/b") {
		t.Error("Delete() = false for existing record")
	}
	if r.Delete("b/b") {
		t.Error("Delete() = true for missing record")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if records.Len() != 0 {
		t.Errorf("Len() = %d, want 0", records.Len())
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	records := NewRecords()
	records.Put(descriptor("vendor/one", "aaa"))
	records.Put(descriptor("vendor/two", "bbb"))

	if err := s.Save(records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	first, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loaded.Names(); len(got) != 2 || got[0] != "vendor/one" || got[1] != "vendor/two" {
		t.Errorf("Names() = %v", got)
	}
	if loaded.Get("vendor/two").Source.Reference != "bbb" {
		t.Errorf("reference = %q", loaded.Get("vendor/two").Source.Reference)
	}

	// Saving the loaded set again must be byte-identical.
	if err := s.Save(loaded); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("installed.json changed across round trip:\n%s\n%s", first, second)
	}
}

func TestStore_SaveEmptyWritesArray(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	if err := s.Save(NewRecords()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]\n" {
		t.Errorf("content = %q, want %q", data, "[]\n")
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed json", content: "[{"},
		{name: "object instead of array", content: `{"name": "a/b"}`},
		{name: "entry without name", content: `[{"version": "dev-main"}]`},
		{name: "duplicate names", content: `[{"name": "a/b"}, {"name": "a/b"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewStore(t.TempDir())
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := s.Load()
			if !errors.Is(err, ErrStateCorrupt) {
				t.Errorf("Load() error = %v, want ErrStateCorrupt", err)
			}
		})
	}
}
