package index

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

func pkg(name, ref string) *types.Descriptor {
	return &types.Descriptor{
		Name:    name,
		Version: "dev-main",
		Source:  types.Source{Type: types.SourceGit, URL: "https://example.org/" + name + ".git", Reference: ref},
		Metadata: map[string]json.RawMessage{
			"dist": json.RawMessage(`{"type":"zip","url":"https://example.org/dist.zip"}`),
			"type": json.RawMessage(`"library"`),
		},
	}
}

func decode(t *testing.T, raw json.RawMessage) *types.Descriptor {
	t.Helper()
	var d types.Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("decoding entry: %v", err)
	}
	return &d
}

func TestDerive_RewritesSourceAndDropsDist(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	doc, err := Derive(root, []*types.Descriptor{pkg("acme/one", "r1")})
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}

	versions, ok := doc.Packages["acme/one"]
	if !ok {
		t.Fatal("acme/one missing from derived index")
	}
	d := decode(t, versions["dev-main"])

	wantURL := "file://" + filepath.ToSlash(filepath.Join(root, "acme", "one"))
	if d.Source.URL != wantURL {
		t.Errorf("source url = %q, want %q", d.Source.URL, wantURL)
	}
	if d.Source.Reference != "r1" {
		t.Errorf("reference = %q, want r1", d.Source.Reference)
	}
	if _, ok := d.Metadata["dist"]; ok {
		t.Error("dist was not dropped")
	}
	if _, ok := d.Metadata["type"]; !ok {
		t.Error("other metadata was dropped")
	}
}

func TestMerge_PreservesStaleEntries(t *testing.T) {
	t.Parallel()

	previous := NewDocument()
	previous.Packages["old/pkg"] = Versions{"dev-main": json.RawMessage(`{"name":"old/pkg"}`)}
	previous.Packages["acme/one"] = Versions{"dev-main": json.RawMessage(`{"name":"acme/one","stale":true}`)}

	derived := NewDocument()
	derived.Packages["acme/one"] = Versions{"dev-main": json.RawMessage(`{"name":"acme/one"}`)}

	merged := Merge(previous, derived, nil)

	if _, ok := merged.Packages["old/pkg"]; !ok {
		t.Error("stale package was dropped")
	}
	if got := string(merged.Packages["acme/one"]["dev-main"]); strings.Contains(got, "stale") {
		t.Errorf("derived entry did not win: %s", got)
	}
}

func TestMerge_DropsExplicitNames(t *testing.T) {
	t.Parallel()

	previous := NewDocument()
	previous.Packages["old/pkg"] = Versions{"dev-main": json.RawMessage(`{}`)}

	merged := Merge(previous, NewDocument(), []string{"old/pkg"})
	if _, ok := merged.Packages["old/pkg"]; ok {
		t.Error("dropped package is still present")
	}
}

func TestUpdate_IsMonotonic(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := filepath.Join(root, FileName)

	if _, err := Update(path, root, []*types.Descriptor{pkg("a/a", "1"), pkg("b/b", "1")}, nil); err != nil {
		t.Fatalf("first Update() error = %v", err)
	}
	doc, err := Update(path, root, []*types.Descriptor{pkg("a/a", "2")}, nil)
	if err != nil {
		t.Fatalf("second Update() error = %v", err)
	}

	names := doc.Names()
	if len(names) != 2 || names[0] != "a/a" || names[1] != "b/b" {
		t.Errorf("Names() = %v, want [a/a b/b]", names)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := decode(t, reloaded.Packages["a/a"]["dev-main"]).Source.Reference; got != "2" {
		t.Errorf("a/a reference = %q, want 2", got)
	}
}

func TestInit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), FileName)

	created, err := Init(path)
	if err != nil || !created {
		t.Fatalf("Init() = %v, %v; want true, nil", created, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"packages": {}`) {
		t.Errorf("unexpected content: %s", data)
	}

	created, err = Init(path)
	if err != nil || created {
		t.Errorf("second Init() = %v, %v; want false, nil", created, err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("Load() error = %v, want ErrIndexCorrupt", err)
	}
}
