package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	in := map[string]any{"constraint": ">=1.0 <2.0", "url": "https://example.org/a&b"}
	if err := Write(path, in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "    \"constraint\"") {
		t.Errorf("expected four-space indentation, got:\n%s", content)
	}
	if !strings.Contains(content, ">=1.0 <2.0") {
		t.Errorf("HTML characters were escaped:\n%s", content)
	}
	if !strings.HasSuffix(content, "\n") {
		t.Error("missing trailing newline")
	}

	var out map[string]string
	if err := Read(path, &out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out["url"] != "https://example.org/a&b" {
		t.Errorf("url = %q", out["url"])
	}
}

func TestRead_Missing(t *testing.T) {
	t.Parallel()

	var v any
	err := Read(filepath.Join(t.TempDir(), "missing.json"), &v)
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("Read() error = %v, want ErrNotExist", err)
	}
}

func TestRead_Malformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var v any
	err := Read(path, &v)
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("Read() error = %v, want *SyntaxError", err)
	}
	if syntaxErr.Path != path {
		t.Errorf("Path = %q, want %q", syntaxErr.Path, path)
	}
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "installed.json")

	for i := 0; i < 3; i++ {
		if err := WriteAtomic(path, []byte("[]\n"), 0o644); err != nil {
			t.Fatalf("WriteAtomic() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only installed.json", names)
	}
	if !Exists(path) {
		t.Error("Exists() = false after write")
	}
}
