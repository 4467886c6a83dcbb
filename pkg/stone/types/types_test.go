package types

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "zero bytes", input: "0", want: 0},
		{name: "bytes with B suffix", input: "512B", want: 512},
		{name: "kilobytes uppercase", input: "100K", want: 100 * 1024},
		{name: "kilobytes with B", input: "100KB", want: 100 * 1024},
		{name: "kilobytes with iB", input: "100KiB", want: 100 * 1024},
		{name: "megabytes with B", input: "10MB", want: 10 * 1024 * 1024},
		{name: "megabytes lowercase", input: "10mb", want: 10 * 1024 * 1024},
		{name: "gigabytes", input: "1G", want: 1024 * 1024 * 1024},
		{name: "decimal gigabytes", input: "1.5G", want: 1610612736},
		{name: "whitespace", input: "  100M  ", want: 100 * 1024 * 1024},

		{name: "empty string", input: "", wantErr: true},
		{name: "only whitespace", input: "   ", wantErr: true},
		{name: "negative value", input: "-100M", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
		{-5, "0 B"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.input); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDescriptor_JSONRoundTripKeepsMetadata(t *testing.T) {
	input := `{
		"name": "monolog/monolog",
		"version": "dev-main",
		"version_normalized": "dev-main",
		"source": {"type": "git", "url": "https://github.com/Seldaek/monolog.git", "reference": "abc123"},
		"require": {"php": ">=8.1"},
		"type": "library"
	}`

	var d Descriptor
	if err := json.Unmarshal([]byte(input), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if d.Name != "monolog/monolog" || d.Version != "dev-main" {
		t.Errorf("got name=%q version=%q", d.Name, d.Version)
	}
	if d.Source.Reference != "abc123" || d.Source.Type != SourceGit {
		t.Errorf("Source = %+v", d.Source)
	}
	if _, ok := d.Metadata["require"]; !ok {
		t.Error("Metadata lost the require key")
	}
	if _, ok := d.Metadata["name"]; ok {
		t.Error("Metadata must not duplicate reserved keys")
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var again Descriptor
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("Unmarshal(Marshal()) error = %v", err)
	}
	if again.Source != d.Source || again.Name != d.Name {
		t.Errorf("round trip mismatch: %+v vs %+v", again, d)
	}
	if string(again.Metadata["type"]) != `"library"` {
		t.Errorf("type = %s, want \"library\"", again.Metadata["type"])
	}

	// Marshalling twice must produce identical bytes.
	data2, err := json.Marshal(again)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != string(data2) {
		t.Errorf("marshal is not stable:\n%s\n%s", data, data2)
	}
}

func TestDescriptor_SameReference(t *testing.T) {
	a := &Descriptor{Name: "a/a", Source: Source{Reference: "r1"}}
	b := &Descriptor{Name: "a/a", Source: Source{Reference: "r1"}}
	c := &Descriptor{Name: "a/a", Source: Source{Reference: "r2"}}

	if !a.SameReference(b) {
		t.Error("SameReference() = false for equal references")
	}
	if a.SameReference(c) {
		t.Error("SameReference() = true for different references")
	}
	if a.SameReference(nil) {
		t.Error("SameReference(nil) = true")
	}
}

func TestDescriptor_Validate(t *testing.T) {
	valid := Descriptor{Name: "a/b", Source: Source{Type: "git", URL: "u", Reference: "r"}}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	missingRef := valid
	missingRef.Source.Reference = ""
	if err := missingRef.Validate(); err == nil {
		t.Error("Validate() = nil for missing reference")
	}
}

func TestDescriptor_WithoutDoesNotMutate(t *testing.T) {
	d := &Descriptor{Name: "a/b", Metadata: map[string]json.RawMessage{"dist": json.RawMessage(`{}`)}}
	stripped := d.Without("dist")

	if _, ok := stripped.Metadata["dist"]; ok {
		t.Error("Without() kept dist")
	}
	if _, ok := d.Metadata["dist"]; !ok {
		t.Error("Without() mutated the original")
	}
}

func TestValidPackageName(t *testing.T) {
	tests := map[string]bool{
		"vendor/package": true,
		"vendor":         false,
		"a/b/c":          false,
		"../etc":         false,
		"vendor/..":      false,
		"/package":       false,
	}
	for name, want := range tests {
		if got := ValidPackageName(name); got != want {
			t.Errorf("ValidPackageName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewRepositoryEntry(t *testing.T) {
	root := t.TempDir()
	d := &Descriptor{Name: "acme/tool", Source: Source{Type: SourceGit}}

	entry := NewRepositoryEntry(root, d)
	want := "file://" + filepath.ToSlash(filepath.Join(root, "acme", "tool"))
	if entry.URL != want {
		t.Errorf("URL = %q, want %q", entry.URL, want)
	}
	if entry.Type != SourceGit {
		t.Errorf("Type = %q, want %q", entry.Type, SourceGit)
	}
}
