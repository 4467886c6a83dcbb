// Package composer reads Composer documents: the project manifest
// (composer.json) that declares which packages to mirror, and the global
// Composer configuration the mirror registers itself in.
package composer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jamesainslie/stone/pkg/stone/jsonfile"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// ErrManifestNotFound is returned when the manifest file does not exist.
var ErrManifestNotFound = errors.New("manifest not found")

// ErrInvalidManifest is returned when the manifest cannot be decoded.
var ErrInvalidManifest = errors.New("invalid manifest")

// Repository is a repository declared in a manifest's "repositories" list.
type Repository struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Manifest is the subset of composer.json stone acts on.
type Manifest struct {
	Path         string
	Name         string
	Require      []types.Requirement
	RequireDev   []types.Requirement
	Repositories []Repository
}

type rawManifest struct {
	Name         string            `json:"name"`
	Require      map[string]string `json:"require"`
	RequireDev   map[string]string `json:"require-dev"`
	Repositories []Repository      `json:"repositories"`
}

// LoadManifest reads and decodes the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("checking manifest: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrManifestNotFound, path)
	}

	var raw rawManifest
	if err := jsonfile.Read(path, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	m := &Manifest{
		Path:       path,
		Name:       raw.Name,
		Require:    requirements(raw.Require),
		RequireDev: requirements(raw.RequireDev),
	}
	for _, repo := range raw.Repositories {
		if repo.URL == "" {
			continue
		}
		m.Repositories = append(m.Repositories, repo)
	}
	return m, nil
}

// Requirements returns the runtime requirements, plus the development
// requirements when includeDev is set. Names are unique and sorted.
func (m *Manifest) Requirements(includeDev bool) []types.Requirement {
	if !includeDev {
		return append([]types.Requirement(nil), m.Require...)
	}

	seen := make(map[string]types.Requirement, len(m.Require)+len(m.RequireDev))
	for _, r := range m.RequireDev {
		seen[r.Name] = r
	}
	for _, r := range m.Require {
		seen[r.Name] = r
	}

	out := make([]types.Requirement, 0, len(seen))
	for _, name := range types.SortedNames(seen) {
		out = append(out, seen[name])
	}
	return out
}

// ComposerRepositoryURLs returns the URLs of repositories of type "composer".
func (m *Manifest) ComposerRepositoryURLs() []string {
	var urls []string
	for _, repo := range m.Repositories {
		if repo.Type == "composer" {
			urls = append(urls, strings.TrimSuffix(repo.URL, "/"))
		}
	}
	return urls
}

// requirements converts a require map into requirements sorted by name.
// Composer package names are case-insensitive; they are lowercased here and
// spellings that differ only in case collapse into one requirement.
func requirements(in map[string]string) []types.Requirement {
	keys := make([]string, 0, len(in))
	for name := range in {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	seen := make(map[string]types.Requirement, len(in))
	for _, key := range keys {
		name := strings.ToLower(strings.TrimSpace(key))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = types.Requirement{Name: name, Constraint: in[key]}
	}

	out := make([]types.Requirement, 0, len(seen))
	for _, name := range types.SortedNames(seen) {
		out = append(out, seen[name])
	}
	return out
}
