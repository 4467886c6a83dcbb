package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/stone/pkg/stone/logging"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// minifiedFormat marks a metadata document whose version list is delta encoded.
const minifiedFormat = "composer/2.0"

// unsetMarker removes an inherited key in a minified version list.
const unsetMarker = "__unset"

// devVersions are the branch aliases tried, in order, when no version is
// flagged as the default branch.
var devVersions = []string{"dev-master", "dev-main", "dev-trunk"}

// devNormalized is the normalized version Composer assigns to the default branch.
const devNormalized = "9999999-dev"

// PackagistResolver resolves packages against a repository speaking the
// Packagist metadata protocol v2 (/p2/<vendor>/<name>~dev.json).
type PackagistResolver struct {
	repository string
	docs       DocumentFetcher
}

// NewPackagistResolver returns a resolver for one repository.
func NewPackagistResolver(repository string, docs DocumentFetcher) *PackagistResolver {
	return &PackagistResolver{repository: normalizeRepository(repository), docs: docs}
}

// Repository returns the repository URL this resolver queries.
func (r *PackagistResolver) Repository() string {
	return r.repository
}

// Resolve implements Resolver.
func (r *PackagistResolver) Resolve(ctx context.Context, name string) (*types.Descriptor, error) {
	name = strings.ToLower(name)
	path := "p2/" + name + "~dev.json"

	doc, err := r.docs.FetchDocument(ctx, r.repository, path, "")
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", ErrPackageNotFound, name, r.repository)
		}
		return nil, err
	}

	versions, err := ParseMetadata(doc.Body, name)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata for %s from %s: %w", name, r.repository, err)
	}

	d, err := SelectDevVersion(versions)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s", err, name, r.repository)
	}
	if d.Name == "" {
		d.Name = name
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("resolving %s from %s: %w", name, r.repository, err)
	}

	logging.Get("resolver").Debug("resolved package",
		"package", d.Name, "version", d.Version, "reference", d.ShortReference(), "repository", r.repository)
	return d, nil
}

// metadataDocument is the body of a /p2/ response.
type metadataDocument struct {
	Packages map[string][]map[string]json.RawMessage `json:"packages"`
	Minified string                                  `json:"minified"`
}

// ParseMetadata decodes a /p2/ document and returns the version list of name,
// expanded when the document is minified.
func ParseMetadata(body []byte, name string) ([]*types.Descriptor, error) {
	var doc metadataDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	entries, ok := doc.Packages[name]
	if !ok {
		return nil, ErrPackageNotFound
	}
	if doc.Minified == minifiedFormat {
		entries = Expand(entries)
	}

	out := make([]*types.Descriptor, 0, len(entries))
	for i, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}
		var d types.Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}
		out = append(out, &d)
	}
	return out, nil
}

// Expand undoes the composer/2.0 minification: each entry only lists the
// keys that differ from the previous one, and the "__unset" string removes
// an inherited key.
func Expand(entries []map[string]json.RawMessage) []map[string]json.RawMessage {
	out := make([]map[string]json.RawMessage, 0, len(entries))
	var prev map[string]json.RawMessage
	for _, entry := range entries {
		cur := make(map[string]json.RawMessage, len(prev)+len(entry))
		for k, v := range prev {
			cur[k] = v
		}
		for k, v := range entry {
			if isUnset(v) {
				delete(cur, k)
				continue
			}
			cur[k] = v
		}
		out = append(out, cur)
		prev = cur
	}
	return out
}

func isUnset(v json.RawMessage) bool {
	var s string
	return json.Unmarshal(v, &s) == nil && s == unsetMarker
}

// SelectDevVersion picks the default-branch version from a version list.
// A version flagged "default-branch": true wins; otherwise dev-master,
// dev-main and dev-trunk are tried in that order, then any version
// normalized to 9999999-dev.
func SelectDevVersion(versions []*types.Descriptor) (*types.Descriptor, error) {
	for _, v := range versions {
		if isDefaultBranch(v) {
			return v, nil
		}
	}
	for _, want := range devVersions {
		for _, v := range versions {
			if v.Version == want {
				return v, nil
			}
		}
	}
	for _, v := range versions {
		if v.VersionNormalized == devNormalized {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: no development version", ErrPackageNotFound)
}

func isDefaultBranch(d *types.Descriptor) bool {
	raw, ok := d.Metadata["default-branch"]
	if !ok {
		return false
	}
	var flag bool
	return json.Unmarshal(raw, &flag) == nil && flag
}
