package output

import (
	"github.com/jamesainslie/stone/pkg/stone/reconcile"
	"github.com/jamesainslie/stone/pkg/stone/types"
	"github.com/jamesainslie/stone/pkg/stone/usage"
)

// StatusReport lists installed records as they are on disk.
func StatusReport(root, indexPath string, records []*types.Descriptor) *Report {
	pkgs := make([]PackageInfo, 0, len(records))
	for _, d := range records {
		pkgs = append(pkgs, PackageInfo{
			Name:       d.Name,
			Version:    d.Version,
			Reference:  d.Source.Reference,
			SourceType: d.Source.Type,
			SourceURL:  d.Source.URL,
			Dir:        types.MirrorDir(root, d.Name),
		})
	}
	return &Report{Packages: pkgs, Source: root, IndexPath: indexPath}
}

// RunReport describes a finished run. A nil result (the run failed before
// planning) yields a report with only the error.
func RunReport(root, indexPath string, result *reconcile.RunResult, runErr error) *Report {
	r := &Report{Packages: []PackageInfo{}, Source: root, IndexPath: indexPath}
	summary := &RunSummary{}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	r.Run = summary
	if result == nil {
		return r
	}

	summary.Mode = string(result.Mode)
	summary.Manifest = result.Manifest
	summary.Started = result.Started
	summary.Duration = result.Duration
	summary.Fetched = result.Fetched
	summary.Updated = result.Updated
	summary.Skipped = result.Skipped
	summary.Pruned = result.Pruned
	summary.Failed = result.Failed
	summary.Canceled = result.Canceled

	for _, o := range result.Outcomes {
		p := PackageInfo{
			Name:         o.Name,
			Version:      o.Version,
			Reference:    o.NewReference,
			OldReference: o.OldReference,
			Action:       string(o.Action),
			Dir:          types.MirrorDir(root, o.Name),
		}
		if o.Err != nil {
			p.Error = o.Err.Error()
		}
		r.Packages = append(r.Packages, p)
	}
	return r
}

// WithUsage fills in disk usage for the packages it has measurements for.
func (r *Report) WithUsage(usages []usage.Usage) *Report {
	byName := make(map[string]usage.Usage, len(usages))
	for _, u := range usages {
		byName[u.Name] = u
	}
	for i := range r.Packages {
		u, ok := byName[r.Packages[i].Name]
		if !ok {
			continue
		}
		r.Packages[i].Bytes = u.Bytes
		r.Packages[i].Files = u.Files
		r.Packages[i].SizeHuman = u.Human()
		r.Packages[i].Missing = u.Missing
	}
	r.HasUsage = true
	return r
}

// Targets returns the package directories of r for usage.Measure.
func (r *Report) Targets() []usage.Target {
	out := make([]usage.Target, 0, len(r.Packages))
	for _, p := range r.Packages {
		out = append(out, usage.Target{Name: p.Name, Dir: p.Dir})
	}
	return out
}
