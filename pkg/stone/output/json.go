package output

import (
	"bytes"
	"encoding/json"
	"time"
)

// document is the structure shared by the json and yaml formatters.
type document struct {
	Packages []PackageInfo `json:"packages" yaml:"packages"`
	Run      *runDocument  `json:"run,omitempty" yaml:"run,omitempty"`
	Meta     metaDocument  `json:"meta" yaml:"meta"`
}

type runDocument struct {
	Mode     string    `json:"mode" yaml:"mode"`
	Manifest string    `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Started  time.Time `json:"started,omitempty" yaml:"started,omitempty"`
	Duration string    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Fetched  int       `json:"fetched" yaml:"fetched"`
	Updated  int       `json:"updated" yaml:"updated"`
	Skipped  int       `json:"skipped" yaml:"skipped"`
	Pruned   int       `json:"pruned" yaml:"pruned"`
	Failed   int       `json:"failed" yaml:"failed"`
	Canceled int       `json:"canceled" yaml:"canceled"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type metaDocument struct {
	Source        string   `json:"source" yaml:"source"`
	IndexPath     string   `json:"index_path,omitempty" yaml:"index_path,omitempty"`
	TotalPackages int      `json:"total_packages" yaml:"total_packages"`
	TotalBytes    int64    `json:"total_bytes,omitempty" yaml:"total_bytes,omitempty"`
	Warnings      []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func buildDocument(r *Report) document {
	pkgs := r.Packages
	if pkgs == nil {
		pkgs = []PackageInfo{}
	}
	doc := document{
		Packages: pkgs,
		Meta: metaDocument{
			Source:        r.Source,
			IndexPath:     r.IndexPath,
			TotalPackages: len(r.Packages),
			Warnings:      r.Warnings,
		},
	}
	if r.HasUsage {
		doc.Meta.TotalBytes = r.TotalBytes()
	}
	if run := r.Run; run != nil {
		doc.Run = &runDocument{
			Mode:     run.Mode,
			Manifest: run.Manifest,
			Started:  run.Started,
			Duration: formatDurationString(run.Duration),
			Fetched:  run.Fetched,
			Updated:  run.Updated,
			Skipped:  run.Skipped,
			Pruned:   run.Pruned,
			Failed:   run.Failed,
			Canceled: run.Canceled,
			Error:    run.Error,
		}
	}
	return doc
}

// JSONFormatter formats output as a single indented JSON object with
// packages, run and meta sections.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per package, for jq and
// other line-oriented tools.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Report) error {
	for _, p := range r.Packages {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

var _ Formatter = (*JSONLFormatter)(nil)
