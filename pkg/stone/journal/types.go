// Package journal keeps a history of reconciliation runs, one JSON file per
// run, so past mirror and update runs can be reviewed and audited.
package journal

import "time"

// Operation is the command that produced an entry.
type Operation string

const (
	// OpMirror is a run driven by a manifest.
	OpMirror Operation = "mirror"
	// OpUpdate refreshes the installed packages.
	OpUpdate Operation = "update"
)

// Entry records one run.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Operation Operation     `json:"operation"`
	Manifest  string        `json:"manifest,omitempty"`
	Root      string        `json:"root"`
	Duration  time.Duration `json:"duration_ns"`
	Packages  []Package     `json:"packages"`
	Summary   Summary       `json:"summary"`
	Error     string        `json:"error,omitempty"`
}

// Package is what a run did with one package.
type Package struct {
	Name         string `json:"name"`
	Action       string `json:"action"`
	Version      string `json:"version,omitempty"`
	OldReference string `json:"old_reference,omitempty"`
	NewReference string `json:"new_reference,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Summary counts package actions.
type Summary struct {
	Fetched  int `json:"fetched"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Pruned   int `json:"pruned"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled,omitempty"`
}

// Succeeded reports whether the run finished without error.
func (e *Entry) Succeeded() bool {
	return e.Error == ""
}
