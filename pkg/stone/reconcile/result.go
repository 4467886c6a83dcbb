package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

var (
	// ErrUnresolvablePackage aborts a run before anything is fetched.
	ErrUnresolvablePackage = errors.New("unresolvable package")

	// ErrFetchFailure is returned when downloading or updating a package fails.
	ErrFetchFailure = errors.New("fetch failed")
)

// PackageError attaches the package name to a run failure.
type PackageError struct {
	Name string
	Kind error // ErrUnresolvablePackage or ErrFetchFailure
	Err  error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *PackageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Mode identifies how the desired package set was built.
type Mode string

const (
	ModeMirror Mode = "mirror"
	ModeUpdate Mode = "update"
)

// Action is what a run did with one package.
type Action string

const (
	ActionFresh       Action = "fresh"
	ActionIncremental Action = "incremental"
	ActionSkip        Action = "skip"
	ActionPrune       Action = "prune"
	ActionFailed      Action = "failed"
	ActionCanceled    Action = "canceled"
)

// Outcome records the decision and result for one package.
type Outcome struct {
	Name         string
	Action       Action
	Version      string
	OldReference string
	NewReference string
	Duration     time.Duration
	Err          error
}

// RunResult summarizes a reconciliation run.
type RunResult struct {
	Mode     Mode
	Manifest string
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome

	Fetched  int // fresh fetches
	Updated  int // incremental fetches
	Skipped  int
	Pruned   int
	Failed   int
	Canceled int

	// Installed is the record count persisted by the run.
	Installed int
}

// Changed reports whether the run touched any package.
func (r *RunResult) Changed() bool {
	return r.Fetched+r.Updated+r.Pruned > 0
}

func (r *RunResult) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Action {
	case ActionFresh:
		r.Fetched++
	case ActionIncremental:
		r.Updated++
	case ActionSkip:
		r.Skipped++
	case ActionPrune:
		r.Pruned++
	case ActionFailed:
		r.Failed++
	case ActionCanceled:
		r.Canceled++
	}
}

// decision is the planned action for one resolved package.
type decision struct {
	action Action
	old    *types.Descriptor
	desc   *types.Descriptor
}
