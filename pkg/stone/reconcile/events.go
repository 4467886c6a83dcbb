package reconcile

// EventKind identifies a progress event.
type EventKind int

const (
	EventResolving EventKind = iota
	EventResolved
	EventFetchStarted
	EventFetchDone
	EventSkipped
	EventPruned
	EventSaved
)

func (k EventKind) String() string {
	switch k {
	case EventResolving:
		return "resolving"
	case EventResolved:
		return "resolved"
	case EventFetchStarted:
		return "fetch-started"
	case EventFetchDone:
		return "fetch-done"
	case EventSkipped:
		return "skipped"
	case EventPruned:
		return "pruned"
	case EventSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// Event reports run progress. Events for different packages may arrive
// from different goroutines when Workers > 1.
type Event struct {
	Kind    EventKind
	Name    string
	Action  Action
	Version string
	Ref     string
	Err     error
}
