package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/stone/pkg/stone/jsonfile"
	"github.com/jamesainslie/stone/pkg/stone/reconcile"
)

// ErrEntryNotFound is returned by Get when no entry matches.
var ErrEntryNotFound = errors.New("journal entry not found")

// Journal manages run entries on the filesystem.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// New creates a journal rooted at dir.
// The directory is not created until the first entry is written.
func New(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal directory cannot be empty")
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Record writes an entry for a finished run. runErr is the error the run
// returned, if any; result may be nil when the run failed before planning.
func (j *Journal) Record(op Operation, root string, result *reconcile.RunResult, runErr error) (*Entry, error) {
	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: j.now().UTC(),
		Operation: op,
		Root:      root,
		Packages:  []Package{},
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	if result != nil {
		entry.Manifest = result.Manifest
		entry.Duration = result.Duration
		for _, o := range result.Outcomes {
			p := Package{
				Name:         o.Name,
				Action:       string(o.Action),
				Version:      o.Version,
				OldReference: o.OldReference,
				NewReference: o.NewReference,
			}
			if o.Err != nil {
				p.Error = o.Err.Error()
			}
			entry.Packages = append(entry.Packages, p)
		}
		entry.Summary = Summary{
			Fetched:  result.Fetched,
			Updated:  result.Updated,
			Skipped:  result.Skipped,
			Pruned:   result.Pruned,
			Failed:   result.Failed,
			Canceled: result.Canceled,
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	path := filepath.Join(j.dir, entryFilename(entry))
	if err := jsonfile.Write(path, entry); err != nil {
		return nil, fmt.Errorf("failed to write journal entry: %w", err)
	}
	return entry, nil
}

// entryFilename is "<op>-<timestamp>-<short id>.json"; the timestamp prefix
// keeps directory listings in run order.
func entryFilename(entry *Entry) string {
	ts := entry.Timestamp.Format("2006-01-02T15-04-05")
	return fmt.Sprintf("%s-%s-%s.json", entry.Operation, ts, entry.ID[:8])
}

// List returns entries sorted by timestamp descending (newest first).
// If limit is 0 or negative, all entries are returned.
func (j *Journal) List(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(a, b int) bool {
		return entries[a].Timestamp.After(entries[b].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry whose ID equals id or, failing that, the only entry
// whose ID starts with id.
func (j *Journal) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.readAll()
	if err != nil {
		return nil, err
	}

	var matches []Entry
	for _, e := range entries {
		if e.ID == id {
			return &e, nil
		}
		if strings.HasPrefix(e.ID, id) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous entry ID %q matches %d entries", id, len(matches))
	}
}

// Cleanup removes entries older than retentionDays and returns how many were
// removed. A retention of zero or less keeps everything.
func (j *Journal) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read journal directory: %w", err)
	}

	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}

		entry, err := j.readEntryFile(f.Name())
		if err != nil || !entry.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (j *Journal) readAll() ([]Entry, error) {
	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}

		entry, err := j.readEntryFile(f.Name())
		if err != nil {
			// Skip files that can't be parsed
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (j *Journal) readEntryFile(filename string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(j.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	if entry.ID == "" {
		return nil, errors.New("entry has no ID")
	}
	return &entry, nil
}
