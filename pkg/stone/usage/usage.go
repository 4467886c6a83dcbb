// Package usage measures how much disk space mirrored packages take.
package usage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/dustin/go-humanize"
)

// Usage is the disk usage of one directory tree.
type Usage struct {
	Name    string `json:"name" yaml:"name"`
	Dir     string `json:"dir" yaml:"dir"`
	Files   int64  `json:"files" yaml:"files"`
	Dirs    int64  `json:"dirs" yaml:"dirs"`
	Bytes   int64  `json:"bytes" yaml:"bytes"`
	Missing bool   `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Human returns Bytes in IEC units, e.g. "12 MiB".
func (u Usage) Human() string {
	return humanize.IBytes(uint64(u.Bytes))
}

// Target names a directory to measure.
type Target struct {
	Name string
	Dir  string
}

// Measure walks each target and returns one Usage per target, in the
// order given. A target whose directory does not exist is reported with
// Missing set rather than as an error.
func Measure(ctx context.Context, targets []Target) ([]Usage, error) {
	out := make([]Usage, 0, len(targets))
	for _, t := range targets {
		u, err := measure(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func measure(ctx context.Context, t Target) (Usage, error) {
	u := Usage{Name: t.Name, Dir: t.Dir}

	info, err := os.Stat(t.Dir)
	if err != nil || !info.IsDir() {
		u.Missing = true
		return u, nil
	}

	var files, dirs, bytes atomic.Int64
	conf := fastwalk.Config{
		Follow: false,
	}

	err = fastwalk.Walk(&conf, t.Dir, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Skip entries with errors and keep walking
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are not fatal
		}

		if d.IsDir() {
			if path != t.Dir {
				dirs.Add(1)
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil //nolint:nilerr // entries we can't stat are skipped
		}
		files.Add(1)
		bytes.Add(info.Size())
		return nil
	})
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return u, err
	}

	u.Files = files.Load()
	u.Dirs = dirs.Load()
	u.Bytes = bytes.Load()
	return u, nil
}

// Total sums a set of usages.
func Total(usages []Usage) Usage {
	total := Usage{Name: "total"}
	for _, u := range usages {
		total.Files += u.Files
		total.Dirs += u.Dirs
		total.Bytes += u.Bytes
	}
	return total
}

// Largest returns the usages sorted by size, largest first.
func Largest(usages []Usage) []Usage {
	out := append([]Usage(nil), usages...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Bytes > out[j].Bytes
	})
	return out
}
