package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ParseSize parses a human-readable size string such as "10MB", "512KiB" or
// "1G" and returns the size in bytes. Single-letter units are treated as
// binary (IEC) units, so "10M" equals "10MiB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative size %q", ErrInvalidSize, s)
	}

	// humanize treats "M" and "MB" as SI units; stone's config historically
	// means binary units for both.
	upper := strings.ToUpper(s)
	for _, unit := range []string{"K", "M", "G", "T"} {
		switch {
		case strings.HasSuffix(upper, unit+"B") && !strings.HasSuffix(upper, unit+"IB"):
			s = s[:len(s)-1] + "iB"
		case strings.HasSuffix(upper, unit):
			s += "iB"
		}
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return int64(n), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
