package output

import (
	"bytes"
	"strings"
	"text/tabwriter"
)

// PlainFormatter formats output as an aligned plain-text table with no
// colors or styling, suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	header, rows := columns(r)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := tw.Write([]byte(strings.Join(header, "\t") + "\n")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := tw.Write([]byte(strings.Join(row, "\t") + "\n")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)

// NamesFormatter writes one package name per line, e.g. to feed
// `composer require`.
type NamesFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *NamesFormatter) Format(w *bytes.Buffer, r *Report) error {
	for _, p := range r.Packages {
		w.WriteString(p.Name)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("names", func() Formatter {
		return &NamesFormatter{}
	})
}

var _ Formatter = (*NamesFormatter)(nil)

// DirsFormatter writes package mirror directories separated by NUL bytes,
// for xargs -0.
type DirsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *DirsFormatter) Format(w *bytes.Buffer, r *Report) error {
	for _, p := range r.Packages {
		w.WriteString(p.Dir)
		w.WriteByte(0)
	}
	return nil
}

func init() {
	Register("dirs0", func() Formatter {
		return &DirsFormatter{}
	})
}

var _ Formatter = (*DirsFormatter)(nil)
