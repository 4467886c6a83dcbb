package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

// columns returns the header and rows shared by the tabular formatters.
// Status listings show what is installed; run reports show what changed.
func columns(r *Report) ([]string, [][]string) {
	header := []string{"NAME", "VERSION", "REFERENCE"}
	if r.Run != nil {
		header = []string{"NAME", "ACTION", "VERSION", "REFERENCE"}
	}
	if r.HasUsage {
		header = append(header, "SIZE")
	}
	if r.Run != nil {
		header = append(header, "ERROR")
	}

	rows := make([][]string, 0, len(r.Packages))
	for _, p := range r.Packages {
		ref := types.ShortRef(p.Reference)
		if p.OldReference != "" && p.OldReference != p.Reference {
			ref = types.ShortRef(p.OldReference) + ".." + ref
		}
		row := []string{p.Name, p.Version, ref}
		if r.Run != nil {
			row = []string{p.Name, p.Action, p.Version, ref}
		}
		if r.HasUsage {
			size := p.SizeHuman
			if p.Missing {
				size = "missing"
			}
			row = append(row, size)
		}
		if r.Run != nil {
			row = append(row, p.Error)
		}
		rows = append(rows, row)
	}
	return header, rows
}

// TSVFormatter formats output as tab-separated values.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	header, rows := columns(r)
	w.WriteString(strings.Join(header, "\t"))
	w.WriteByte('\n')
	for _, row := range rows {
		w.WriteString(strings.Join(row, "\t"))
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

var _ Formatter = (*TSVFormatter)(nil)

// CSVFormatter formats output as comma-separated values with proper quoting.
// It uses encoding/csv for RFC 4180 compliant output.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	header, rows := columns(r)
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

var _ Formatter = (*CSVFormatter)(nil)

// MarkdownFormatter formats output as a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Report) error {
	header, rows := columns(r)

	fmt.Fprintf(w, "| %s |\n", strings.Join(header, " | "))
	seps := make([]string, len(header))
	for i, h := range header {
		seps[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintf(w, "|-%s-|\n", strings.Join(seps, "-|-"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = escapeMarkdownPipe(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// escapeMarkdownPipe escapes pipe characters in a string for Markdown tables.
func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

var _ Formatter = (*MarkdownFormatter)(nil)

// TableFormatter draws a boxed table with go-pretty, with a footer row
// summarizing the listing.
type TableFormatter struct {
	// Style is the go-pretty style; the zero value uses table.StyleLight.
	Style *table.Style
}

// Format writes the formatted output to the buffer.
func (f *TableFormatter) Format(w *bytes.Buffer, r *Report) error {
	header, rows := columns(r)

	t := table.NewWriter()
	if f.Style != nil {
		t.SetStyle(*f.Style)
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.AppendHeader(toRow(header))
	for _, row := range rows {
		t.AppendRow(toRow(row))
	}

	footer := make(table.Row, len(header))
	for i, h := range header {
		switch {
		case i == 0:
			footer[i] = fmt.Sprintf("%d packages", len(r.Packages))
		case h == "SIZE":
			footer[i] = humanBytes(r.TotalBytes())
		default:
			footer[i] = ""
		}
	}
	t.AppendFooter(footer)

	w.WriteString(t.Render())
	w.WriteByte('\n')
	return nil
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func init() {
	Register("table", func() Formatter {
		return &TableFormatter{}
	})
}

var _ Formatter = (*TableFormatter)(nil)
