package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/stone/pkg/stone/types"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatPackages(r))
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Mirror:"), ValueStyle.Render(r.Source)),
	}
	if r.IndexPath != "" {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Index:"), MutedStyle.Render(r.IndexPath)))
	}

	if run := r.Run; run != nil {
		info := []string{
			fmt.Sprintf("%s %s", LabelStyle.Render("Run:"), ValueStyle.Render(run.Mode)),
		}
		if run.Manifest != "" {
			info = append(info, MutedStyle.Render(run.Manifest))
		}
		if run.Duration > 0 {
			info = append(info, MutedStyle.Render("in "+formatDuration(run.Duration)))
		}
		lines = append(lines, strings.Join(info, "  "))
		if run.Error != "" {
			lines = append(lines, ErrorStyle.Bold(true).Render(run.Error))
		}
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatPackages(r *Report) string {
	if len(r.Packages) == 0 {
		return MutedStyle.Render("  No packages mirrored\n")
	}

	nameWidth := 0
	for _, p := range r.Packages {
		nameWidth = max(nameWidth, len(p.Name))
	}

	var sb strings.Builder
	for _, p := range r.Packages {
		var parts []string
		if r.Run != nil {
			parts = append(parts, actionStyle(p.Action).Render(padRight(p.Action, 11)))
		}
		parts = append(parts, NameStyle.Render(padRight(p.Name, nameWidth)))
		parts = append(parts, MutedStyle.Render(padRight(p.Version, 12)))
		parts = append(parts, RefStyle.Render(refRange(p)))
		if r.HasUsage {
			if p.Missing {
				parts = append(parts, ErrorStyle.Render("missing"))
			} else {
				parts = append(parts, SizeStyle.Render(padLeft(p.SizeHuman, 10)))
			}
		}
		sb.WriteString("  " + strings.Join(parts, "  ") + "\n")
		if p.Error != "" {
			sb.WriteString("    " + ErrorStyle.Render(p.Error) + "\n")
		}
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	var parts []string
	if run := r.Run; run != nil {
		counts := []struct {
			label string
			n     int
		}{
			{"fetched", run.Fetched},
			{"updated", run.Updated},
			{"skipped", run.Skipped},
			{"pruned", run.Pruned},
			{"failed", run.Failed},
			{"canceled", run.Canceled},
		}
		for _, c := range counts {
			if c.n == 0 && (c.label == "pruned" || c.label == "failed" || c.label == "canceled") {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render(c.label+":"), ValueStyle.Render(fmt.Sprint(c.n))))
		}
	} else {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Packages:"), ValueStyle.Render(fmt.Sprint(len(r.Packages)))))
	}
	if r.HasUsage {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SizeStyle.Render(humanBytes(r.TotalBytes()))))
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

func refRange(p PackageInfo) string {
	if p.OldReference != "" && p.OldReference != p.Reference {
		return types.ShortRef(p.OldReference) + " -> " + types.ShortRef(p.Reference)
	}
	return types.ShortRef(p.Reference)
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func humanBytes(n int64) string {
	return humanize.IBytes(uint64(n))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
