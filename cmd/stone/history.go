package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/journal"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	Long: `View the history of mirror and update runs.

Each run is recorded with the action taken for every package, so a
broken mirror can be traced back to the run that changed it.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific run",
	Long:  `Display every package outcome of a run. A unique ID prefix is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// openJournal returns the journal at the configured history path.
func openJournal() (*journal.Journal, error) {
	j, err := journal.New(appConfig.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return j, nil
}

// runHistory lists recent runs.
func runHistory(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}

	entries, err := j.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'stone mirror <manifest>' to mirror packages.")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%-10s  %-16s  %-7s  %-7s  %-7s  %-7s  %-6s  %s\n",
		"ID", "WHEN", "OP", "FETCHED", "UPDATED", "SKIPPED", "FAILED", "STATUS")
	fmt.Fprintln(out, strings.Repeat("-", 80))

	for _, entry := range entries {
		status := "ok"
		if !entry.Succeeded() {
			status = truncateString(entry.Error, 20)
		}
		fmt.Fprintf(out, "%-10s  %-16s  %-7s  %-7d  %-7d  %-7d  %-6d  %s\n",
			entry.ID[:min(8, len(entry.ID))],
			entry.Timestamp.Local().Format("2006-01-02 15:04"),
			entry.Operation,
			entry.Summary.Fetched,
			entry.Summary.Updated,
			entry.Summary.Skipped,
			entry.Summary.Failed,
			status,
		)
	}

	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintf(out, "\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Fprintln(out, "Use 'stone history show <id>' for details on a specific entry.")

	return nil
}

// runHistoryShow displays details of a specific run.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}

	entry, err := j.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nRun Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:         %s\n", entry.ID)
	fmt.Fprintf(out, "Timestamp:  %s (%s)\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05 MST"), humanize.Time(entry.Timestamp))
	fmt.Fprintf(out, "Operation:  %s\n", entry.Operation)
	if entry.Manifest != "" {
		fmt.Fprintf(out, "Manifest:   %s\n", entry.Manifest)
	}
	fmt.Fprintf(out, "Mirror:     %s\n", entry.Root)
	fmt.Fprintf(out, "Duration:   %s\n", entry.Duration.Round(1e6))
	fmt.Fprintf(out, "Summary:    %d fetched, %d updated, %d skipped, %d pruned, %d failed\n",
		entry.Summary.Fetched, entry.Summary.Updated, entry.Summary.Skipped,
		entry.Summary.Pruned, entry.Summary.Failed)
	if entry.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", entry.Error)
	}

	if len(entry.Packages) > 0 {
		fmt.Fprintln(out, "\nPackages:")
		fmt.Fprintln(out, strings.Repeat("-", 60))
		fmt.Fprintf(out, "%-11s  %-30s  %s\n", "ACTION", "NAME", "REFERENCE")
		fmt.Fprintln(out, strings.Repeat("-", 60))

		for _, p := range entry.Packages {
			ref := types.ShortRef(p.NewReference)
			if p.OldReference != "" && p.OldReference != p.NewReference {
				ref = types.ShortRef(p.OldReference) + ".." + ref
			}
			fmt.Fprintf(out, "%-11s  %-30s  %s\n", p.Action, p.Name, ref)
			if p.Error != "" {
				fmt.Fprintf(out, "             %s\n", p.Error)
			}
		}
	}

	return nil
}

// runHistoryClean removes old history entries.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}

	retentionDays := appConfig.History.RetentionDays
	if retentionDays <= 0 {
		printInfo("History retention is disabled; nothing to clean.")
		return nil
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := j.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("History cleanup complete: %d removed.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
