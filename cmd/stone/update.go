package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/journal"
)

var updateCmd = &cobra.Command{
	Use:   "update [output-dir]",
	Short: "Refresh every mirrored package",
	Long: `Re-resolve every package recorded in installed.json and update the
ones whose development branch moved. No manifest is read, so the set of
mirrored packages never changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpdate,
}

var updateFlags runFlags

func init() {
	addRunFlags(updateCmd, &updateFlags, false)
	rootCmd.AddCommand(updateCmd)
}

// runUpdate refreshes the installed packages.
func runUpdate(cmd *cobra.Command, args []string) error {
	root, err := mirrorRoot(appConfig, args, 0)
	if err != nil {
		return err
	}

	wf, release, err := newWorkflow(appConfig, root, &updateFlags)
	if err != nil {
		return err
	}
	defer release()

	printVerbose("updating %s", wf.Options().MirrorRoot)
	result, runErr := wf.Update(commandContext(cmd))
	return finishRun(cmd, journal.OpUpdate, wf, result, runErr)
}
