package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/output"
	"github.com/jamesainslie/stone/pkg/stone/state"
	"github.com/jamesainslie/stone/pkg/stone/usage"
)

var statusCmd = &cobra.Command{
	Use:   "status [output-dir]",
	Short: "List mirrored packages",
	Long: `List the packages recorded in installed.json with their versions and
source references. --usage also measures each package directory on disk.

Examples:
  stone status                   # Styled listing
  stone status -o json           # Machine-readable
  stone status -o names          # One package name per line
  stone status --usage -o table  # Disk usage per package`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusUsage bool

func init() {
	statusCmd.Flags().BoolVarP(&statusUsage, "usage", "u", false, "measure disk usage of each package")
	rootCmd.AddCommand(statusCmd)
}

// runStatus renders the installed packages.
func runStatus(cmd *cobra.Command, args []string) error {
	root, err := mirrorRoot(appConfig, args, 0)
	if err != nil {
		return err
	}

	records, err := state.NewStore(root).Load()
	if err != nil {
		return err
	}

	report := output.StatusReport(root, indexPathFor(appConfig, root), records.All())
	if statusUsage {
		usages, err := usage.Measure(commandContext(cmd), report.Targets())
		if err != nil {
			return err
		}
		report = report.WithUsage(usages)
	}
	return render(cmd, report)
}
