package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/journal"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror <manifest> [output-dir]",
	Short: "Mirror the packages a composer.json requires",
	Long: `Resolve every package the manifest requires to its development branch
and bring the mirror up to date.

Packages already mirrored at the resolved reference are skipped, changed
packages are updated in place and new packages are cloned. Platform
requirements (php, ext-*, lib-*, ...) are ignored. Packages mirrored by
earlier runs are kept unless --prune is given.

The mirror root defaults to mirror.root from the configuration, then
$COMPOSER_STONE_HOME, then ~/.local/share/stone/repositories.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMirror,
}

var mirrorFlags runFlags

func init() {
	addRunFlags(mirrorCmd, &mirrorFlags, true)
	rootCmd.AddCommand(mirrorCmd)
}

// runMirror reconciles the mirror against a manifest.
func runMirror(cmd *cobra.Command, args []string) error {
	root, err := mirrorRoot(appConfig, args, 1)
	if err != nil {
		return err
	}

	wf, release, err := newWorkflow(appConfig, root, &mirrorFlags)
	if err != nil {
		return err
	}
	defer release()

	printVerbose("mirroring %s into %s", args[0], wf.Options().MirrorRoot)
	result, runErr := wf.Mirror(commandContext(cmd), args[0])
	return finishRun(cmd, journal.OpMirror, wf, result, runErr)
}
