package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/journal"
	"github.com/jamesainslie/stone/pkg/stone/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <manifest> [output-dir]",
	Short: "Mirror now and again whenever the manifest changes",
	Long: `Run mirror once, then watch the manifest and run it again each time the
file is saved. A failed run is reported and the watch continues. Stop with
Ctrl-C.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatch,
}

var (
	watchFlags    runFlags
	watchDebounce = watcher.DefaultDebounce
)

func init() {
	addRunFlags(watchCmd, &watchFlags, true)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "wait this long after a change before mirroring")
	rootCmd.AddCommand(watchCmd)
}

// runWatch mirrors on every manifest change until interrupted.
func runWatch(cmd *cobra.Command, args []string) error {
	root, err := mirrorRoot(appConfig, args, 1)
	if err != nil {
		return err
	}

	wf, release, err := newWorkflow(appConfig, root, &watchFlags)
	if err != nil {
		return err
	}
	defer release()

	w, err := watcher.New(args[0], watchDebounce)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	printInfo("Watching %s (mirror: %s)", w.Path(), wf.Options().MirrorRoot)
	return w.Run(commandContext(cmd), func(ctx context.Context) error {
		result, runErr := wf.Mirror(ctx, args[0])
		if err := finishRun(cmd, journal.OpMirror, wf, result, runErr); err != nil {
			printError("%v", err)
			return err
		}
		return nil
	})
}
