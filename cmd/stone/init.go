package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/composer"
	"github.com/jamesainslie/stone/pkg/stone/index"
)

var initCmd = &cobra.Command{
	Use:   "init [output-dir]",
	Short: "Create the mirror and register it with Composer",
	Long: `Create the mirror root with an empty packages.json index and add it as
a "composer" repository to Composer's global config.json, so every
project on this machine can install from the mirror.

Running init again is harmless: an existing index and an existing
registration are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initNoRegister bool

func init() {
	initCmd.Flags().BoolVar(&initNoRegister, "no-register", false, "don't touch Composer's global config")
	rootCmd.AddCommand(initCmd)
}

// runInit prepares a mirror root.
func runInit(cmd *cobra.Command, args []string) error {
	root, err := mirrorRoot(appConfig, args, 0)
	if err != nil {
		return err
	}
	indexPath := indexPathFor(appConfig, root)

	created, err := index.Init(indexPath)
	if err != nil {
		return fmt.Errorf("failed to initialize mirror: %w", err)
	}
	if created {
		printInfo("Created %s", indexPath)
	} else {
		printInfo("Index already exists: %s", indexPath)
	}

	if initNoRegister {
		return nil
	}
	changed, err := composer.RegisterRepository(appConfig.Composer.Home, root)
	if err != nil {
		return fmt.Errorf("failed to register mirror: %w", err)
	}
	if changed {
		printInfo("Registered %s in %s", root, appConfig.Composer.Home)
	} else {
		printVerbose("mirror already registered in %s", appConfig.Composer.Home)
	}
	return nil
}
