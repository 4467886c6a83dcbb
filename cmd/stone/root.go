package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/stone/pkg/stone/config"
	"github.com/jamesainslie/stone/pkg/stone/logging"
)

var (
	cfgFile string
	// appConfig is loaded once per invocation by the root PersistentPreRunE.
	appConfig *config.Config

	rootCmd = &cobra.Command{
		Use:   "stone",
		Short: "Mirror Composer packages from their development branches",
		Long: `Stone keeps a local mirror of the packages a composer.json requires.

Every required package is resolved to its development branch through a
Packagist-compatible repository and checked out under the mirror root.
The mirror root carries installed.json and a packages.json index that
Composer can use directly as a "composer" repository.

Examples:
  stone init                           # Create the mirror and register it with Composer
  stone mirror composer.json           # Mirror everything composer.json requires
  stone mirror composer.json ./mirror  # Mirror into a specific directory
  stone update                         # Refresh every mirrored package
  stone status -o table --usage        # List mirrored packages with disk usage
  stone history                        # View previous runs`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/stone/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format")
	rootCmd.PersistentFlags().String("template", "", "Go template for -o template")

	// Bind flags to viper
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	config.Configure(viper.GetViper(), cfgFile)
}

// setup loads the configuration and starts logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Read(viper.GetViper())
	if err != nil {
		return err
	}
	appConfig = cfg

	if err := initializeLogging(cfg.Logging, getVerbose()); err != nil {
		// An unwritable log file never blocks a run.
		printVerbose("logging disabled: %v", err)
	}
	printVerbose("config file: %s", viper.ConfigFileUsed())
	return nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so an interrupted run still saves what it fetched.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// getOutput returns the selected output format.
func getOutput() string {
	return viper.GetString("output")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
