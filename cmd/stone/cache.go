package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stone/pkg/stone/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the metadata cache",
	Long: `Commands for managing the repository metadata cache.

The cache stores package metadata documents so repeat runs revalidate
instead of downloading them again. Cache data is stored in the XDG cache
directory (typically ~/.cache/stone/metadata).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached data",
	Long:  `Removes all cached metadata. The next run downloads every document again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cachePath := appConfig.Resolver.CachePath

		// Check if cache exists
		if _, err := os.Stat(cachePath); os.IsNotExist(err) {
			printInfo("Cache is already empty.")
			return nil
		}

		c, err := cache.Open(cachePath, appConfig.Resolver.CacheTTL)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer func() { _ = c.Close() }()

		n, err := c.Len()
		if err != nil {
			return fmt.Errorf("failed to count cache entries: %w", err)
		}
		if err := c.ClearAll(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		printInfo("Cache cleared (%d documents).", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Displays the cache location, document count, size on disk and TTL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cachePath := appConfig.Resolver.CachePath
		out := cmd.OutOrStdout()

		info, err := os.Stat(cachePath)
		if os.IsNotExist(err) {
			fmt.Fprintln(out, "Cache: empty (no cache directory)")
			fmt.Fprintf(out, "Cache location: %s\n", cachePath)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to stat cache: %w", err)
		}

		// Get directory size
		var size int64
		err = filepath.WalkDir(cachePath, func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if fi, err := d.Info(); err == nil {
				size += fi.Size()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to calculate cache size: %w", err)
		}

		c, err := cache.Open(cachePath, appConfig.Resolver.CacheTTL)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer func() { _ = c.Close() }()

		n, err := c.Len()
		if err != nil {
			return fmt.Errorf("failed to count cache entries: %w", err)
		}

		fmt.Fprintf(out, "Cache location: %s\n", cachePath)
		fmt.Fprintf(out, "Documents: %d\n", n)
		fmt.Fprintf(out, "Cache size: %s\n", humanize.IBytes(uint64(size)))
		fmt.Fprintf(out, "TTL: %s\n", c.TTL())
		fmt.Fprintf(out, "Last modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))

		return nil
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Long:  `Prints the path to the cache directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), appConfig.Resolver.CachePath)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}
