// Package config provides configuration management for stone.
package config

import "time"

// Default configuration values for stone.
const (
	// DefaultConfigDir is the default configuration directory path.
	DefaultConfigDir = "~/.config/stone"

	// DefaultWorkers is the number of concurrent fetches. One keeps VCS
	// output readable and is what the mirror has always done.
	DefaultWorkers = 1

	// DefaultFetchTimeout bounds a single package fetch.
	DefaultFetchTimeout = 10 * time.Minute

	// DefaultResolverTimeout bounds a single metadata request.
	DefaultResolverTimeout = 30 * time.Second

	// DefaultRetries is how many times a failed metadata request is retried.
	DefaultRetries = 4

	// DefaultRetryWaitMin and DefaultRetryWaitMax bound the retry backoff.
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 10 * time.Second

	// DefaultCacheTTL is how long cached metadata is served without
	// revalidation.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultRetentionDays is the default number of days to keep run history.
	DefaultRetentionDays = 30

	// LegacyHomeEnv names the environment variable older installs used for
	// the mirror root.
	LegacyHomeEnv = "COMPOSER_STONE_HOME"
)
