package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/stone/pkg/stone/composer"
	"github.com/jamesainslie/stone/pkg/stone/index"
	"github.com/jamesainslie/stone/pkg/stone/resolver"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	JSON       bool              `mapstructure:"json" yaml:"json"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// MirrorConfig configures where and how packages are mirrored.
type MirrorConfig struct {
	Root         string        `mapstructure:"root" yaml:"root"`
	IndexPath    string        `mapstructure:"index_path" yaml:"index_path"`
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	IncludeDev   bool          `mapstructure:"include_dev" yaml:"include_dev"`
}

// ResolverConfig configures metadata lookups.
type ResolverConfig struct {
	Repositories     []string      `mapstructure:"repositories" yaml:"repositories"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries          int           `mapstructure:"retries" yaml:"retries"`
	RetryWaitMin     time.Duration `mapstructure:"retry_wait_min" yaml:"retry_wait_min"`
	RetryWaitMax     time.Duration `mapstructure:"retry_wait_max" yaml:"retry_wait_max"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CachePath        string        `mapstructure:"cache_path" yaml:"cache_path"`
	PlatformPatterns []string      `mapstructure:"platform_patterns" yaml:"platform_patterns"`
}

// ComposerConfig locates Composer's own configuration.
type ComposerConfig struct {
	Home string `mapstructure:"home" yaml:"home"`
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	Mirror   MirrorConfig   `mapstructure:"mirror" yaml:"mirror"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Composer ComposerConfig `mapstructure:"composer" yaml:"composer"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// IndexPath returns the configured index path, defaulting to packages.json
// in the mirror root.
func (c *Config) IndexPath() string {
	if c.Mirror.IndexPath != "" {
		return c.Mirror.IndexPath
	}
	return filepath.Join(c.Mirror.Root, index.FileName)
}

// Configure prepares v to read stone's configuration: search paths (or the
// explicit file), the STONE_ environment prefix and every default. Keys map
// to environment variables with dots replaced, so mirror.root is
// STONE_MIRROR_ROOT.
func Configure(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "stone"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "stone"))
		}
	}

	v.SetEnvPrefix("STONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Empty paths are filled in by Read so environment fallbacks apply.
	v.SetDefault("mirror.root", "")
	v.SetDefault("mirror.index_path", "")
	v.SetDefault("mirror.workers", DefaultWorkers)
	v.SetDefault("mirror.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("mirror.include_dev", false)

	v.SetDefault("resolver.repositories", []string{resolver.DefaultRepository})
	v.SetDefault("resolver.timeout", DefaultResolverTimeout)
	v.SetDefault("resolver.retries", DefaultRetries)
	v.SetDefault("resolver.retry_wait_min", DefaultRetryWaitMin)
	v.SetDefault("resolver.retry_wait_max", DefaultRetryWaitMax)
	v.SetDefault("resolver.cache_ttl", DefaultCacheTTL)
	v.SetDefault("resolver.cache_path", "")
	v.SetDefault("resolver.platform_patterns", composer.DefaultPlatformPatterns)

	v.SetDefault("composer.home", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"reconcile": "info",
		"resolver":  "info",
		"fetcher":   "info",
		"watcher":   "warn",
	})
}

// Read reads the config file (a missing file is not an error), decodes it
// and resolves every path left empty.
func Read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if cfg.Mirror.Workers < 1 {
		cfg.Mirror.Workers = DefaultWorkers
	}
	return &cfg, nil
}

// Load loads configuration from the default locations and environment.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/stone/config.yaml
//   - $HOME/.config/stone/config.yaml
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file; an empty file means the
// default locations.
func LoadFile(file string) (*Config, error) {
	v := viper.New()
	Configure(v, file)
	return Read(v)
}

func (c *Config) resolvePaths() error {
	var err error
	if c.Mirror.Root == "" {
		c.Mirror.Root = os.Getenv(LegacyHomeEnv)
	}
	if c.Mirror.Root == "" {
		c.Mirror.Root = DefaultMirrorRoot()
	}
	// Mirror paths are compared with absolute output-dir arguments.
	if c.Mirror.Root, err = absPath(c.Mirror.Root); err != nil {
		return err
	}
	if c.Mirror.IndexPath != "" {
		if c.Mirror.IndexPath, err = absPath(c.Mirror.IndexPath); err != nil {
			return err
		}
	}

	if c.Composer.Home == "" {
		if c.Composer.Home, err = composer.DefaultHome(); err != nil {
			return err
		}
	}
	if c.Composer.Home, err = ExpandPath(c.Composer.Home); err != nil {
		return err
	}

	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath()
	}
	if c.History.Path, err = ExpandPath(c.History.Path); err != nil {
		return err
	}

	if c.Resolver.CachePath == "" {
		c.Resolver.CachePath = DefaultCachePath()
	}
	if c.Resolver.CachePath, err = ExpandPath(c.Resolver.CachePath); err != nil {
		return err
	}

	c.Logging.Path, err = ExpandPath(c.Logging.Path)
	return err
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "stone"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "stone"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	content := fmt.Sprintf(`# stone configuration

mirror:
  # Where package sources, installed.json and packages.json live.
  # Empty means $STONE_MIRROR_ROOT, then $%s, then %s
  root: ""
  # Empty means <root>/packages.json
  index_path: ""
  # Concurrent fetches
  workers: %d
  fetch_timeout: %s
  # Also mirror require-dev packages
  include_dev: false

resolver:
  # Composer repositories consulted in order
  repositories:
    - %s
  timeout: %s
  retries: %d
  retry_wait_min: %s
  retry_wait_max: %s
  # How long metadata is served from cache before revalidating
  cache_ttl: %s
  # Empty means %s
  cache_path: ""
  # Requirements matching these patterns are never mirrored
  platform_patterns:
%s
composer:
  # Empty means $COMPOSER_HOME or ~/.composer
  home: ""

history:
  enabled: true
  # Empty means %s
  path: ""
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/stone/stone.log
  path: ""
  json: false
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    reconcile: info
    resolver: info
    fetcher: info
    watcher: warn
`,
		LegacyHomeEnv, DefaultMirrorRoot(),
		DefaultWorkers, DefaultFetchTimeout,
		resolver.DefaultRepository,
		DefaultResolverTimeout, DefaultRetries, DefaultRetryWaitMin, DefaultRetryWaitMax,
		DefaultCacheTTL, DefaultCachePath(),
		yamlList(composer.DefaultPlatformPatterns, "    "),
		DefaultHistoryPath(), DefaultRetentionDays)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

func yamlList(items []string, indent string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "%s- %q\n", indent, item)
	}
	return b.String()
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// absPath expands a leading ~ and makes path absolute.
func absPath(path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// DataDir returns $XDG_DATA_HOME/stone/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "stone")
}

// StateDir returns $XDG_STATE_HOME/stone/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "stone")
}

// CacheDir returns $XDG_CACHE_HOME/stone/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "stone")
}

// DefaultMirrorRoot returns $XDG_DATA_HOME/stone/repositories.
func DefaultMirrorRoot() string {
	return filepath.Join(DataDir(), "repositories")
}

// DefaultHistoryPath returns $XDG_DATA_HOME/stone/history.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultCachePath returns $XDG_CACHE_HOME/stone/metadata.
func DefaultCachePath() string {
	return filepath.Join(CacheDir(), "metadata")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "stone.log")
}
