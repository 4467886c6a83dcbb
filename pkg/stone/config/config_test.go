package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/stone/pkg/stone/composer"
	"github.com/jamesainslie/stone/pkg/stone/resolver"
)

// isolate points HOME and the XDG directories at a temp dir and clears the
// environment variables Load consults.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("COMPOSER_HOME", "")
	t.Setenv(LegacyHomeEnv, "")
	t.Setenv("STONE_MIRROR_ROOT", "")
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return home
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "data", "stone", "repositories"); cfg.Mirror.Root != want {
		t.Errorf("Mirror.Root = %q, want %q", cfg.Mirror.Root, want)
	}
	if want := filepath.Join(cfg.Mirror.Root, "packages.json"); cfg.IndexPath() != want {
		t.Errorf("IndexPath() = %q, want %q", cfg.IndexPath(), want)
	}
	if cfg.Mirror.Workers != DefaultWorkers {
		t.Errorf("Mirror.Workers = %d, want %d", cfg.Mirror.Workers, DefaultWorkers)
	}
	if cfg.Mirror.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("Mirror.FetchTimeout = %v, want %v", cfg.Mirror.FetchTimeout, DefaultFetchTimeout)
	}
	if len(cfg.Resolver.Repositories) != 1 || cfg.Resolver.Repositories[0] != resolver.DefaultRepository {
		t.Errorf("Resolver.Repositories = %v", cfg.Resolver.Repositories)
	}
	if cfg.Resolver.CacheTTL != DefaultCacheTTL {
		t.Errorf("Resolver.CacheTTL = %v, want %v", cfg.Resolver.CacheTTL, DefaultCacheTTL)
	}
	if len(cfg.Resolver.PlatformPatterns) != len(composer.DefaultPlatformPatterns) {
		t.Errorf("Resolver.PlatformPatterns = %v", cfg.Resolver.PlatformPatterns)
	}
	if want := filepath.Join(home, ".composer"); cfg.Composer.Home != want {
		t.Errorf("Composer.Home = %q, want %q", cfg.Composer.Home, want)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
	if cfg.History.RetentionDays != DefaultRetentionDays {
		t.Errorf("History.RetentionDays = %d, want %d", cfg.History.RetentionDays, DefaultRetentionDays)
	}
	if want := filepath.Join(home, "cache", "stone", "metadata"); cfg.Resolver.CachePath != want {
		t.Errorf("Resolver.CachePath = %q, want %q", cfg.Resolver.CachePath, want)
	}
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "stone"), `
mirror:
  root: ~/mirror
  workers: 4
  fetch_timeout: 90s
  include_dev: true
resolver:
  repositories:
    - https://packages.example.com
    - https://repo.packagist.org
  retries: 1
  cache_ttl: 1h
  platform_patterns: ["php", "ext-*"]
composer:
  home: /opt/composer
history:
  enabled: false
  retention_days: 7
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "mirror"); cfg.Mirror.Root != want {
		t.Errorf("Mirror.Root = %q, want %q", cfg.Mirror.Root, want)
	}
	if cfg.Mirror.Workers != 4 {
		t.Errorf("Mirror.Workers = %d, want 4", cfg.Mirror.Workers)
	}
	if cfg.Mirror.FetchTimeout != 90*time.Second {
		t.Errorf("Mirror.FetchTimeout = %v", cfg.Mirror.FetchTimeout)
	}
	if !cfg.Mirror.IncludeDev {
		t.Error("Mirror.IncludeDev = false")
	}
	if len(cfg.Resolver.Repositories) != 2 || cfg.Resolver.Repositories[0] != "https://packages.example.com" {
		t.Errorf("Resolver.Repositories = %v", cfg.Resolver.Repositories)
	}
	if cfg.Resolver.Retries != 1 || cfg.Resolver.CacheTTL != time.Hour {
		t.Errorf("Resolver = %+v", cfg.Resolver)
	}
	if len(cfg.Resolver.PlatformPatterns) != 2 {
		t.Errorf("PlatformPatterns = %v", cfg.Resolver.PlatformPatterns)
	}
	if cfg.Composer.Home != "/opt/composer" {
		t.Errorf("Composer.Home = %q", cfg.Composer.Home)
	}
	if cfg.History.Enabled || cfg.History.RetentionDays != 7 {
		t.Errorf("History = %+v", cfg.History)
	}
}

func TestLoad_XDGConfigHome(t *testing.T) {
	home := isolate(t)
	xdgConfig := filepath.Join(home, "xdg-config")
	writeConfig(t, filepath.Join(xdgConfig, "stone"), "mirror:\n  workers: 3\n")
	t.Setenv("XDG_CONFIG_HOME", xdgConfig)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mirror.Workers != 3 {
		t.Errorf("Mirror.Workers = %d, want 3", cfg.Mirror.Workers)
	}
}

func TestLoadFile(t *testing.T) {
	home := isolate(t)
	path := writeConfig(t, filepath.Join(home, "elsewhere"), "mirror:\n  root: /srv/stone\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Mirror.Root != "/srv/stone" {
		t.Errorf("Mirror.Root = %q", cfg.Mirror.Root)
	}

	if _, err := LoadFile(filepath.Join(home, "missing.yaml")); err == nil {
		t.Error("LoadFile() with an explicit missing file returned nil error")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "stone"), "mirror: [unclosed\n")

	if _, err := Load(); err == nil {
		t.Error("Load() with malformed YAML returned nil error")
	}
}

func TestLoad_MirrorRootPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		file   string
		expect string
	}{
		{
			name:   "legacy variable",
			env:    map[string]string{LegacyHomeEnv: "/legacy"},
			expect: "/legacy",
		},
		{
			name:   "stone variable wins over legacy",
			env:    map[string]string{LegacyHomeEnv: "/legacy", "STONE_MIRROR_ROOT": "/env"},
			expect: "/env",
		},
		{
			name:   "config file wins over legacy",
			env:    map[string]string{LegacyHomeEnv: "/legacy"},
			file:   "mirror:\n  root: /from-file\n",
			expect: "/from-file",
		},
		{
			name:   "stone variable wins over config file",
			env:    map[string]string{"STONE_MIRROR_ROOT": "/env"},
			file:   "mirror:\n  root: /from-file\n",
			expect: "/env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.file != "" {
				writeConfig(t, filepath.Join(home, ".config", "stone"), tt.file)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Mirror.Root != tt.expect {
				t.Errorf("Mirror.Root = %q, want %q", cfg.Mirror.Root, tt.expect)
			}
		})
	}
}

func TestLoad_RelativeMirrorPathsAreAbsolute(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "stone"), "mirror:\n  index_path: public/packages.json\n")
	t.Setenv("STONE_MIRROR_ROOT", "mirror")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "mirror"); cfg.Mirror.Root != want {
		t.Errorf("Mirror.Root = %q, want %q", cfg.Mirror.Root, want)
	}
	if want := filepath.Join(wd, "public", "packages.json"); cfg.IndexPath() != want {
		t.Errorf("IndexPath() = %q, want %q", cfg.IndexPath(), want)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("STONE_MIRROR_WORKERS", "6")
	t.Setenv("STONE_RESOLVER_CACHE_TTL", "5s")
	t.Setenv("COMPOSER_HOME", "/tmp/composer-home")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mirror.Workers != 6 {
		t.Errorf("Mirror.Workers = %d, want 6", cfg.Mirror.Workers)
	}
	if cfg.Resolver.CacheTTL != 5*time.Second {
		t.Errorf("Resolver.CacheTTL = %v, want 5s", cfg.Resolver.CacheTTL)
	}
	if cfg.Composer.Home != "/tmp/composer-home" {
		t.Errorf("Composer.Home = %q", cfg.Composer.Home)
	}
}

func TestLoad_WorkersFloor(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "stone"), "mirror:\n  workers: 0\n")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mirror.Workers != DefaultWorkers {
		t.Errorf("Mirror.Workers = %d, want %d", cfg.Mirror.Workers, DefaultWorkers)
	}
}

func TestLoad_LoggingDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Path != "" {
		t.Errorf("Logging.Path = %q, want empty", cfg.Logging.Path)
	}
	if cfg.Logging.Rotation.MaxSize != "10MB" || cfg.Logging.Rotation.MaxBackups != 5 || !cfg.Logging.Rotation.Daily {
		t.Errorf("Logging.Rotation = %+v", cfg.Logging.Rotation)
	}
	if cfg.Logging.Components["watcher"] != "warn" {
		t.Errorf("Logging.Components = %v", cfg.Logging.Components)
	}
}

func TestLoad_LoggingFromFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "stone"), `
logging:
  level: debug
  path: ~/logs/stone.log
  json: true
  rotation:
    max_size: 1MB
    max_age: 3
    max_backups: 1
    daily: false
  components:
    fetcher: error
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if want := filepath.Join(home, "logs", "stone.log"); cfg.Logging.Path != want {
		t.Errorf("Logging.Path = %q, want %q", cfg.Logging.Path, want)
	}
	if cfg.Logging.Rotation.MaxSize != "1MB" || cfg.Logging.Rotation.Daily {
		t.Errorf("Logging.Rotation = %+v", cfg.Logging.Rotation)
	}
	if cfg.Logging.Components["fetcher"] != "error" {
		t.Errorf("Logging.Components = %v", cfg.Logging.Components)
	}
}

func TestIndexPath_Override(t *testing.T) {
	t.Parallel()
	cfg := &Config{Mirror: MirrorConfig{Root: "/srv/stone", IndexPath: "/var/www/packages.json"}}
	if cfg.IndexPath() != "/var/www/packages.json" {
		t.Errorf("IndexPath() = %q", cfg.IndexPath())
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		xdgPath := filepath.Join(t.TempDir(), "xdg")
		t.Setenv("XDG_CONFIG_HOME", xdgPath)

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if want := filepath.Join(xdgPath, "stone"); dir != want {
			t.Errorf("ConfigDir() = %q, want %q", dir, want)
		}
	})

	t.Run("falls back to ~/.config", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		t.Setenv("XDG_CONFIG_HOME", "")

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if want := filepath.Join(home, ".config", "stone"); dir != want {
			t.Errorf("ConfigDir() = %q, want %q", dir, want)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read default config: %v", err)
	}
	for _, want := range []string{"mirror:", "resolver:", resolver.DefaultRepository, `- "ext-*"`, "history:", "logging:"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("default config missing %q", want)
		}
	}

	// The written file must load back to the defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after WriteDefault() error = %v", err)
	}
	if cfg.Mirror.Root != DefaultMirrorRoot() || cfg.Mirror.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("round-tripped config = %+v", cfg.Mirror)
	}
	if len(cfg.Resolver.PlatformPatterns) != len(composer.DefaultPlatformPatterns) {
		t.Errorf("PlatformPatterns = %v", cfg.Resolver.PlatformPatterns)
	}

	// A second call leaves a user-edited file alone.
	if err := os.WriteFile(path, []byte("mirror:\n  workers: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	content, _ = os.ReadFile(path)
	if string(content) != "mirror:\n  workers: 9\n" {
		t.Error("WriteDefault() overwrote an existing config")
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		input string
		want  string
	}{
		{"~/mirror", filepath.Join(home, "mirror")},
		{"~", home},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestXDGPaths(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDir", DataDir(), filepath.Join(home, "data", "stone")},
		{"StateDir", StateDir(), filepath.Join(home, "state", "stone")},
		{"CacheDir", CacheDir(), filepath.Join(home, "cache", "stone")},
		{"DefaultMirrorRoot", DefaultMirrorRoot(), filepath.Join(home, "data", "stone", "repositories")},
		{"DefaultHistoryPath", DefaultHistoryPath(), filepath.Join(home, "data", "stone", "history")},
		{"DefaultCachePath", DefaultCachePath(), filepath.Join(home, "cache", "stone", "metadata")},
		{"DefaultLogPath", DefaultLogPath(), filepath.Join(home, "state", "stone", "stone.log")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
