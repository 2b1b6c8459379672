// Package config provides configuration types and defaults for modreg.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/refresh"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/tracing"
)

// Config holds all configuration options for modreg.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Source   SourceConfig   `mapstructure:"source"`
	Scopes   ScopesConfig   `mapstructure:"scopes"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// DatabaseConfig locates the artifact database.
type DatabaseConfig struct {
	// Path is the SQLite file. Default: ~/.config/modreg/modreg.db
	Path string `mapstructure:"path"`
}

// SourceConfig selects where namespaces are built from.
type SourceConfig struct {
	// Type is "sqlite" (default) or "fs".
	Type string `mapstructure:"type"`
	// Root is the artifact directory for the "fs" source.
	Root string `mapstructure:"root"`
}

// ScopesConfig defines the known scope kinds and how archives are read.
type ScopesConfig struct {
	// Kinds lists the local scope kinds. Global is always known.
	Kinds []string `mapstructure:"kinds"`
	// ModuleSuffix marks module files inside archives. Default: ".mod"
	ModuleSuffix string `mapstructure:"module_suffix"`
	// MaxMemberBytes caps the uncompressed size of one archive member.
	// Default: 64 MiB
	MaxMemberBytes int64 `mapstructure:"max_member_bytes"`
}

// KindSet returns the configured kinds as a scope.Kinds.
func (s ScopesConfig) KindSet() *scope.Kinds {
	kinds := make([]scope.Kind, 0, len(s.Kinds))
	for _, k := range s.Kinds {
		kinds = append(kinds, scope.Kind(strings.TrimSpace(k)))
	}
	return scope.NewKinds(kinds...)
}

// RefreshConfig controls how deployments refresh namespaces.
type RefreshConfig struct {
	// Mode is "deferred", "immediate" or "rollback" (default).
	Mode string `mapstructure:"mode"`
	// WatchDebounce coalesces file changes for the fs watcher.
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// CacheConfig controls the decompressed artifact blob cache.
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	// Level is "debug", "info" (default), "warn" or "error".
	Level string `mapstructure:"level"`
	// File is where log lines go. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// DefaultConfigDir returns ~/.config/modreg, or empty if the home dir is
// unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "modreg")
}

// DefaultDatabasePath returns the default artifact database path.
func DefaultDatabasePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return "modreg.db"
	}
	return filepath.Join(dir, "modreg.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	kinds := make([]string, 0, len(scope.DefaultKinds))
	for _, k := range scope.DefaultKinds {
		kinds = append(kinds, string(k))
	}
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()

	return Config{
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		Source:   SourceConfig{Type: "sqlite"},
		Scopes: ScopesConfig{
			Kinds:          kinds,
			ModuleSuffix:   ".mod",
			MaxMemberBytes: artifact.DefaultMaxMemberSize,
		},
		Refresh: RefreshConfig{
			Mode:          string(refresh.ModeRollback),
			WatchDebounce: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             10 * time.Minute,
			CleanupInterval: 30 * time.Minute,
		},
		Log:     LogConfig{Level: "info"},
		Tracing: tr,
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateSource(c.Source); err != nil {
		return err
	}
	if err := ValidateScopes(c.Scopes); err != nil {
		return err
	}
	if err := ValidateRefresh(c.Refresh); err != nil {
		return err
	}
	if err := ValidateCache(c.Cache); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateSource checks source configuration for errors.
func ValidateSource(s SourceConfig) error {
	switch s.Type {
	case "", "sqlite":
		return nil
	case "fs":
		if s.Root == "" {
			return fmt.Errorf("source.root is required when source.type is \"fs\"")
		}
		return nil
	default:
		return fmt.Errorf("source.type must be \"sqlite\" or \"fs\", got %q", s.Type)
	}
}

// ValidateScopes checks scope kinds for errors.
func ValidateScopes(s ScopesConfig) error {
	seen := make(map[string]bool, len(s.Kinds))
	for i, k := range s.Kinds {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
			return fmt.Errorf("scopes.kinds[%d] is empty", i)
		case k == string(scope.KindGlobal):
			return fmt.Errorf("scopes.kinds[%d]: %q is implicit and cannot be listed", i, k)
		case strings.Contains(k, "/"):
			return fmt.Errorf("scopes.kinds[%d]: %q must not contain \"/\"", i, k)
		case seen[k]:
			return fmt.Errorf("scopes.kinds[%d]: duplicate kind %q", i, k)
		}
		seen[k] = true
	}
	if s.MaxMemberBytes < 0 {
		return fmt.Errorf("scopes.max_member_bytes must not be negative, got %d", s.MaxMemberBytes)
	}
	return nil
}

// ValidateRefresh checks refresh configuration for errors.
func ValidateRefresh(r RefreshConfig) error {
	if r.Mode != "" {
		if _, err := refresh.ParseMode(r.Mode); err != nil {
			return fmt.Errorf("refresh.mode: %w", err)
		}
	}
	if r.WatchDebounce < 0 {
		return fmt.Errorf("refresh.watch_debounce must not be negative, got %s", r.WatchDebounce)
	}
	return nil
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(c CacheConfig) error {
	if c.Enabled && c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled, got %s", c.TTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# modreg configuration

# Artifact database (default: ~/.config/modreg/modreg.db)
database:
  # path: /var/lib/modreg/modreg.db

# Where namespaces are built from: "sqlite" (default) or "fs"
source:
  type: sqlite
  # root: /srv/artifacts   # required for type: fs

# Local scope kinds. "global" is always present.
scopes:
  kinds:
    - process
    - tenant
    - deployment
  module_suffix: .mod     # archive members with this suffix are modules
  max_member_bytes: 67108864   # largest uncompressed archive member

# Refresh protocol for deployments: deferred, immediate or rollback
refresh:
  mode: rollback
  watch_debounce: 500ms   # fs source: coalesce bursts of file changes

# Decompressed artifact cache
cache:
  enabled: true
  ttl: 10m
  cleanup_interval: 30m

# Logging
log:
  level: info             # debug, info, warn, error
  # file: ~/.config/modreg/modreg.log

# Distributed tracing (OpenTelemetry)
# tracing:
#   enabled: true
#   exporter: otlp        # none, file, stdout, otlp
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
