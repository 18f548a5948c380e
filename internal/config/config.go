// Package config loads ts-graph-mcp.config.json, the project's only
// configuration file (spec §6: JSON only, to avoid dynamic TS loading).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProjectType represents the type of project detected at a directory.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// ConfigFileName is the only configuration file this service reads.
const ConfigFileName = "ts-graph-mcp.config.json"

// PackageConfig names one configured TypeScript package and its
// tsconfig path, matching spec §6's `packages` entry shape.
type PackageConfig struct {
	Name     string `json:"name"`
	TSConfig string `json:"tsconfig"`
}

// StorageConfig optionally overrides where the graph store lives.
type StorageConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Include         []string `json:"include"`
	Exclude         []string `json:"exclude"`
	Debounce        int      `json:"debounce"`        // milliseconds
	Polling         bool     `json:"polling"`
	PollingInterval int      `json:"pollingInterval"` // milliseconds
}

// Config is the fully-resolved ts-graph-mcp configuration.
type Config struct {
	Packages []PackageConfig `json:"packages"`
	Storage  StorageConfig   `json:"storage,omitempty"`
	Watch    WatchConfig     `json:"watch,omitempty"`

	// Host/Port/LogLevel are ambient server settings with no dedicated
	// spec §6 field; they are carried as tiered defaults + env overrides
	// the same way the teacher carries its server settings.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	LogLevel string `json:"logLevel,omitempty"`
}

// rawConfig mirrors the config file with `packages` kept raw, since that
// field may hold either full package entries or the bare form spec §6
// allows (normalized to a single implicit module by parsePackages).
type rawConfig struct {
	Packages json.RawMessage `json:"packages"`
	Storage  StorageConfig   `json:"storage"`
	Watch    WatchConfig     `json:"watch"`
	Host     string          `json:"host"`
	Port     int             `json:"port"`
	LogLevel string          `json:"logLevel"`
}

// NewConfig returns a Config populated with sensible built-in defaults
// (spec §6's lowest-precedence tier).
func NewConfig() *Config {
	return &Config{
		Packages: nil,
		Watch: WatchConfig{
			Debounce:        300,
			Polling:         false,
			PollingInterval: 1000,
		},
		Host:     "127.0.0.1",
		Port:     0, // 0 means "pick an ephemeral port", per spec §5
		LogLevel: "info",
	}
}

// Load resolves configuration for the project rooted at dir, applying
// spec §6's tiered precedence: built-in defaults, then
// ts-graph-mcp.config.json if present, then TSGRAPH_* environment
// overrides. If no config file exists, dir is registered as a single
// implicit package named "app" with dir/tsconfig.json as its tsconfig,
// whether or not that file exists.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(dir, ConfigFileName)
	if fileExists(path) {
		if err := cfg.loadJSON(path); err != nil {
			return nil, err
		}
	} else {
		cfg.Packages = []PackageConfig{{Name: "app", TSConfig: filepath.Join(dir, "tsconfig.json")}}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadJSON reads and merges ts-graph-mcp.config.json at path, accepting
// both the full object form and the bare-`packages`-array form.
func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	packages, err := parsePackages(raw.Packages)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if len(packages) > 0 {
		c.Packages = packages
	}
	if raw.Storage.Type != "" {
		c.Storage = raw.Storage
	}
	if raw.Watch.Debounce != 0 {
		c.Watch.Debounce = raw.Watch.Debounce
	}
	if raw.Watch.PollingInterval != 0 {
		c.Watch.PollingInterval = raw.Watch.PollingInterval
	}
	c.Watch.Polling = raw.Watch.Polling
	if len(raw.Watch.Include) > 0 {
		c.Watch.Include = raw.Watch.Include
	}
	if len(raw.Watch.Exclude) > 0 {
		c.Watch.Exclude = raw.Watch.Exclude
	}
	if raw.Host != "" {
		c.Host = raw.Host
	}
	if raw.Port != 0 {
		c.Port = raw.Port
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}

	return nil
}

// parsePackages decodes the `packages` field, which may be either a
// full array of {name, tsconfig} objects or a bare array of tsconfig
// path strings (spec §6: "an input form with a bare packages key is
// accepted and normalized to a single implicit module").
func parsePackages(raw json.RawMessage) ([]PackageConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var full []PackageConfig
	if err := json.Unmarshal(raw, &full); err == nil {
		allNamed := true
		for _, p := range full {
			if p.Name == "" {
				allNamed = false
				break
			}
		}
		if allNamed {
			return full, nil
		}
	}

	// Bare form: a single tsconfig path, or an array of bare strings,
	// normalized to one implicit module named "app".
	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		return []PackageConfig{{Name: "app", TSConfig: path}}, nil
	}

	var paths []string
	if err := json.Unmarshal(raw, &paths); err == nil && len(paths) > 0 {
		return []PackageConfig{{Name: "app", TSConfig: paths[0]}}, nil
	}

	return nil, fmt.Errorf("packages: expected an array of {name,tsconfig} objects or a bare tsconfig path")
}

// applyEnvOverrides applies TSGRAPH_* environment variable overrides,
// the highest-precedence tier.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TSGRAPH_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("TSGRAPH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 0 {
			c.Port = p
		}
	}
	if v := os.Getenv("TSGRAPH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TSGRAPH_WATCH_POLLING"); v != "" {
		c.Watch.Polling = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks the resolved configuration for obvious
// misconfiguration (spec §7's "Config invalid" error kind, fatal at
// startup).
func (c *Config) Validate() error {
	if len(c.Packages) == 0 {
		return fmt.Errorf("packages: at least one package must be configured")
	}
	seen := make(map[string]bool, len(c.Packages))
	for _, p := range c.Packages {
		if p.Name == "" {
			return fmt.Errorf("packages: every package requires a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("packages: duplicate package name %q", p.Name)
		}
		seen[p.Name] = true
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be non-negative, got %d", c.Watch.Debounce)
	}
	if c.Watch.PollingInterval < 0 {
		return fmt.Errorf("watch.pollingInterval must be non-negative, got %d", c.Watch.PollingInterval)
	}
	if c.Port < 0 {
		return fmt.Errorf("port must be non-negative, got %d", c.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("logLevel must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}
	return nil
}

// WriteJSON writes the configuration to path as ts-graph-mcp.config.json.
func (c *Config) WriteJSON(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt.
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot walks up from startDir looking for a .git directory
// or a ts-graph-mcp.config.json file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ConfigFileName)) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}
