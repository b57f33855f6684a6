// Package config loads settings for the sdjournal command.
//
// Sources, later ones overriding earlier ones:
//  1. built-in defaults
//  2. the YAML file at $SDJOURNAL_CONFIG, else $XDG_CONFIG_HOME/sdjournal/config.yaml
//  3. SDJOURNAL_* environment variables
//  4. command-line flags (applied by the command itself)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mbrock/sdjournal/internal/dirs"
	"github.com/mbrock/sdjournal/pkg/sdjournal"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig        = "SDJOURNAL_CONFIG"
	EnvDirectory     = "SDJOURNAL_DIRECTORY"
	EnvNamespace     = "SDJOURNAL_NAMESPACE"
	EnvOutput        = "SDJOURNAL_OUTPUT"
	EnvLogLevel      = "SDJOURNAL_LOG_LEVEL"
	EnvDataThreshold = "SDJOURNAL_DATA_THRESHOLD"
)

// Outputs lists the accepted output formats.
var Outputs = []string{"short", "json", "cat", "verbose"}

type Config struct {
	Directory     string   `yaml:"directory,omitempty"`
	Namespace     string   `yaml:"namespace,omitempty"`
	Output        string   `yaml:"output,omitempty"`
	Lines         int      `yaml:"lines,omitempty"`
	DataThreshold int      `yaml:"data_threshold,omitempty"`
	Matches       []string `yaml:"matches,omitempty"`
	LogLevel      string   `yaml:"log_level,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Output:   "short",
		LogLevel: "warn",
	}
}

// DefaultPath is where the config file lives unless SDJOURNAL_CONFIG says
// otherwise.
func DefaultPath() string {
	return filepath.Join(dirs.ConfigDir(), "config.yaml")
}

// FindPath returns the config file to load, or "" when there is none.
func FindPath() string {
	if path := os.Getenv(EnvConfig); path != "" {
		return path
	}
	path := DefaultPath()
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// Load reads the config file if there is one and applies the environment.
// It returns the path it loaded, or "".
func Load() (*Config, string, error) {
	cfg := Default()
	path := FindPath()
	if path != "" {
		var err error
		if cfg, err = LoadFromPath(path); err != nil {
			return nil, path, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromPath reads one YAML file over the defaults. An explicitly named
// file that does not exist is an error.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output == "" {
		c.Output = "short"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// ApplyEnv overrides settings from SDJOURNAL_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDirectory); v != "" {
		c.Directory = v
	}
	if v := getenv(EnvNamespace); v != "" {
		c.Namespace = v
	}
	if v := getenv(EnvOutput); v != "" {
		c.Output = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvDataThreshold); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDataThreshold, err)
		}
		c.DataThreshold = n
	}
	return nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if !slices.Contains(Outputs, c.Output) {
		return fmt.Errorf("unknown output %q (want one of %s)", c.Output, strings.Join(Outputs, ", "))
	}
	if c.Directory != "" && c.Namespace != "" {
		return errors.New("directory and namespace are mutually exclusive")
	}
	if c.DataThreshold < 0 {
		return fmt.Errorf("data_threshold must not be negative, got %d", c.DataThreshold)
	}
	for _, m := range c.Matches {
		if _, err := ParseMatch(m); err != nil {
			return err
		}
	}
	return nil
}

// ParseMatch splits a FIELD=value match and checks the field name.
func ParseMatch(s string) (sdjournal.Field, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return sdjournal.Field{}, fmt.Errorf("match %q: want FIELD=value", s)
	}
	if !sdjournal.ValidFieldName(name) {
		return sdjournal.Field{}, fmt.Errorf("match %q: %w", s, sdjournal.ErrInvalidField)
	}
	return sdjournal.Field{Name: name, Value: value}, nil
}

// Save writes the config as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
