// Package config loads the colorcat configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the colorcat.yaml configuration. Grammars and Themes
// are searched directories; Walk descends into subdirectories of Grammars.
type Config struct {
	Grammars []string `yaml:"grammars"`
	Themes   []string `yaml:"themes"`
	Theme    string   `yaml:"theme"`
	TieBreak string   `yaml:"tie_break"`
	Walk     bool     `yaml:"walk"`
	Verify   bool     `yaml:"verify"`
	LogLevel string   `yaml:"log_level"`
}

const (
	grammarDir = "share/colorcat/grammars"
	themeDir   = "share/colorcat/themes"
)

// Default returns a Config searching the system and user share directories.
func Default() *Config {
	cfg := &Config{
		Grammars: []string{filepath.Join("/usr", grammarDir)},
		Themes:   []string{filepath.Join("/usr", themeDir)},
		Theme:    "default",
		TieBreak: "declaration",
		LogLevel: "warn",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Grammars = append(cfg.Grammars, filepath.Join(home, ".local", grammarDir))
		cfg.Themes = append(cfg.Themes, filepath.Join(home, ".local", themeDir))
	}
	return cfg
}

// DefaultPath is the user configuration file, which may not exist.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "colorcat", "colorcat.yaml")
}

// Load reads a configuration file from the given path.
// Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Theme == "" {
		cfg.Theme = "default"
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = "declaration"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}

	return cfg, nil
}

// ThemePath returns the first existing <name>.json in the theme directories.
func (c *Config) ThemePath(name string) (string, bool) {
	for _, dir := range c.Themes {
		pathname := filepath.Join(dir, name+".json")
		if _, err := os.Stat(pathname); err == nil {
			return pathname, true
		}
	}
	return "", false
}
