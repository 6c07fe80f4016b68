// Copyright © 2024 The bpflint authors

// Package config loads bpflint settings from configuration files,
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/luthersystems/bpflint/diagnostic"
	"github.com/luthersystems/bpflint/lint"
)

// FileName is the base name of the configuration file, without extension.
const FileName = ".bpflint"

// EnvPrefix prefixes environment variables that override settings, such as
// BPFLINT_JOBS.
const EnvPrefix = "BPFLINT"

// MaxContext is the largest number of context lines accepted.
const MaxContext = 255

// Config holds the settings of a bpflint run.
type Config struct {
	// Disable lists lints that never run.
	Disable []string `mapstructure:"disable"`

	// Checks, when non-empty, lists the only lints that run.
	Checks []string `mapstructure:"checks"`

	// Severity overrides the severity of individual lints.
	Severity map[string]string `mapstructure:"severity"`

	// Context lines shown around each finding.  Context sets both Before
	// and After.
	Context int `mapstructure:"context"`
	Before  int `mapstructure:"before"`
	After   int `mapstructure:"after"`

	// Jobs is the number of files linted concurrently; 0 means one per CPU.
	Jobs int `mapstructure:"jobs"`

	// Timeout bounds the time spent on a single file; 0 means no limit.
	Timeout time.Duration `mapstructure:"timeout"`

	// Color is "auto", "always" or "never".
	Color string `mapstructure:"color"`
}

// New returns a viper instance that searches the working directory and the
// home directory for the configuration file and reads BPFLINT_*
// environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("color", "auto")
	v.SetConfigName(FileName)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the configuration file into v.  If file is empty the search
// paths of v are used and a missing file is not an error.
func Read(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if file == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks settings that do not depend on the set of lints.
func (c *Config) Validate() error {
	for name, n := range map[string]int{"context": c.Context, "before": c.Before, "after": c.After} {
		if n < 0 || n > MaxContext {
			return fmt.Errorf("invalid %s line count: %d (must be 0-%d)", name, n, MaxContext)
		}
	}
	if c.Jobs < 0 {
		return fmt.Errorf("invalid jobs: %d (must not be negative)", c.Jobs)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s (must not be negative)", c.Timeout)
	}
	if _, err := diagnostic.ParseColorMode(c.Color); err != nil {
		return err
	}
	return nil
}

// ContextLines returns the number of lines shown before and after each
// finding.
func (c *Config) ContextLines() (before, after int) {
	if c.Context > 0 {
		return c.Context, c.Context
	}
	return c.Before, c.After
}

// ColorMode returns the configured color mode.
func (c *Config) ColorMode() diagnostic.ColorMode {
	mode, _ := diagnostic.ParseColorMode(c.Color)
	return mode
}

// LintConfig converts the settings into an engine configuration.  Every
// lint named by the settings must be registered in reg.
func (c *Config) LintConfig(reg *lint.Registry) (*lint.Config, error) {
	lc := lint.NewConfig()
	known := func(setting, name string) error {
		if !reg.Has(name) {
			return fmt.Errorf("%s: unknown lint %q", setting, name)
		}
		return nil
	}
	for _, name := range c.Disable {
		if err := known("disable", name); err != nil {
			return nil, err
		}
		lc.Disable(name)
	}
	if len(c.Checks) > 0 {
		selected := make(map[string]bool)
		for _, name := range c.Checks {
			name = strings.TrimSpace(name)
			if err := known("checks", name); err != nil {
				return nil, err
			}
			selected[name] = true
		}
		for _, rule := range reg.Rules() {
			if !selected[rule.Name] {
				lc.Disable(rule.Name)
			}
		}
	}
	for name, s := range c.Severity {
		if err := known("severity", name); err != nil {
			return nil, err
		}
		sev, err := lint.ParseSeverity(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("severity of %s: %w", name, err)
		}
		lc.SetSeverity(name, sev)
	}
	return lc, nil
}
