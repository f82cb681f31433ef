// Package config loads the tracelyse configuration file.
//
// The file is YAML. Every key is optional; command-line flags override the
// file and the TRACELYSE_ALL_INCLUDES_MANUAL environment variable overrides
// include_manual. Load does not validate semantics beyond decoding; call
// Validate once flags and environment have been applied.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"tracelyse/internal/logging"
)

// EnvAllIncludesManual makes the default plugin selection include manual
// plugins when set to 1, true or yes.
const EnvAllIncludesManual = "TRACELYSE_ALL_INCLUDES_MANUAL"

// Config is the decoded configuration file.
type Config struct {
	// Plugins is an explicit plugin selection, in load order. Empty means
	// all non-manual plugins.
	Plugins []string `yaml:"plugins"`
	// Exclude removes plugins from the selection.
	Exclude []string `yaml:"exclude"`
	// IncludeManual adds manual plugins to the default selection.
	IncludeManual bool `yaml:"include_manual"`
	// PluginOptions are handed to plugin constructors, keyed by plugin name.
	PluginOptions map[string]map[string]string `yaml:"plugin_options"`

	// XUnit is the report file name, relative to OutputDir unless absolute.
	XUnit string `yaml:"xunit"`
	// TestSuite is the xUnit testsuite name.
	TestSuite string `yaml:"testsuite"`
	// Hardware and Software are rendered as testsuite properties.
	Hardware map[string]string `yaml:"hardware"`
	Software map[string]string `yaml:"software"`
	// OutputDir receives the report and plugin output files.
	OutputDir string `yaml:"output_dir"`

	Recursive bool `yaml:"recursive"`
	Sort      bool `yaml:"sort"`

	LogLevel  string            `yaml:"log_level"`
	LogLevels map[string]string `yaml:"log_levels"`
	LogFormat string            `yaml:"log_format"`

	// ProgressInterval enables a progress log line during live runs.
	ProgressInterval time.Duration `yaml:"progress_interval"`
	// MetricsAddr serves Prometheus metrics when set (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		XUnit:     "tracelyse_results.xml",
		TestSuite: "tracelyse",
		OutputDir: ".",
		LogLevel:  "info",
	}
}

// Load reads the configuration file at path from fsys on top of Default.
// An empty path returns Default.
func Load(fsys afero.Fs, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Decode decodes YAML into cfg. Unknown keys are rejected. An empty
// document leaves cfg unchanged.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies environment overrides. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvAllIncludesManual)); v != "" {
		on, err := parseSwitch(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAllIncludesManual, err)
		}
		c.IncludeManual = on
	}
	return nil
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q (want 1, true, yes, 0, false or no)", v)
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	for component, lvl := range c.LogLevels {
		if _, err := logging.ParseLevel(lvl); err != nil {
			errs = append(errs, fmt.Errorf("log_levels.%s: %w", component, err))
		}
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown format %q (want text or json)", c.LogFormat))
	}
	for _, name := range c.Plugins {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("plugins: empty plugin name"))
		}
	}
	if c.XUnit == "" {
		errs = append(errs, errors.New("xunit: report file name is required"))
	}
	if c.TestSuite == "" {
		errs = append(errs, errors.New("testsuite: name is required"))
	}
	if c.ProgressInterval < 0 {
		errs = append(errs, fmt.Errorf("progress_interval: must not be negative, got %s", c.ProgressInterval))
	}
	return errors.Join(errs...)
}

// ParseBytes parses a byte size string with optional suffix (B, KB, MB, GB).
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	s = strings.ToUpper(s)

	var multiplier uint64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	n, err := strconv.ParseUint(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint64/multiplier {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return n * multiplier, nil
}
