package config

import (
	"errors"
	"io/fs"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.XUnit != "tracelyse_results.xml" || cfg.TestSuite != "tracelyse" || cfg.OutputDir != "." {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate defaults: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	data := `
plugins: [syserrors, daemon]
exclude: [sysmem]
include_manual: true
plugin_options:
  sysmem:
    min_available: 512MB
xunit: out.xml
testsuite: nightly
hardware:
  board: rev-c
output_dir: results
recursive: true
sort: true
log_level: debug
log_levels:
  source: warn
log_format: json
progress_interval: 30s
metrics_addr: ":9090"
`
	if err := afero.WriteFile(fsys, "tracelyse.yaml", []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(fsys, "tracelyse.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(cfg.Plugins, []string{"syserrors", "daemon"}) || !slices.Equal(cfg.Exclude, []string{"sysmem"}) {
		t.Errorf("plugins = %v exclude = %v", cfg.Plugins, cfg.Exclude)
	}
	if !cfg.IncludeManual || !cfg.Recursive || !cfg.Sort {
		t.Errorf("switches = %+v", cfg)
	}
	if cfg.PluginOptions["sysmem"]["min_available"] != "512MB" {
		t.Errorf("plugin_options = %v", cfg.PluginOptions)
	}
	if cfg.XUnit != "out.xml" || cfg.TestSuite != "nightly" || cfg.OutputDir != "results" {
		t.Errorf("report settings = %+v", cfg)
	}
	if cfg.Hardware["board"] != "rev-c" {
		t.Errorf("hardware = %v", cfg.Hardware)
	}
	if cfg.LogLevel != "debug" || cfg.LogLevels["source"] != "warn" || cfg.LogFormat != "json" {
		t.Errorf("logging = %+v", cfg)
	}
	if cfg.ProgressInterval != 30*time.Second || cfg.MetricsAddr != ":9090" {
		t.Errorf("progress = %v metrics = %q", cfg.ProgressInterval, cfg.MetricsAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "c.yaml", []byte("sort: true\n"), 0o644)
	cfg, err := Load(fsys, "c.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Sort || cfg.XUnit != "tracelyse_results.xml" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "unknown.yaml", []byte("plugin: [x]\n"), 0o644)
	_ = afero.WriteFile(fsys, "broken.yaml", []byte("plugins: [x\n"), 0o644)
	_ = afero.WriteFile(fsys, "duration.yaml", []byte("progress_interval: soon\n"), 0o644)

	if _, err := Load(fsys, "missing.yaml"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing: err = %v", err)
	}
	for _, name := range []string{"unknown.yaml", "broken.yaml", "duration.yaml"} {
		if _, err := Load(fsys, name); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		value   string
		initial bool
		want    bool
		wantErr bool
	}{
		{"", true, true, false},
		{"1", false, true, false},
		{"TRUE", false, true, false},
		{"yes", false, true, false},
		{"no", true, false, false},
		{"0", true, false, false},
		{"maybe", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := Config{IncludeManual: tt.initial}
			err := cfg.ApplyEnv(func(key string) string {
				if key == EnvAllIncludesManual {
					return tt.value
				}
				return ""
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if cfg.IncludeManual != tt.want {
				t.Errorf("IncludeManual = %v, want %v", cfg.IncludeManual, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"component level", func(c *Config) { c.LogLevels = map[string]string{"source": "x"} }, "log_levels.source"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"empty plugin", func(c *Config) { c.Plugins = []string{"daemon", " "} }, "empty plugin name"},
		{"xunit", func(c *Config) { c.XUnit = "" }, "xunit"},
		{"testsuite", func(c *Config) { c.TestSuite = "" }, "testsuite"},
		{"progress", func(c *Config) { c.ProgressInterval = -time.Second }, "progress_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected uint64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KB", 1024},
		{"64mb", 64 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{" 100 MB ", 100 * 1024 * 1024},
		{"17179869183GB", 17179869183 * 1024 * 1024 * 1024},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseBytes(tc.input)
			if err != nil {
				t.Fatalf("ParseBytes(%q) error: %v", tc.input, err)
			}
			if got != tc.expected {
				t.Errorf("ParseBytes(%q) = %d, want %d", tc.input, got, tc.expected)
			}
		})
	}
	for _, input := range []string{"", "abc", "-100", "100TB", "17179869184GB", "99999999999GB", "18446744073709551615KB"} {
		if _, err := ParseBytes(input); err == nil {
			t.Errorf("ParseBytes(%q) expected error", input)
		}
	}
}
