package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"tracelyse/internal/logging"
)

// Summary counts the results of a report by state.
type Summary struct {
	Tests     int
	Successes int
	Errors    int
	Failures  int
	Skipped   int
}

// Count returns the number of results in state s.
func (s Summary) Count(state State) int {
	switch state {
	case StateSuccess:
		return s.Successes
	case StateError:
		return s.Errors
	case StateFailure:
		return s.Failures
	case StateSkipped:
		return s.Skipped
	}
	return 0
}

// Passed reports whether no result errored or failed.
func (s Summary) Passed() bool {
	return s.Errors == 0 && s.Failures == 0
}

// Summarize counts results by state. Unknown states count as errors, the
// same way they are rendered.
func Summarize(results []Result) Summary {
	s := Summary{Tests: len(results)}
	for _, r := range results {
		switch r.State {
		case StateSuccess:
			s.Successes++
		case StateFailure:
			s.Failures++
		case StateSkipped:
			s.Skipped++
		default:
			s.Errors++
		}
	}
	return s
}

// Config describes the test suite a report renders to.
type Config struct {
	Name     string // testsuite name
	ID       string // optional run identifier
	Hostname string // defaults to os.Hostname()
	Package  string
	Hardware map[string]string
	Software map[string]string
	Logger   *slog.Logger
}

// Report accumulates results in the order they are added.
// Results may be added at any time before rendering.
type Report struct {
	cfg     Config
	logger  *slog.Logger
	results []Result
}

// New creates an empty report.
func New(cfg Config) *Report {
	if cfg.Name == "" {
		cfg.Name = "tracelyse"
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	return &Report{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "report"),
	}
}

// Name returns the test suite name.
func (r *Report) Name() string { return r.cfg.Name }

// Add appends results to the report.
func (r *Report) Add(results ...Result) {
	for _, res := range results {
		r.results = append(r.results, res.WithDefaults())
	}
}

// Results returns the accumulated results. The slice must not be modified.
func (r *Report) Results() []Result {
	return r.results
}

// Summary counts the accumulated results by state.
func (r *Report) Summary() Summary {
	return Summarize(r.results)
}

// WriteFile renders the report as xUnit XML to path on fs, creating parent
// directories as needed. An empty path is a no-op.
func (r *Report) WriteFile(fs afero.Fs, path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := r.WriteXUnit(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	r.logger.Info("report written", "path", path, "tests", len(r.results))
	return nil
}
