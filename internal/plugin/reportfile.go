package plugin

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/afero"

	"tracelyse/internal/logging"
)

// ReportFileName derives the text report file name of a plugin: every
// upper-case letter becomes '_' plus its lower-case form, leading and
// trailing underscores are dropped and ".txt" is appended.
func ReportFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_") + ".txt"
}

// ReportWriter writes a plugin's free-form text report to the extract
// directory.
type ReportWriter struct {
	fs     afero.Fs
	dir    string
	name   string
	logger *slog.Logger
}

// NewReportWriter creates a writer for the report file of the named plugin.
func NewReportWriter(env Env, plugin string) *ReportWriter {
	return &ReportWriter{
		fs:     env.FS,
		dir:    env.Dir.ExtractDir(),
		name:   ReportFileName(plugin),
		logger: logging.Default(env.Logger),
	}
}

// Name returns the report file name relative to the extract directory.
func (w *ReportWriter) Name() string { return w.name }

// Write calls prepare and writes the text it returns. An empty text means
// there is no report: nothing is written and "" is returned. Otherwise the
// file name is returned, ready for Reporter.AddAttachments.
func (w *ReportWriter) Write(prepare func() (string, error)) (string, error) {
	text, err := prepare()
	if err != nil {
		return "", fmt.Errorf("prepare report: %w", err)
	}
	if text == "" {
		return "", nil
	}
	if err := w.fs.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, w.name)
	if err := afero.WriteFile(w.fs, path, []byte(text), 0o640); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	w.logger.Info("report file written", "path", path)
	return w.name, nil
}
