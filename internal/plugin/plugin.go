// Package plugin defines the contract between the analyser and analysis
// plugins, the registry plugins are selected from, and the Instance wrapper
// that isolates every call into a plugin.
//
// A plugin declares which records it wants through its Filter, receives
// matching records through Handle and contributes results to the report
// through Report. Plugins that care about lifecycle boundaries additionally
// implement LifecycleHandler and, optionally, LifecyclePreparer.
//
// Plugins never see each other. An error returned or a panic raised by a
// plugin is recorded against that plugin only; the run continues.
package plugin

import (
	"log/slog"

	"github.com/spf13/afero"

	"tracelyse/internal/outdir"
	"tracelyse/internal/trace"
)

// Plugin is the behavior every analysis plugin provides.
type Plugin interface {
	// Filter declares the records the plugin wants. It is called once at load time.
	Filter() Filter
	// Handle processes one record. The record must not be modified or retained
	// past the end of the run.
	Handle(rec *trace.Record) error
	// Report contributes the plugin's results after the last lifecycle ended.
	Report(r *Reporter) error
}

// LifecycleHandler is implemented by plugins that track lifecycles.
type LifecycleHandler interface {
	NewLifecycle(ecuID string, id int) error
	EndLifecycle(ecuID string, id int) error
}

// LifecyclePreparer is implemented by plugins that need the finished
// lifecycle, including its first and last record, before any plugin sees
// EndLifecycle.
type LifecyclePreparer interface {
	PrepareLifecycle(lc *trace.Lifecycle) error
}

// Env carries what a plugin constructor may use.
type Env struct {
	// Logger is already scoped to the plugin. Never nil.
	Logger *slog.Logger
	// FS is the filesystem plugins write their output to. Never nil.
	FS afero.Fs
	// Dir is the output directory layout.
	Dir outdir.Dir
	// Options are the configured settings of this plugin. May be nil.
	Options map[string]string
}

// Option returns the named option, or def when it is not set.
func (e Env) Option(key, def string) string {
	if v, ok := e.Options[key]; ok && v != "" {
		return v
	}
	return def
}
