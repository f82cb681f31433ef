// Package analyser is the dispatch and lifecycle engine.
//
// The Analyser pulls records one at a time from a trace.Source, segments
// the stream into lifecycles, routes every record to the interested
// plugins through the Collector and, at the end of the run, assembles the
// plugins' results and per-file results into a report.
//
// Records are processed strictly sequentially on the goroutine calling
// Run; plugins are never invoked concurrently. Only Stats may be called
// from other goroutines.
//
// Per record, in order:
//
//  1. A bufferable record is held back while the buffer has room.
//  2. A boundary record ends the active lifecycle and starts the next one.
//  3. Without an active lifecycle, lifecycle 0 starts at this record.
//  4. Held-back records are dispatched in arrival order.
//  5. The record is dispatched to every interested plugin.
//
// A bufferable record arriving while the buffer is full is processed like
// any other record. The boundary record is delivered to plugins in the
// context of the lifecycle it started.
package analyser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"tracelyse/internal/logging"
	"tracelyse/internal/metrics"
	"tracelyse/internal/plugin"
	"tracelyse/internal/report"
	"tracelyse/internal/trace"
)

// MaxBufferSize is the number of records held back before a lifecycle exists.
const MaxBufferSize = 50

var (
	bufferablePair    = trace.Pair{APID: "DA1", CTID: "DC1"}
	bufferablePayload = "[connection_info ok] connected \x00\x00\x00\x00"
	bufferableECUID   = "XORA"

	// BoundaryPair classifies the record that marks a lifecycle start.
	BoundaryPair    = trace.Pair{APID: "DLTD", CTID: "INTM"}
	boundaryPayload = "Daemon launched. Starting to output traces..."
)

// IsBufferable reports whether rec may arrive before its lifecycle's boundary.
func IsBufferable(rec *trace.Record) bool {
	return (rec.APID == bufferablePair.APID && rec.CTID == bufferablePair.CTID && rec.Payload == bufferablePayload) ||
		rec.ECUID == bufferableECUID
}

// IsBoundary reports whether rec marks the start of a lifecycle.
func IsBoundary(rec *trace.Record) bool {
	return rec.APID == BoundaryPair.APID && rec.CTID == BoundaryPair.CTID && rec.Payload == boundaryPayload
}

// Config holds the analyser's collaborators.
type Config struct {
	// Logger for the analyser. If nil, logging is discarded.
	Logger *slog.Logger
	// Source decodes trace files.
	Source trace.Source
	// Metrics is optional.
	Metrics *metrics.Engine
	// Summary receives one human-readable line per plugin and per file at
	// report time. If nil, the lines are discarded.
	Summary io.Writer
	// Report configures the report produced by Run.
	Report report.Config
	// PluginOptions are passed to plugin constructors by plugin name.
	PluginOptions map[string]map[string]string
}

// Options control one run.
type Options struct {
	Sort bool
	Live bool
}

// Stats is a snapshot of the run counters.
type Stats struct {
	Records    int64
	Buffered   int64
	Overflowed int64
	Lifecycles int64
	// Lifecycle is the id of the active lifecycle, or -1.
	Lifecycle int64
}

type counters struct {
	records    atomic.Int64
	buffered   atomic.Int64
	overflowed atomic.Int64
	lifecycles atomic.Int64
	lifecycle  atomic.Int64
}

// Outcome is the result of a run.
type Outcome struct {
	Report *report.Report
	Status RunStatus
	Stats  Stats
}

// Analyser is the dispatch engine. An Analyser runs once.
type Analyser struct {
	logger  *slog.Logger
	source  trace.Source
	metrics *metrics.Engine
	summary io.Writer
	report  report.Config
	options map[string]map[string]string

	instances   []*plugin.Instance
	loadResults []report.Result
	collector   *Collector
	ran         bool

	stats counters

	// Engine state, owned by the goroutine calling Run.
	lifecycle   *trace.Lifecycle
	lifecycleID int
	buffer      []*trace.Record
}

// New creates an analyser. Plugins are added with Load or Use.
func New(cfg Config) *Analyser {
	summary := cfg.Summary
	if summary == nil {
		summary = io.Discard
	}
	a := &Analyser{
		logger:  logging.Default(cfg.Logger).With("component", "analyser"),
		source:  cfg.Source,
		metrics: cfg.Metrics,
		summary: summary,
		report:  cfg.Report,
		options: cfg.PluginOptions,
		buffer:  make([]*trace.Record, 0, MaxBufferSize),
	}
	a.stats.lifecycle.Store(-1)
	return a
}

// Load constructs the described plugins in order and builds the routing
// table. A plugin whose constructor fails is skipped and reported as an
// error result. An invalid filter is a configuration error.
func (a *Analyser) Load(descs []plugin.Descriptor, env plugin.Env) error {
	instances := make([]*plugin.Instance, 0, len(descs))
	for _, d := range descs {
		penv := env
		penv.Options = a.options[d.Name]
		inst, err := plugin.Load(d, penv)
		if err != nil {
			a.logger.Error("plugin load failed", "plugin", d.Name, "error", err)
			a.metrics.PluginError(d.Name, string(plugin.ActionLoad))
			a.loadResults = append(a.loadResults, report.Result{
				Classname: d.Name,
				Testname:  "Plugin loading",
				State:     report.StateError,
				Message:   "Plugin could not be loaded",
				Stdout:    err.Error(),
			}.WithDefaults())
			continue
		}
		a.logger.Info("plugin loaded", "plugin", d.Name, "filter", inst.Filter().String())
		instances = append(instances, inst)
	}
	return a.Use(instances...)
}

// Use installs already loaded instances and builds the routing table.
func (a *Analyser) Use(instances ...*plugin.Instance) error {
	c, err := NewCollector(instances, a.logger)
	if err != nil {
		return err
	}
	a.instances = instances
	a.collector = c
	return nil
}

// Instances returns the loaded plugins in load order.
func (a *Analyser) Instances() []*plugin.Instance {
	return a.instances
}

// Filters returns the coarse pre-filter passed to the source: the union of
// the plugins' pairs plus the boundary pair, or nil if any plugin is greedy.
func (a *Analyser) Filters() []trace.Pair {
	if a.collector == nil {
		return nil
	}
	filters := a.collector.Filters()
	if filters != nil && !slices.Contains(filters, BoundaryPair) {
		filters = append(filters, BoundaryPair)
	}
	return filters
}

// ShowPlugins writes the name and summary of every loaded plugin.
func (a *Analyser) ShowPlugins(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Available plugins:"); err != nil {
		return err
	}
	for _, inst := range a.instances {
		if _, err := fmt.Fprintf(w, " - %s (%s)\n", inst.Name(), inst.Descriptor().Summary()); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the run counters. Safe for concurrent use.
func (a *Analyser) Stats() Stats {
	return Stats{
		Records:    a.stats.records.Load(),
		Buffered:   a.stats.buffered.Load(),
		Overflowed: a.stats.overflowed.Load(),
		Lifecycles: a.stats.lifecycles.Load(),
		Lifecycle:  a.stats.lifecycle.Load(),
	}
}

// LogProgress logs the current run counters. Safe to call from another
// goroutine while Run is active.
func (a *Analyser) LogProgress() {
	st := a.Stats()
	a.logger.Info("progress",
		"records", st.Records,
		"buffered", st.Buffered,
		"lifecycles", st.Lifecycles,
		"lifecycle", st.Lifecycle,
	)
}

// Run processes every path in order and returns the assembled report.
// A failing path is recorded and processing continues with the next one.
// When ctx is cancelled the source ends its sequence, the active lifecycle
// is finalized as at a normal end of stream and the remaining paths are
// reported as skipped. Errors are returned only for misuse.
func (a *Analyser) Run(ctx context.Context, paths []string, opts Options) (Outcome, error) {
	if a.collector == nil {
		return Outcome{}, errors.New("analyser: no plugins loaded")
	}
	if a.source == nil {
		return Outcome{}, errors.New("analyser: no trace source")
	}
	if a.ran {
		return Outcome{}, errors.New("analyser: already ran")
	}
	a.ran = true

	start := time.Now()
	readOpts := trace.ReadOptions{
		Filters: a.Filters(),
		Sort:    opts.Sort,
		Live:    opts.Live,
	}
	if readOpts.Filters == nil {
		a.logger.Debug("pre-filter disabled: a plugin requires all records")
	}

	files := make([]fileOutcome, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			files = append(files, fileOutcome{path: path, skipped: true})
			continue
		}
		a.logger.Info("reading trace file", "path", path)
		if err := a.processFile(ctx, path, readOpts); err != nil {
			a.logger.Error("trace file failed", "path", path, "error", err)
			files = append(files, fileOutcome{path: path, err: err})
			continue
		}
		files = append(files, fileOutcome{path: path})
	}
	if ctx.Err() != nil {
		a.logger.Info("run cancelled, finalizing", "records", a.stats.records.Load())
	}
	a.finish()

	a.logger.Info("generating reports")
	outcome := a.generateReports(files)
	outcome.Stats = a.Stats()
	a.metrics.RunFinished(int(outcome.Status), time.Since(start))
	a.logger.Info("done", "status", outcome.Status.String(), "records", outcome.Stats.Records, "lifecycles", outcome.Stats.Lifecycles)
	return outcome, nil
}

func (a *Analyser) processFile(ctx context.Context, path string, opts trace.ReadOptions) error {
	for rec, err := range a.source.Records(ctx, path, opts) {
		if err != nil {
			return err
		}
		a.process(rec)
	}
	return nil
}

// process runs one record through the state machine.
func (a *Analyser) process(rec *trace.Record) {
	a.stats.records.Add(1)
	a.metrics.RecordPulled()

	if IsBufferable(rec) {
		if len(a.buffer) < MaxBufferSize {
			a.buffer = append(a.buffer, rec)
			a.stats.buffered.Add(1)
			a.metrics.RecordBuffered()
			return
		}
		a.stats.overflowed.Add(1)
		a.metrics.BufferOverflow()
	}

	if IsBoundary(rec) {
		if a.lifecycle != nil {
			a.endLifecycle()
		}
		a.lifecycleID++
		a.startLifecycle(rec)
	}

	if a.lifecycle == nil {
		a.startLifecycle(rec)
	}

	a.flush()
	a.dispatch(rec)
}

// finish finalizes the run after the last record.
func (a *Analyser) finish() {
	if a.lifecycle == nil && len(a.buffer) > 0 {
		a.startLifecycle(a.buffer[0])
	}
	if a.lifecycle == nil {
		return
	}
	a.flush()
	a.endLifecycle()
}

func (a *Analyser) startLifecycle(first *trace.Record) {
	lc := trace.NewLifecycle(first.ECUID, a.lifecycleID, first)
	a.lifecycle = lc
	a.stats.lifecycles.Add(1)
	a.stats.lifecycle.Store(int64(lc.ID))
	a.metrics.LifecycleStarted()
	a.logger.Info("starting lifecycle", "lifecycle", lc.ID, "ecu", lc.ECUID)

	for _, inst := range a.instances {
		if err := inst.NewLifecycle(lc.ECUID, lc.ID); err != nil {
			a.metrics.PluginError(inst.Name(), string(plugin.ActionNewLifecycle))
		}
	}
}

// endLifecycle runs the two end-of-lifecycle passes: every plugin prepares
// before any plugin ends.
func (a *Analyser) endLifecycle() {
	lc := a.lifecycle
	a.logger.Info("ending lifecycle", "lifecycle", lc.ID, "ecu", lc.ECUID)

	for _, inst := range a.instances {
		if err := inst.PrepareLifecycle(lc); err != nil {
			a.metrics.PluginError(inst.Name(), string(plugin.ActionPrepareLifecycle))
		}
	}
	for _, inst := range a.instances {
		if err := inst.EndLifecycle(lc.ECUID, lc.ID); err != nil {
			a.metrics.PluginError(inst.Name(), string(plugin.ActionEndLifecycle))
		}
	}
	a.lifecycle = nil
	a.stats.lifecycle.Store(-1)
}

// flush dispatches held-back records in arrival order.
func (a *Analyser) flush() {
	if len(a.buffer) == 0 {
		return
	}
	for _, rec := range a.buffer {
		a.dispatch(rec)
	}
	clear(a.buffer)
	a.buffer = a.buffer[:0]
}

func (a *Analyser) dispatch(rec *trace.Record) {
	for inst := range a.collector.Lookup(rec.APID, rec.CTID).All() {
		if err := inst.Handle(rec); err != nil {
			a.metrics.PluginError(inst.Name(), string(plugin.ActionHandle))
		}
	}
	a.lifecycle.SetLast(rec)
}
