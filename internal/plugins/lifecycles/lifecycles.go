// Package lifecycles summarizes every lifecycle found in the trace.
package lifecycles

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tracelyse/internal/plugin"
	"tracelyse/internal/plugin/csvout"
	"tracelyse/internal/report"
	"tracelyse/internal/trace"
)

// Name is the registered plugin name.
const Name = "lifecycles"

// SummaryFile is written once per lifecycle under Lifecycles/NN/.
const SummaryFile = "lifecycle.csv"

// Columns of the summary file.
var Columns = []string{"ecuid", "lifecycle", "first", "last", "duration_s", "records"}

// Descriptor returns the plugin descriptor. The plugin sees every record,
// so it only runs when selected.
func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        Name,
		Description: "Summarize lifecycles\nWrites first and last timestamps and the record count of every lifecycle.",
		Manual:      true,
		New:         New,
	}
}

// Plugin counts records per lifecycle and writes one summary file each.
type Plugin struct {
	*plugin.Callbacks
	csv     *csvout.LifecycleWriter
	records int
	lines   []string
}

// New creates the plugin.
func New(env plugin.Env) (plugin.Plugin, error) {
	p := &Plugin{
		csv: csvout.NewLifecycleWriter(env.FS, env.Dir.ExtractDir(), csvout.File{Name: SummaryFile, Columns: Columns}),
	}
	p.Callbacks = plugin.NewCallbacks(plugin.On("", "", p.count))
	return p, nil
}

func (p *Plugin) count(*trace.Record) error {
	p.records++
	return nil
}

// NewLifecycle opens the summary file set of lifecycle id.
func (p *Plugin) NewLifecycle(_ string, id int) error {
	p.records = 0
	return p.csv.Start(id)
}

// PrepareLifecycle writes the summary row of lc.
func (p *Plugin) PrepareLifecycle(lc *trace.Lifecycle) error {
	first, last := lc.First(), lc.Last()
	duration := last.Timestamp.Sub(first.Timestamp)
	p.lines = append(p.lines, fmt.Sprintf("lifecycle %d (%s): %d records, %s", lc.ID, lc.ECUID, p.records, duration))
	return p.csv.WriteRow(
		lc.ECUID,
		strconv.Itoa(lc.ID),
		first.Timestamp.Format(time.RFC3339Nano),
		last.Timestamp.Format(time.RFC3339Nano),
		strconv.FormatFloat(duration.Seconds(), 'f', 3, 64),
		strconv.Itoa(p.records),
	)
}

// EndLifecycle closes the summary file set.
func (p *Plugin) EndLifecycle(string, int) error {
	return p.csv.End()
}

// Report adds the lifecycle count and attaches the summary files.
func (p *Plugin) Report(r *plugin.Reporter) error {
	if len(p.lines) == 0 {
		r.AddResult(report.Result{State: report.StateSkipped, Message: "No lifecycles found"})
		return nil
	}
	r.AddResult(report.Result{
		Message: fmt.Sprintf("found %d lifecycles", len(p.lines)),
		Stdout:  strings.Join(p.lines, "\n"),
	})
	r.AddAttachments(p.csv.Files()...)
	return nil
}
