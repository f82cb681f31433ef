// Package daemon counts the log daemon's own messages.
package daemon

import (
	"fmt"

	"tracelyse/internal/plugin"
	"tracelyse/internal/report"
	"tracelyse/internal/trace"
)

// Name is the registered plugin name.
const Name = "daemon"

// Descriptor returns the plugin descriptor.
func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        Name,
		Description: "Count DLTD INTM messages",
		New:         New,
	}
}

// Plugin counts DLTD/INTM records. A trace without any is a failure.
type Plugin struct {
	*plugin.Callbacks
	matched int
}

// New creates the plugin.
func New(plugin.Env) (plugin.Plugin, error) {
	p := &Plugin{}
	p.Callbacks = plugin.NewCallbacks(plugin.On("DLTD", "INTM", p.count))
	return p, nil
}

func (p *Plugin) count(*trace.Record) error {
	p.matched++
	return nil
}

// Report adds one result.
func (p *Plugin) Report(r *plugin.Reporter) error {
	if p.matched > 0 {
		r.AddResult(report.Result{Stdout: fmt.Sprintf("found %d DLTD INTM messages", p.matched)})
		return nil
	}
	r.AddResult(report.Result{
		State:   report.StateFailure,
		Message: "could not find any DLTD INTM messages in the trace",
	})
	return nil
}
