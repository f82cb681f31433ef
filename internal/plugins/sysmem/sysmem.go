// Package sysmem reports system memory usage sampled by the monitor tool.
//
// MON/MEMS payloads look like
//
//	MemTotal: 3868.5MB MemAvailable: 2210.0MB Buffers: 12.0MB Cached: 980.1MB Shmem: 33.3MB
//
// Every sample becomes one CSV row (values in KiB). The plugin fails when
// available memory dropped below the min_available option (1GB by default).
package sysmem

import (
	"fmt"
	"strconv"
	"strings"

	"tracelyse/internal/config"
	"tracelyse/internal/plugin"
	"tracelyse/internal/plugin/csvout"
	"tracelyse/internal/report"
	"tracelyse/internal/trace"
)

// Name is the registered plugin name.
const Name = "sysmem"

// ReportFile is the CSV file written under the extract directory.
const ReportFile = "sysmem_report.csv"

// DefaultMinAvailable is the default min_available option.
const DefaultMinAvailable = "1GB"

// Columns of the CSV report.
var Columns = []string{"lifecycle", "time", "mem_total", "mem_available", "buffers", "cached", "shared"}

var fieldColumns = map[string]string{
	"MemTotal":     "mem_total",
	"MemAvailable": "mem_available",
	"Buffers":      "buffers",
	"Cached":       "cached",
	"Shmem":        "shared",
}

// Descriptor returns the plugin descriptor.
func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        Name,
		Description: "Report system memory information",
		Metadata:    report.Metadata{"unit": "KiB"},
		New:         New,
	}
}

// Plugin writes memory samples to CSV and tracks the lowest available memory.
type Plugin struct {
	*plugin.Callbacks
	csv          *csvout.Writer
	lifecycle    int
	samples      int
	minAvailable int64 // KiB
	threshold    int64 // KiB
}

// New creates the plugin. The min_available option accepts sizes such as
// "512MB" or "1GB".
func New(env plugin.Env) (plugin.Plugin, error) {
	limit, err := config.ParseBytes(env.Option("min_available", DefaultMinAvailable))
	if err != nil {
		return nil, fmt.Errorf("min_available: %w", err)
	}
	p := &Plugin{
		csv:       csvout.NewWriter(env.FS, env.Dir.ExtractDir(), csvout.File{Name: ReportFile, Columns: Columns}),
		lifecycle: -1,
		threshold: int64(limit / 1024),
	}
	p.Callbacks = plugin.NewCallbacks(plugin.On("MON", "MEMS", p.sample))
	return p, nil
}

// NewLifecycle tags the following samples with id.
func (p *Plugin) NewLifecycle(_ string, id int) error {
	p.lifecycle = id
	return nil
}

// EndLifecycle is a no-op; rows are flushed on Report.
func (p *Plugin) EndLifecycle(string, int) error { return nil }

func (p *Plugin) sample(rec *trace.Record) error {
	values, err := ParsePayload(rec.Payload)
	if err != nil {
		return err
	}
	if avail, ok := values["mem_available"]; ok {
		if p.samples == 0 || avail < p.minAvailable {
			p.minAvailable = avail
		}
		p.samples++
	}

	row := []string{strconv.Itoa(p.lifecycle), strconv.FormatFloat(rec.Tmsp, 'f', -1, 64)}
	for _, col := range Columns[2:] {
		if v, ok := values[col]; ok {
			row = append(row, strconv.FormatInt(v, 10))
		} else {
			row = append(row, "")
		}
	}
	return p.csv.WriteRow(row...)
}

// ParsePayload extracts the known memory fields of a MON/MEMS payload,
// keyed by CSV column, in KiB.
func ParsePayload(payload string) (map[string]int64, error) {
	values := make(map[string]int64)
	for part := range strings.SplitSeq(payload, "MB") {
		field, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		col, known := fieldColumns[strings.TrimSpace(field)]
		if !known {
			continue
		}
		mb, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", strings.TrimSpace(field), err)
		}
		values[col] = int64(mb * 1024)
	}
	return values, nil
}

// Report closes the CSV file and attaches it.
func (p *Plugin) Report(r *plugin.Reporter) error {
	if err := p.csv.Close(); err != nil {
		return err
	}
	switch {
	case p.samples == 0:
		r.AddResult(report.Result{State: report.StateSkipped, Message: "No memory samples found"})
	case p.minAvailable < p.threshold:
		r.AddResult(report.Result{
			State:   report.StateFailure,
			Message: fmt.Sprintf("Available memory dropped below %s", humanKiB(p.threshold)),
			Stdout:  fmt.Sprintf("minimum available memory: %d KiB", p.minAvailable),
		})
	default:
		r.AddResult(report.Result{Stdout: fmt.Sprintf("minimum available memory: %d KiB", p.minAvailable)})
	}
	r.AddAttachments(p.csv.Files()...)
	return nil
}

func humanKiB(kib int64) string {
	switch {
	case kib >= 1024*1024 && kib%(1024*1024) == 0:
		return fmt.Sprintf("%dGB", kib/(1024*1024))
	case kib >= 1024 && kib%1024 == 0:
		return fmt.Sprintf("%dMB", kib/1024)
	default:
		return fmt.Sprintf("%dKB", kib)
	}
}
