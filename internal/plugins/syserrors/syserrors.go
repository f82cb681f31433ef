// Package syserrors reports errors detected by the system journal.
package syserrors

import (
	"fmt"
	"regexp"
	"strings"

	"tracelyse/internal/plugin"
	"tracelyse/internal/report"
	"tracelyse/internal/trace"
)

// Name is the registered plugin name.
const Name = "syserrors"

// Descriptor returns the plugin descriptor.
func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        Name,
		Description: "Errors found by SYS|JOUR\nSearches the system journal for programs failing to load shared libraries.",
		New:         New,
	}
}

// rule describes one kind of error and how to find it in a payload. The
// pattern names the groups that make up the error detail.
type rule struct {
	apid, ctid string
	kind       string
	re         *regexp.Regexp
	detail     func(m map[string]string) string
}

var sharedLibraryRE = regexp.MustCompile(
	`\[[0-9]*\]: (?P<program>\S*?): error while loading shared libraries: (?P<library>\S*?): cannot open shared object file`,
)

func sharedLibraryDetail(m map[string]string) string {
	return fmt.Sprintf("%s failed to load %s", m["program"], m["library"])
}

var rules = []rule{
	{apid: "SYS", ctid: "JOUR", kind: "error while loading shared libraries", re: sharedLibraryRE, detail: sharedLibraryDetail},
}

// Plugin collects distinct journal errors by kind.
type Plugin struct {
	*plugin.Callbacks
	out    *plugin.ReportWriter
	kinds  []string
	errors map[string][]string
	seen   map[string]bool
}

// New creates the plugin.
func New(env plugin.Env) (plugin.Plugin, error) {
	p := &Plugin{
		out:    plugin.NewReportWriter(env, Name),
		errors: make(map[string][]string),
		seen:   make(map[string]bool),
	}
	cbs := make([]plugin.Callback, 0, len(rules))
	for _, r := range rules {
		cbs = append(cbs, plugin.OnTemplate(r.apid, r.ctid, r, p.match))
	}
	p.Callbacks = plugin.NewCallbacks(cbs...)
	return p, nil
}

func (p *Plugin) match(rec *trace.Record, _, _ string, r rule) error {
	m := r.re.FindStringSubmatch(rec.Payload)
	if m == nil {
		return nil
	}
	groups := make(map[string]string)
	for i, name := range r.re.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}
	p.add(r.kind, r.detail(groups))
	return nil
}

func (p *Plugin) add(kind, detail string) {
	key := kind + "\x00" + detail
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	if _, ok := p.errors[kind]; !ok {
		p.kinds = append(p.kinds, kind)
	}
	p.errors[kind] = append(p.errors[kind], detail)
}

// Report adds a failure listing every error found, or a success. The error
// list is also written to the plugin's report file and attached.
func (p *Plugin) Report(r *plugin.Reporter) error {
	if len(p.kinds) == 0 {
		r.AddResult(report.Result{Message: "No errors found"})
		return nil
	}
	sections := make([]string, 0, len(p.kinds))
	for _, kind := range p.kinds {
		sections = append(sections, kind+":\n"+strings.Join(p.errors[kind], "\n"))
	}
	stdout := strings.Join(sections, "\n---\n")
	r.AddResult(report.Result{
		State:   report.StateFailure,
		Message: strings.Join(p.kinds, "\n"),
		Stdout:  stdout,
	})
	name, err := p.out.Write(func() (string, error) { return stdout + "\n", nil })
	if err != nil {
		return err
	}
	r.AddAttachments(name)
	return nil
}
