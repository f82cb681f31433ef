package plugin

import "tracelyse/internal/report"

// Reporter accumulates the results of one plugin. Results are append-only.
type Reporter struct {
	classname string
	testname  string
	metadata  report.Metadata
	results   []report.Result
}

// NewReporter creates a reporter that defaults results from d.
func NewReporter(d Descriptor) *Reporter {
	md := d.Metadata.Clone()
	if md == nil {
		md = report.Metadata{}
	}
	md["docstring"] = d.Description
	return &Reporter{
		classname: d.Name,
		testname:  d.Summary(),
		metadata:  md,
	}
}

// AddResult appends a result. Classname defaults to the plugin name, Testname
// to the first line of its description and Metadata to the plugin metadata.
func (r *Reporter) AddResult(res report.Result) {
	if res.Classname == "" {
		res.Classname = r.classname
	}
	if res.Testname == "" {
		res.Testname = r.testname
	}
	if res.Metadata == nil {
		res.Metadata = r.metadata.Clone()
	}
	r.results = append(r.results, res.WithDefaults())
}

// AddAttachments extends the attachments of the last result, adding a
// default result first if there is none.
func (r *Reporter) AddAttachments(names ...string) {
	if len(r.results) == 0 {
		r.AddResult(report.Result{})
	}
	last := &r.results[len(r.results)-1]
	last.Attachments = append(last.Attachments, names...)
}

// Results returns the accumulated results. The slice must not be modified.
func (r *Reporter) Results() []report.Result {
	return r.results
}
