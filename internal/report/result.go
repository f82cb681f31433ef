// Package report holds test results produced by plugins and the analyser,
// accumulates them into a report and renders the report as xUnit XML.
package report

import "time"

// State is the outcome of a single result.
type State string

const (
	StateSuccess State = "success"
	StateError   State = "error"
	StateFailure State = "failure"
	StateSkipped State = "skipped"
)

// States lists all states in report order.
var States = []State{StateSuccess, StateError, StateFailure, StateSkipped}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateSuccess, StateError, StateFailure, StateSkipped:
		return true
	}
	return false
}

// Passed reports whether s counts as a passing outcome.
func (s State) Passed() bool {
	return s == StateSuccess || s == StateSkipped
}

// Metadata is an arbitrary nested key/value mapping attached to a result.
// Nested maps must be of type Metadata or map[string]any; everything else is
// rendered with fmt.
type Metadata map[string]any

// Clone returns a deep copy of m; nested maps are copied recursively.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		switch nested := v.(type) {
		case Metadata:
			out[k] = nested.Clone()
		case map[string]any:
			out[k] = Metadata(nested).Clone()
		default:
			out[k] = v
		}
	}
	return out
}

// Result is one testcase of the report.
type Result struct {
	Classname   string
	Testname    string
	State       State
	Stdout      string
	Stderr      string
	Message     string
	Attachments []string
	Metadata    Metadata
	Timestamp   time.Time
}

// Clone returns a copy of r that shares nothing mutable with it.
func (r Result) Clone() Result {
	r.Attachments = append([]string(nil), r.Attachments...)
	r.Metadata = r.Metadata.Clone()
	return r
}

// WithDefaults fills unset fields the way every producer expects them.
func (r Result) WithDefaults() Result {
	if r.Classname == "" {
		r.Classname = "Unknown"
	}
	if r.Testname == "" {
		r.Testname = "Unknown"
	}
	if r.State == "" {
		r.State = StateSuccess
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return r
}
