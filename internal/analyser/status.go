package analyser

import "strings"

// RunStatus is the run-result bitmask returned as the process exit status.
type RunStatus int

const (
	// StatusPluginFailures is set when a plugin reported a result that is
	// neither success nor skipped.
	StatusPluginFailures RunStatus = 1 << iota
	// StatusPluginExceptions is set when a plugin failed to load or any
	// call into it failed.
	StatusPluginExceptions
	// StatusFileErrors is set when a trace file could not be processed.
	StatusFileErrors
)

// OK reports whether no bit is set.
func (s RunStatus) OK() bool { return s == 0 }

func (s RunStatus) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusPluginFailures != 0 {
		parts = append(parts, "plugin failures")
	}
	if s&StatusPluginExceptions != 0 {
		parts = append(parts, "plugin exceptions")
	}
	if s&StatusFileErrors != 0 {
		parts = append(parts, "file errors")
	}
	return strings.Join(parts, ", ")
}
