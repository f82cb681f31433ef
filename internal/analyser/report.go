package analyser

import (
	"fmt"
	"strings"

	"tracelyse/internal/report"
)

const (
	fileClassname = "Analyser"
	fileTestname  = "File Sanity Checks During Execution"
	fileParsedOK  = "File Parsed Successfully"
)

type fileOutcome struct {
	path    string
	err     error
	skipped bool
}

// generateReports asks every plugin for its results, adds one result per
// trace file and computes the run status.
func (a *Analyser) generateReports(files []fileOutcome) Outcome {
	rep := report.New(a.report)
	var status RunStatus

	if len(a.loadResults) > 0 {
		rep.Add(a.loadResults...)
		status |= StatusPluginExceptions
	}

	for _, inst := range a.instances {
		results, clean := inst.Report()
		if !clean {
			status |= StatusPluginExceptions
		}
		for action, d := range inst.Timings() {
			a.metrics.PluginTiming(inst.Name(), string(action), d)
		}

		summary := report.Summarize(results)
		var line strings.Builder
		fmt.Fprintf(&line, "Report for %s ... ", inst.Name())
		for _, state := range report.States {
			fmt.Fprintf(&line, "%d %s ", summary.Count(state), state)
		}
		if summary.Passed() {
			line.WriteString("= passed.")
		} else {
			line.WriteString("= failed.")
			status |= StatusPluginFailures
			for _, res := range results {
				if res.State != report.StateSuccess {
					a.logger.Debug("non-passing result", "plugin", inst.Name(), "testname", res.Testname,
						"state", string(res.State), "message", res.Message, "stdout", res.Stdout)
				}
			}
		}
		for _, res := range results {
			a.metrics.PluginResult(inst.Name(), string(res.State))
		}
		fmt.Fprintln(a.summary, line.String())
		rep.Add(results...)
	}

	fileResults := make([]report.Result, 0, len(files))
	for _, f := range files {
		res := report.Result{Classname: fileClassname, Testname: fileTestname}
		switch {
		case f.err != nil:
			msg := fmt.Sprintf("Error Loading File %s - %v", f.path, f.err)
			res.State = report.StateError
			res.Message = msg
			res.Stdout = msg
			status |= StatusFileErrors
			a.metrics.FileDone("failed")
			fmt.Fprintf(a.summary, "Report for file %s ... = failed\n", f.path)
		case f.skipped:
			res.State = report.StateSkipped
			res.Message = "File not processed: run cancelled"
			a.metrics.FileDone("skipped")
			fmt.Fprintf(a.summary, "Report for file %s ... = skipped\n", f.path)
		default:
			res.State = report.StateSuccess
			res.Message = fileParsedOK
			res.Stdout = fileParsedOK
			a.metrics.FileDone("passed")
			fmt.Fprintf(a.summary, "Report for file %s ... = passed\n", f.path)
		}
		fileResults = append(fileResults, res)
	}
	rep.Add(fileResults...)

	return Outcome{Report: rep, Status: status}
}
