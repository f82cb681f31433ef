package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tracelyse/internal/logging"
	"tracelyse/internal/report"
	"tracelyse/internal/trace"
)

// Action names one kind of call into a plugin.
type Action string

const (
	ActionLoad             Action = "load"
	ActionHandle           Action = "handle"
	ActionNewLifecycle     Action = "new_lifecycle"
	ActionPrepareLifecycle Action = "prepare_lifecycle"
	ActionEndLifecycle     Action = "end_lifecycle"
	ActionReport           Action = "report"
)

// Separator between exception ledger entries in the exceptions result.
const exceptionSeparator = "\n-------------\n"

// Instance is a loaded plugin. Every call into the plugin goes through Call,
// which isolates failures, records them in the exception ledger and adds
// the elapsed time to the per-action timings.
//
// An Instance is used from a single goroutine.
type Instance struct {
	desc     Descriptor
	plugin   Plugin
	filter   Filter
	logger   *slog.Logger
	reporter *Reporter

	ledger  []string
	seen    map[string]struct{}
	timings map[Action]time.Duration

	// Handle failures can repeat for every record.
	handleLog rate.Sometimes
}

// Load constructs the plugin described by d and reads its filter.
// A failing or panicking constructor is returned as an error; the caller
// decides whether to skip the plugin.
func Load(d Descriptor, env Env) (*Instance, error) {
	logger := logging.Default(env.Logger).With("plugin", d.Name)
	env.Logger = logger

	inst := &Instance{
		desc:      d,
		logger:    logger,
		reporter:  NewReporter(d),
		seen:      make(map[string]struct{}),
		timings:   make(map[Action]time.Duration),
		handleLog: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}

	p, elapsed, err := Capture(func() (Plugin, error) { return d.New(env) })
	inst.timings[ActionLoad] += elapsed
	if err == nil && p == nil {
		err = errors.New("factory returned no plugin")
	}
	if err != nil {
		return nil, fmt.Errorf("load plugin %s: %w", d.Name, err)
	}
	inst.plugin = p

	f, _, err := Capture(func() (Filter, error) { return p.Filter(), nil })
	if err != nil {
		return nil, fmt.Errorf("load plugin %s: filter: %w", d.Name, err)
	}
	inst.filter = f
	return inst, nil
}

// NewInstance wraps an already constructed plugin. It is mostly useful in tests.
// A failing Filter is ledgered as a load failure and leaves the filter unset,
// so the routing table rejects the instance.
func NewInstance(d Descriptor, p Plugin, logger *slog.Logger) *Instance {
	inst := &Instance{
		desc:      d,
		plugin:    p,
		logger:    logging.Default(logger).With("plugin", d.Name),
		reporter:  NewReporter(d),
		seen:      make(map[string]struct{}),
		timings:   make(map[Action]time.Duration),
		handleLog: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
	_ = inst.Call(ActionLoad, func() error {
		inst.filter = p.Filter()
		return nil
	})
	return inst
}

// Name returns the plugin name.
func (i *Instance) Name() string { return i.desc.Name }

// Descriptor returns the descriptor the instance was loaded from.
func (i *Instance) Descriptor() Descriptor { return i.desc }

// Plugin returns the wrapped plugin.
func (i *Instance) Plugin() Plugin { return i.plugin }

// Filter returns the filter read at load time.
func (i *Instance) Filter() Filter { return i.filter }

// Call runs fn on behalf of action. A returned error or a panic is logged,
// added to the ledger and returned; it never propagates further.
func (i *Instance) Call(action Action, fn func() error) error {
	_, elapsed, err := Capture(func() (struct{}, error) { return struct{}{}, fn() })
	i.timings[action] += elapsed
	if err == nil {
		return nil
	}

	entry := fmt.Sprintf("%s: %v", action, err)
	if _, dup := i.seen[entry]; !dup {
		i.seen[entry] = struct{}{}
		var pe *PanicError
		if errors.As(err, &pe) {
			i.ledger = append(i.ledger, entry+"\n"+string(pe.Stack))
		} else {
			i.ledger = append(i.ledger, entry)
		}
	}

	logFailure := func() {
		i.logger.Error("plugin call failed", "action", string(action), "error", err)
	}
	if action == ActionHandle {
		i.handleLog.Do(logFailure)
	} else {
		logFailure()
	}
	return err
}

// Handle delivers one record.
func (i *Instance) Handle(rec *trace.Record) error {
	return i.Call(ActionHandle, func() error { return i.plugin.Handle(rec) })
}

// NewLifecycle notifies the plugin if it implements LifecycleHandler.
func (i *Instance) NewLifecycle(ecuID string, id int) error {
	h, ok := i.plugin.(LifecycleHandler)
	if !ok {
		return nil
	}
	return i.Call(ActionNewLifecycle, func() error { return h.NewLifecycle(ecuID, id) })
}

// PrepareLifecycle notifies the plugin if it implements LifecyclePreparer.
func (i *Instance) PrepareLifecycle(lc *trace.Lifecycle) error {
	p, ok := i.plugin.(LifecyclePreparer)
	if !ok {
		return nil
	}
	return i.Call(ActionPrepareLifecycle, func() error { return p.PrepareLifecycle(lc) })
}

// EndLifecycle notifies the plugin if it implements LifecycleHandler.
func (i *Instance) EndLifecycle(ecuID string, id int) error {
	h, ok := i.plugin.(LifecycleHandler)
	if !ok {
		return nil
	}
	return i.Call(ActionEndLifecycle, func() error { return h.EndLifecycle(ecuID, id) })
}

// Report asks the plugin for its results. A non-empty exception ledger adds
// an error result listing every distinct failure. The returned bool is
// false when the ledger is non-empty.
func (i *Instance) Report() ([]report.Result, bool) {
	_ = i.Call(ActionReport, func() error { return i.plugin.Report(i.reporter) })

	i.logger.Debug("plugin timings", "timings", i.formatTimings())

	if len(i.ledger) == 0 {
		return i.reporter.Results(), true
	}
	i.reporter.AddResult(report.Result{
		Testname: "Exceptions during execution",
		State:    report.StateError,
		Message:  "Exceptions detected while executing the plugin",
		Stdout:   strings.Join(i.ledger, exceptionSeparator),
	})
	return i.reporter.Results(), false
}

// Exceptions returns the distinct failures recorded so far, in order.
func (i *Instance) Exceptions() []string {
	return i.ledger
}

// Timings returns a copy of the cumulative per-action timings.
func (i *Instance) Timings() map[Action]time.Duration {
	return maps.Clone(i.timings)
}

func (i *Instance) formatTimings() string {
	parts := make([]string, 0, len(i.timings))
	for _, a := range []Action{ActionLoad, ActionHandle, ActionNewLifecycle, ActionPrepareLifecycle, ActionEndLifecycle, ActionReport} {
		if d, ok := i.timings[a]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", a, d.Round(time.Microsecond)))
		}
	}
	return strings.Join(parts, " ")
}
