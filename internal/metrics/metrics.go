// Package metrics exposes Prometheus collectors for the analysis engine.
// A nil *Engine is valid and records nothing, so components take an
// optional *Engine without checking it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tracelyse"

// Engine holds the analyser metrics.
type Engine struct {
	records        prometheus.Counter
	buffered       prometheus.Counter
	bufferOverflow prometheus.Counter
	lifecycles     prometheus.Counter
	corrupt        prometheus.Counter
	files          *prometheus.CounterVec // by result: passed, failed, skipped
	pluginErrors   *prometheus.CounterVec // by plugin, action
	pluginSeconds  *prometheus.GaugeVec   // cumulative, by plugin, action
	pluginResults  *prometheus.CounterVec // by plugin, state
	runStatus      prometheus.Gauge
	runDuration    prometheus.Histogram
}

// New creates the engine metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Engine, error) {
	m := &Engine{
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "records_total",
			Help:      "Total number of records pulled from trace sources",
		}),
		buffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "records_buffered_total",
			Help:      "Total number of records held back until a lifecycle existed",
		}),
		bufferOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "buffer_overflow_total",
			Help:      "Bufferable records processed directly because the buffer was full",
		}),
		lifecycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "lifecycles_total",
			Help:      "Total number of lifecycles started",
		}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "corrupt_records_total",
			Help:      "Undecodable records skipped by trace sources",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "files_total",
			Help:      "Trace files processed, by result",
		}, []string{"result"}),
		pluginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plugin",
			Name:      "errors_total",
			Help:      "Failed plugin calls, by plugin and action",
		}, []string{"plugin", "action"}),
		pluginSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "plugin",
			Name:      "call_seconds",
			Help:      "Cumulative time spent in plugin calls, by plugin and action",
		}, []string{"plugin", "action"}),
		pluginResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plugin",
			Name:      "results_total",
			Help:      "Results reported by plugins, by plugin and state",
		}, []string{"plugin", "state"}),
		runStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "run_status",
			Help:      "Status bitmask of the last finished run",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyser",
			Name:      "run_duration_seconds",
			Help:      "Duration of analysis runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.records, m.buffered, m.bufferOverflow, m.lifecycles, m.corrupt, m.files,
		m.pluginErrors, m.pluginSeconds, m.pluginResults, m.runStatus, m.runDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Engine) RecordPulled() {
	if m == nil {
		return
	}
	m.records.Inc()
}

func (m *Engine) RecordBuffered() {
	if m == nil {
		return
	}
	m.buffered.Inc()
}

func (m *Engine) BufferOverflow() {
	if m == nil {
		return
	}
	m.bufferOverflow.Inc()
}

func (m *Engine) LifecycleStarted() {
	if m == nil {
		return
	}
	m.lifecycles.Inc()
}

func (m *Engine) CorruptRecord() {
	if m == nil {
		return
	}
	m.corrupt.Inc()
}

// FileDone counts a trace file by result ("passed", "failed" or "skipped").
func (m *Engine) FileDone(result string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(result).Inc()
}

func (m *Engine) PluginError(plugin, action string) {
	if m == nil {
		return
	}
	m.pluginErrors.WithLabelValues(plugin, action).Inc()
}

// PluginTiming sets the cumulative time a plugin spent in action.
func (m *Engine) PluginTiming(plugin, action string, d time.Duration) {
	if m == nil {
		return
	}
	m.pluginSeconds.WithLabelValues(plugin, action).Set(d.Seconds())
}

func (m *Engine) PluginResult(plugin, state string) {
	if m == nil {
		return
	}
	m.pluginResults.WithLabelValues(plugin, state).Inc()
}

// RunFinished records the outcome of a run.
func (m *Engine) RunFinished(status int, d time.Duration) {
	if m == nil {
		return
	}
	m.runStatus.Set(float64(status))
	m.runDuration.Observe(d.Seconds())
}
