package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"tracelyse/internal/analyser"
	"tracelyse/internal/config"
	"tracelyse/internal/logging"
	"tracelyse/internal/metrics"
	"tracelyse/internal/outdir"
	"tracelyse/internal/plugin"
	"tracelyse/internal/plugins"
	"tracelyse/internal/report"
	"tracelyse/internal/scheduler"
	"tracelyse/internal/source"
)

// options is the configuration file with command-line flags applied.
type options struct {
	config.Config
	ShowPlugins bool
	Verbose     bool
	Live        bool
}

// resolveOptions loads the configuration file, applies the environment and
// then every flag that was set explicitly.
func resolveOptions(cmd *cobra.Command, getenv func(string) string) (options, error) {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	cfg, err := config.Load(afero.NewOsFs(), path)
	if err != nil {
		return options{}, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return options{}, err
	}

	opts := options{Config: cfg}
	if f.Changed("plugins") {
		opts.Plugins, _ = f.GetStringSlice("plugins")
	}
	if f.Changed("exclude") {
		opts.Exclude, _ = f.GetStringSlice("exclude")
	}
	if f.Changed("recursive") {
		opts.Recursive, _ = f.GetBool("recursive")
	}
	if f.Changed("xunit") {
		opts.XUnit, _ = f.GetString("xunit")
	}
	if f.Changed("xunit-testsuite-name") {
		opts.TestSuite, _ = f.GetString("xunit-testsuite-name")
	}
	if f.Changed("sort") {
		opts.Sort, _ = f.GetBool("sort")
	}
	if f.Changed("output-dir") {
		opts.OutputDir, _ = f.GetString("output-dir")
	}
	if f.Changed("metrics-addr") {
		opts.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	if f.Changed("progress-interval") {
		opts.ProgressInterval, _ = f.GetDuration("progress-interval")
	}
	if f.Changed("log-format") {
		opts.LogFormat, _ = f.GetString("log-format")
	}
	if f.Changed("log-level") {
		opts.LogLevel, _ = f.GetString("log-level")
	}
	opts.ShowPlugins, _ = f.GetBool("show-plugins")
	opts.Verbose, _ = f.GetBool("verbose")
	opts.Live, _ = f.GetBool("live-run")
	if opts.Verbose {
		opts.LogLevel = "debug"
	}

	if err := opts.Validate(); err != nil {
		return options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}

// newLogger builds the base logger. Without an explicit format, a terminal
// gets text and anything else gets JSON.
func newLogger(w io.Writer, format, level string, levels map[string]string) (*slog.Logger, error) {
	if format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	base, err := logging.NewHandler(w, format)
	if err != nil {
		return nil, err
	}
	def, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	filter := logging.NewComponentFilterHandler(base, def)
	for component, l := range levels {
		lvl, err := logging.ParseLevel(l)
		if err != nil {
			return nil, err
		}
		filter.SetLevel(component, lvl)
	}
	return slog.New(filter), nil
}

// run performs one analysis and returns the run status.
func run(ctx context.Context, opts options, args []string, stdout, stderr io.Writer) (analyser.RunStatus, error) {
	logger, err := newLogger(stderr, opts.LogFormat, opts.LogLevel, opts.LogLevels)
	if err != nil {
		return 0, err
	}

	reg, err := plugins.NewRegistry()
	if err != nil {
		return 0, err
	}
	descs, err := reg.Select(plugin.Selection{
		Include:       opts.Plugins,
		Exclude:       opts.Exclude,
		IncludeManual: opts.IncludeManual,
	})
	if err != nil {
		return 0, err
	}

	var paths []string
	if !opts.ShowPlugins {
		paths, err = source.Discover(args, opts.Recursive)
		if err != nil {
			return 0, err
		}
		if len(paths) == 0 {
			return 0, errors.New("no trace files given")
		}
		if opts.Live && len(paths) != 1 {
			return 0, fmt.Errorf("live run needs exactly one trace, got %d", len(paths))
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng, err := metrics.New(promReg)
	if err != nil {
		return 0, err
	}

	fsys := afero.NewOsFs()
	dir := outdir.New(opts.OutputDir)
	if !opts.ShowPlugins {
		if err := dir.EnsureExists(fsys); err != nil {
			return 0, err
		}
	}

	a := analyser.New(analyser.Config{
		Logger:  logger,
		Source:  source.New(source.Config{Logger: logger, Metrics: eng, FS: fsys}),
		Metrics: eng,
		Summary: stdout,
		Report: report.Config{
			Name:     opts.TestSuite,
			ID:       outdir.RunID(),
			Hardware: opts.Hardware,
			Software: opts.Software,
			Logger:   logger,
		},
		PluginOptions: opts.PluginOptions,
	})
	if err := a.Load(descs, plugin.Env{Logger: logger, FS: fsys, Dir: dir}); err != nil {
		return 0, err
	}
	if opts.ShowPlugins {
		return 0, a.ShowPlugins(stdout)
	}

	if opts.ProgressInterval > 0 {
		sched, err := scheduler.New(scheduler.Config{Logger: logger})
		if err != nil {
			return 0, err
		}
		if err := sched.AddInterval("progress", opts.ProgressInterval, a.LogProgress); err != nil {
			return 0, err
		}
		sched.Start()
		defer func() { _ = sched.Stop() }()
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if opts.MetricsAddr != "" {
		ln, err := net.Listen("tcp", opts.MetricsAddr)
		if err != nil {
			return 0, fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promReg))
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("metrics server listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var out analyser.Outcome
	g.Go(func() error {
		defer func() {
			if srv == nil {
				return
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		var err error
		out, err = a.Run(gctx, paths, analyser.Options{Sort: opts.Sort, Live: opts.Live})
		return err
	})
	return writeReport(fsys, dir.ReportPath(opts.XUnit), out, g.Wait())
}

// writeReport writes whatever report the run produced, even when runErr is
// set (a metrics server failing mid-run), and then returns runErr.
func writeReport(fsys afero.Fs, path string, out analyser.Outcome, runErr error) (analyser.RunStatus, error) {
	if out.Report != nil {
		if err := out.Report.WriteFile(fsys, path); err != nil {
			return 0, errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return 0, runErr
	}
	return out.Status, nil
}
