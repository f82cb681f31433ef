// Command tracelyse analyses recorded or live trace files with a set of
// plugins and writes an xUnit report.
//
// The process exit code is the run status bitmask: 1 when a plugin reported
// a failure, 2 when a plugin raised errors, 4 when a trace file could not be
// processed. Configuration errors exit with 1 before any record is read.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	var status int
	root := newRootCmd(stdout, stderr, &status)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return status
}

func newRootCmd(stdout, stderr io.Writer, status *int) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tracelyse [flags] TRACE...",
		Short: "Analyse trace files with plugins",
		Long: "Analyse trace files with plugins.\n\n" +
			"TRACE may be a file, a directory or a glob pattern. Trace files are JSON lines\n" +
			"(.jsonl, .ndjson) or msgpack streams (.mpk, .msgpack), optionally compressed\n" +
			"with gzip (.gz), zstd (.zst) or brotli (.br).",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, err := resolveOptions(cmd, os.Getenv)
			if err != nil {
				return err
			}
			st, err := run(ctx, opts, args, stdout, stderr)
			if err != nil {
				return err
			}
			*status = int(st)
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	f := rootCmd.Flags()
	f.StringP("config", "c", "", "configuration file (YAML)")
	f.StringSliceP("plugins", "p", nil, "plugins to run, in load order (default: all non-manual plugins)")
	f.StringSlice("exclude", nil, "plugins to skip")
	f.BoolP("show-plugins", "s", false, "list the selected plugins and exit")
	f.BoolP("recursive", "r", false, "search directories recursively for traces")
	f.BoolP("verbose", "v", false, "debug logging")
	f.StringP("xunit", "x", "tracelyse_results.xml", "xUnit report file, relative to the output directory")
	f.String("xunit-testsuite-name", "tracelyse", "testsuite name of the xUnit report")
	f.Bool("sort", false, "re-sort records by storage timestamp before analysis")
	f.Bool("live-run", false, "follow a single growing trace until interrupted")
	f.StringP("output-dir", "o", ".", "directory for the report and extracted files")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.Duration("progress-interval", 0, "log progress at this interval (0 disables)")
	f.String("log-format", "", "log format: text or json (default: text on a terminal, json otherwise)")
	f.String("log-level", "", "log level: debug, info, warn or error")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(newPluginsCmd(), newDumpCmd(), versionCmd)
	return rootCmd
}
