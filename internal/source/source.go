// Package source decodes trace files into records for the analyser.
//
// A trace file holds one record per JSON line (.jsonl, .ndjson) or a stream
// of msgpack-encoded records (.mpk, .msgpack), optionally compressed with
// gzip (.gz), zstd (.zst) or brotli (.br). Bounded traces are read to EOF;
// a live trace (uncompressed JSON lines only) is followed with fsnotify
// until the context is cancelled.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"tracelyse/internal/logging"
	"tracelyse/internal/metrics"
	"tracelyse/internal/trace"
)

// DefaultPollInterval is how often a live trace is re-read when no
// filesystem event arrived.
const DefaultPollInterval = time.Second

// Config configures a Reader.
type Config struct {
	// Logger for the reader. If nil, logging is discarded.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Engine
	// FS holds bounded traces. Defaults to the OS filesystem. Live traces
	// are always followed on the OS filesystem.
	FS afero.Fs
	// PollInterval for live traces. Defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// Reader implements trace.Source.
type Reader struct {
	logger  *slog.Logger
	metrics *metrics.Engine
	fs      afero.Fs
	poll    time.Duration

	// Corrupt records can be numerous; warn about a few, then sample.
	corruptLog rate.Sometimes
}

var _ trace.Source = (*Reader)(nil)

// New creates a Reader.
func New(cfg Config) *Reader {
	fsys := cfg.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Reader{
		logger:     logging.Default(cfg.Logger).With("component", "source"),
		metrics:    cfg.Metrics,
		fs:         fsys,
		poll:       poll,
		corruptLog: rate.Sometimes{First: 10, Interval: 5 * time.Second},
	}
}

// Records returns the records of one trace file.
func (r *Reader) Records(ctx context.Context, path string, opts trace.ReadOptions) iter.Seq2[*trace.Record, error] {
	return func(yield func(*trace.Record, error) bool) {
		if opts.Live {
			r.follow(ctx, path, opts, yield)
			return
		}
		if err := r.read(ctx, path, opts, yield); err != nil {
			yield(nil, err)
		}
	}
}

// read streams a bounded trace. A non-nil error has not been yielded yet.
func (r *Reader) read(ctx context.Context, path string, opts trace.ReadOptions, yield func(*trace.Record, error) bool) error {
	format, comp, err := Detect(path)
	if err != nil {
		return err
	}
	f, err := r.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer func() { _ = f.Close() }()

	rd, release, err := decompress(f, comp)
	if err != nil {
		return err
	}
	defer release()

	dec := r.newDecoder(format, rd, path)
	var sorted []*trace.Record
	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, err := dec.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if !Match(opts.Filters, rec) {
			continue
		}
		if opts.Sort {
			sorted = append(sorted, rec)
			continue
		}
		if !yield(rec, nil) {
			return nil
		}
	}

	if dec.decoded() == 0 {
		if n := dec.corrupt(); n > 0 {
			return fmt.Errorf("no decodable records in %s (%d corrupt)", path, n)
		}
		return fmt.Errorf("%w: %s", ErrEmptyTrace, path)
	}
	if dec.corrupt() > 0 {
		r.logger.Warn("skipped corrupt records", "path", path, "count", dec.corrupt())
	}

	if opts.Sort {
		slices.SortStableFunc(sorted, func(a, b *trace.Record) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for _, rec := range sorted {
			if ctx.Err() != nil {
				return nil
			}
			if !yield(rec, nil) {
				return nil
			}
		}
	}
	return nil
}

// Match reports whether rec passes the coarse pre-filter. A nil filter
// passes everything.
func Match(filters []trace.Pair, rec *trace.Record) bool {
	if filters == nil {
		return true
	}
	for _, p := range filters {
		if p.Match(rec.APID, rec.CTID) {
			return true
		}
	}
	return false
}
