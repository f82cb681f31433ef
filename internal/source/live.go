package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tracelyse/internal/trace"
)

// tailedFile tracks the read position of a followed trace.
type tailedFile struct {
	path    string
	file    *os.File
	offset  int64
	lineBuf []byte // partial line from last read
	line    int
}

// follow yields records appended to path until ctx is done. The file is
// read from the start; writes are picked up through fsnotify on the parent
// directory, with a poll ticker as fallback.
func (r *Reader) follow(ctx context.Context, path string, opts trace.ReadOptions, yield func(*trace.Record, error) bool) {
	format, comp, err := Detect(path)
	if err != nil {
		yield(nil, err)
		return
	}
	if format != FormatJSONL || comp != CompressionNone {
		yield(nil, fmt.Errorf("%w: %s", ErrLiveUnsupported, filepath.Base(path)))
		return
	}
	if opts.Sort {
		r.logger.Debug("sorting is ignored for live traces", "path", path)
	}

	f, err := os.Open(path)
	if err != nil {
		yield(nil, fmt.Errorf("open trace: %w", err))
		return
	}
	tf := &tailedFile{path: path, file: f}
	defer func() { _ = tf.file.Close() }()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		yield(nil, fmt.Errorf("watch trace: %w", err))
		return
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		r.logger.Warn("failed to watch directory, polling only", "dir", filepath.Dir(path), "error", err)
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	r.logger.Info("following trace", "path", path)
	if !r.readNewLines(ctx, tf, opts, yield) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if !r.readNewLines(ctx, tf, opts, yield) {
					return
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("fsnotify error", "error", err)

		case <-ticker.C:
			if !r.readNewLines(ctx, tf, opts, yield) {
				return
			}
		}
	}
}

// readNewLines yields the complete lines written since the last read. It
// returns false once the consumer stopped or ctx is done.
func (r *Reader) readNewLines(ctx context.Context, tf *tailedFile, opts trace.ReadOptions, yield func(*trace.Record, error) bool) bool {
	info, err := os.Stat(tf.path)
	if err != nil {
		r.logger.Warn("failed to stat trace during read", "path", tf.path, "error", err)
		return ctx.Err() == nil
	}

	if info.Size() < tf.offset {
		r.logger.Info("truncation detected, resetting", "path", tf.path)
		tf.offset = 0
		tf.lineBuf = nil
	}
	if info.Size() == tf.offset {
		return ctx.Err() == nil
	}

	chunk := make([]byte, info.Size()-tf.offset)
	n, err := tf.file.ReadAt(chunk, tf.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		r.logger.Warn("failed to read trace", "path", tf.path, "error", err)
		return ctx.Err() == nil
	}
	tf.offset += int64(n)
	data := append(tf.lineBuf, chunk[:n]...)
	tf.lineBuf = nil

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		data = data[i+1:]
		tf.line++

		rec, err := decodeLine(line)
		if err != nil {
			r.corruptRecord(tf.path, tf.line, err)
			continue
		}
		if rec == nil || !Match(opts.Filters, rec) {
			continue
		}
		if ctx.Err() != nil || !yield(rec, nil) {
			return false
		}
	}
	if len(data) > 0 {
		tf.lineBuf = append([]byte(nil), data...)
	}
	return ctx.Err() == nil
}
