package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"tracelyse/internal/trace"
)

// Writer encodes records in one of the trace formats.
type Writer struct {
	out    io.WriteCloser
	closer io.Closer // underlying file, if owned
	json   *json.Encoder
	mp     *msgpack.Encoder
}

// NewWriter encodes records to w. Close flushes the compressor but does
// not close w.
func NewWriter(w io.Writer, format Format, comp Compression) (*Writer, error) {
	if format != FormatJSONL && format != FormatMsgpack {
		return nil, ErrUnknownFormat
	}
	out, err := compress(w, comp)
	if err != nil {
		return nil, err
	}
	wr := &Writer{out: out}
	if format == FormatMsgpack {
		wr.mp = msgpack.NewEncoder(out)
	} else {
		wr.json = json.NewEncoder(out)
	}
	return wr, nil
}

// Create creates path on fsys and returns a Writer for the format and
// compression its name implies. Close closes the file.
func Create(fsys afero.Fs, path string) (*Writer, error) {
	format, comp, err := Detect(path)
	if err != nil {
		return nil, err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	w, err := NewWriter(f, format, comp)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write encodes one record.
func (w *Writer) Write(rec *trace.Record) error {
	if w.mp != nil {
		return w.mp.Encode(rec)
	}
	return w.json.Encode(rec)
}

// Close flushes buffered output and closes the file when the writer owns it.
func (w *Writer) Close() error {
	err := w.out.Close()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	return err
}

// WriteFile writes recs to path on fsys.
func WriteFile(fsys afero.Fs, path string, recs []*trace.Record) error {
	w, err := Create(fsys, path)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}
