package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"tracelyse/internal/trace"
)

// maxLine bounds a single JSON line. Longer lines are skipped as corrupt.
const maxLine = 1024 * 1024

var errLineTooLong = errors.New("line exceeds 1 MiB")

type decoder interface {
	// next returns the next record, or io.EOF at the end of the stream.
	next() (*trace.Record, error)
	decoded() int
	corrupt() int
}

func (r *Reader) newDecoder(format Format, rd io.Reader, path string) decoder {
	if format == FormatMsgpack {
		return &msgpackDecoder{dec: msgpack.NewDecoder(bufio.NewReader(rd))}
	}
	return &lineDecoder{reader: r, path: path, br: bufio.NewReaderSize(rd, 64*1024)}
}

// lineDecoder decodes one JSON record per line, skipping blank lines and
// counting undecodable or overlong ones.
type lineDecoder struct {
	reader *Reader
	path   string
	br     *bufio.Reader
	buf    []byte
	line   int
	ok     int
	bad    int
}

func (d *lineDecoder) next() (*trace.Record, error) {
	for {
		line, err := d.readLine()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		d.line++
		if errors.Is(err, errLineTooLong) {
			d.bad++
			d.reader.corruptRecord(d.path, d.line, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", d.path, d.line, err)
		}
		rec, err := decodeLine(line)
		if err != nil {
			d.bad++
			d.reader.corruptRecord(d.path, d.line, err)
			continue
		}
		if rec == nil {
			continue
		}
		d.ok++
		return rec, nil
	}
}

// readLine returns the next line without its newline. The remainder of a
// line longer than maxLine is discarded and errLineTooLong returned. The
// returned slice is valid until the next call.
func (d *lineDecoder) readLine() ([]byte, error) {
	d.buf = d.buf[:0]
	tooLong := false
	for {
		chunk, err := d.br.ReadSlice('\n')
		if !tooLong {
			if len(d.buf)+len(chunk) > maxLine+1 {
				tooLong = true
				d.buf = d.buf[:0]
			} else {
				d.buf = append(d.buf, chunk...)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if !tooLong && len(d.buf) == 0 {
				return nil, io.EOF
			}
		default:
			return nil, err
		}
		if tooLong {
			return nil, errLineTooLong
		}
		if n := len(d.buf); n > 0 && d.buf[n-1] == '\n' {
			return d.buf[:n-1], nil
		}
		return d.buf, nil
	}
}

func (d *lineDecoder) decoded() int { return d.ok }
func (d *lineDecoder) corrupt() int { return d.bad }

// decodeLine decodes one JSON line. A blank line yields (nil, nil).
func decodeLine(line []byte) (*trace.Record, error) {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return nil, nil
	}
	var rec trace.Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Reader) corruptRecord(path string, line int, err error) {
	r.metrics.CorruptRecord()
	r.corruptLog.Do(func() {
		r.logger.Warn("skipping corrupt record", "path", path, "line", line, "error", err)
	})
}

// msgpackDecoder decodes a stream of msgpack records. A binary stream
// cannot be resynchronized, so any decoding error ends the trace.
type msgpackDecoder struct {
	dec *msgpack.Decoder
	ok  int
}

func (d *msgpackDecoder) next() (*trace.Record, error) {
	var rec trace.Record
	if err := d.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode msgpack record %d: %w", d.ok+1, err)
	}
	d.ok++
	return &rec, nil
}

func (d *msgpackDecoder) decoded() int { return d.ok }
func (d *msgpackDecoder) corrupt() int { return 0 }
