package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the record encoding of a trace file.
type Format int

const (
	// FormatUnknown is returned for unrecognized extensions.
	FormatUnknown Format = iota
	// FormatJSONL is one JSON object per line.
	FormatJSONL
	// FormatMsgpack is a stream of msgpack-encoded records.
	FormatMsgpack
)

func (f Format) String() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// Compression is the outer compression of a trace file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionBrotli
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "brotli"
	default:
		return "none"
	}
}

var (
	// ErrUnknownFormat is returned for files whose extension names no known format.
	ErrUnknownFormat = errors.New("unknown trace format")
	// ErrEmptyTrace is returned for a bounded trace without any record.
	ErrEmptyTrace = errors.New("empty trace file")
	// ErrLiveUnsupported is returned when a live run targets a file that
	// cannot be followed.
	ErrLiveUnsupported = errors.New("live follow requires an uncompressed jsonl trace")
)

var compressionExts = map[string]Compression{
	".gz":  CompressionGzip,
	".zst": CompressionZstd,
	".br":  CompressionBrotli,
}

var formatExts = map[string]Format{
	".jsonl":   FormatJSONL,
	".ndjson":  FormatJSONL,
	".mpk":     FormatMsgpack,
	".msgpack": FormatMsgpack,
}

// TraceExtensions lists the extensions recognized as traces, without
// compression suffixes. Used by discovery.
var TraceExtensions = []string{".jsonl", ".ndjson", ".mpk", ".msgpack"}

// CompressionExtensions lists the recognized compression suffixes.
var CompressionExtensions = []string{".gz", ".zst", ".br"}

// Detect derives format and compression from a file name such as
// "trace.mpk.zst".
func Detect(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	comp := CompressionNone
	if c, ok := compressionExts[filepath.Ext(name)]; ok {
		comp = c
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if f, ok := formatExts[filepath.Ext(name)]; ok {
		return f, comp, nil
	}
	return FormatUnknown, comp, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
}
