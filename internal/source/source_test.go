package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"go.uber.org/goleak"

	"tracelyse/internal/metrics"
	"tracelyse/internal/trace"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(apid, ctid, payload string, offset time.Duration) *trace.Record {
	return &trace.Record{ECUID: "ECU1", APID: apid, CTID: ctid, Payload: payload, Timestamp: t0.Add(offset)}
}

func collect(t *testing.T, r *Reader, path string, opts trace.ReadOptions) ([]*trace.Record, error) {
	t.Helper()
	var out []*trace.Record
	for rec, err := range r.Records(context.Background(), path, opts) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func payloads(recs []*trace.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Payload
	}
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		comp   Compression
		err    error
	}{
		{"a.jsonl", FormatJSONL, CompressionNone, nil},
		{"dir/a.ndjson.gz", FormatJSONL, CompressionGzip, nil},
		{"A.MPK.ZST", FormatMsgpack, CompressionZstd, nil},
		{"a.msgpack.br", FormatMsgpack, CompressionBrotli, nil},
		{"a.dlt", FormatUnknown, CompressionNone, ErrUnknownFormat},
		{"a.gz", FormatUnknown, CompressionGzip, ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, comp, err := Detect(tt.path)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if format != tt.format || comp != tt.comp {
				t.Errorf("Detect = %v/%v, want %v/%v", format, comp, tt.format, tt.comp)
			}
		})
	}
}

func TestReadFormats(t *testing.T) {
	recs := []*trace.Record{
		rec("DA1", "DC1", "one", 0),
		rec("SYS", "JOUR", "two", time.Second),
		rec("DA1", "DC1", "three", 2*time.Second),
	}
	for _, name := range []string{"t.jsonl", "t.jsonl.gz", "t.ndjson.zst", "t.mpk", "t.msgpack.br", "t.mpk.zst"} {
		t.Run(name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			if err := WriteFile(fsys, name, recs); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			r := New(Config{FS: fsys})
			got, err := collect(t, r, name, trace.ReadOptions{})
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if !slices.Equal(payloads(got), []string{"one", "two", "three"}) {
				t.Fatalf("payloads = %v", payloads(got))
			}
			if got[1].APID != "SYS" || got[1].CTID != "JOUR" || got[1].ECUID != "ECU1" {
				t.Errorf("record = %+v", got[1])
			}
			if !got[2].Timestamp.Equal(t0.Add(2 * time.Second)) {
				t.Errorf("timestamp = %v", got[2].Timestamp)
			}
		})
	}
}

func TestReadSkipsBlankAndCorruptLines(t *testing.T) {
	fsys := afero.NewMemMapFs()
	data := `{"apid":"A","ctid":"B","payload":"first","ts":"2024-03-01T12:00:00Z"}

not json
{"apid":"A","ctid":"B","payload":"second","ts":"2024-03-01T12:00:01Z"}` + "\r\n"
	if err := afero.WriteFile(fsys, "t.jsonl", []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := collect(t, New(Config{FS: fsys}), "t.jsonl", trace.ReadOptions{})
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if !slices.Equal(payloads(got), []string{"first", "second"}) {
		t.Errorf("payloads = %v", payloads(got))
	}
}

func TestReadSkipsOverlongLine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	long := `{"apid":"A","ctid":"B","payload":"` + strings.Repeat("x", 2*maxLine) + `"}`
	data := `{"apid":"A","ctid":"B","payload":"first"}` + "\n" + long + "\n" + `{"apid":"A","ctid":"B","payload":"second"}`
	if err := afero.WriteFile(fsys, "t.jsonl", []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := collect(t, New(Config{FS: fsys, Metrics: m}), "t.jsonl", trace.ReadOptions{})
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if !slices.Equal(payloads(got), []string{"first", "second"}) {
		t.Errorf("payloads = %v", payloads(got))
	}
	want := `
# HELP tracelyse_source_corrupt_records_total Undecodable records skipped by trace sources
# TYPE tracelyse_source_corrupt_records_total counter
tracelyse_source_corrupt_records_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tracelyse_source_corrupt_records_total"); err != nil {
		t.Error(err)
	}
}

func TestReadErrors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "empty.jsonl", nil, 0o644)
	_ = afero.WriteFile(fsys, "blank.jsonl", []byte("\n\n"), 0o644)
	_ = afero.WriteFile(fsys, "garbage.jsonl", []byte("x\ny\n"), 0o644)
	_ = afero.WriteFile(fsys, "bad.jsonl.gz", []byte("not gzip"), 0o644)
	_ = afero.WriteFile(fsys, "trace.txt", []byte("x"), 0o644)

	tests := []struct {
		path string
		want error
	}{
		{"missing.jsonl", fs.ErrNotExist},
		{"empty.jsonl", ErrEmptyTrace},
		{"blank.jsonl", ErrEmptyTrace},
		{"garbage.jsonl", nil},
		{"bad.jsonl.gz", nil},
		{"trace.txt", ErrUnknownFormat},
	}
	r := New(Config{FS: fsys})
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := collect(t, r, tt.path, trace.ReadOptions{})
			if err == nil {
				t.Fatalf("expected error, got %d records", len(got))
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadSortIsStable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	recs := []*trace.Record{
		rec("A", "B", "late", 3*time.Second),
		rec("A", "B", "tie-1", time.Second),
		rec("A", "B", "early", 0),
		rec("A", "B", "tie-2", time.Second),
	}
	if err := WriteFile(fsys, "t.jsonl", recs); err != nil {
		t.Fatal(err)
	}
	r := New(Config{FS: fsys})

	got, err := collect(t, r, "t.jsonl", trace.ReadOptions{Sort: true})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"early", "tie-1", "tie-2", "late"}; !slices.Equal(payloads(got), want) {
		t.Errorf("sorted = %v, want %v", payloads(got), want)
	}

	got, err = collect(t, r, "t.jsonl", trace.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"late", "tie-1", "early", "tie-2"}; !slices.Equal(payloads(got), want) {
		t.Errorf("unsorted = %v, want %v", payloads(got), want)
	}
}

func TestReadPreFilter(t *testing.T) {
	fsys := afero.NewMemMapFs()
	recs := []*trace.Record{
		rec("DA1", "DC1", "exact", 0),
		rec("SYS", "JOUR", "apid", 0),
		rec("X", "MEM", "ctid", 0),
		rec("X", "Y", "dropped", 0),
	}
	if err := WriteFile(fsys, "t.mpk", recs); err != nil {
		t.Fatal(err)
	}
	filters := []trace.Pair{{APID: "DA1", CTID: "DC1"}, {APID: "SYS"}, {CTID: "MEM"}}
	got, err := collect(t, New(Config{FS: fsys}), "t.mpk", trace.ReadOptions{Filters: filters})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"exact", "apid", "ctid"}; !slices.Equal(payloads(got), want) {
		t.Errorf("payloads = %v, want %v", payloads(got), want)
	}

	// An empty non-nil filter list passes nothing, but the file is not empty.
	got, err = collect(t, New(Config{FS: fsys}), "t.mpk", trace.ReadOptions{Filters: []trace.Pair{}})
	if err != nil || len(got) != 0 {
		t.Errorf("empty filter: got %d records, err %v", len(got), err)
	}
}

func TestReadStopsWhenConsumerStops(t *testing.T) {
	fsys := afero.NewMemMapFs()
	recs := []*trace.Record{rec("A", "B", "1", 0), rec("A", "B", "2", 0), rec("A", "B", "3", 0)}
	if err := WriteFile(fsys, "t.jsonl.zst", recs); err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, err := range New(Config{FS: fsys}).Records(context.Background(), "t.jsonl.zst", trace.ReadOptions{}) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}
}

func TestReadCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := WriteFile(fsys, "t.jsonl", []*trace.Record{rec("A", "B", "1", 0)}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for rec, err := range New(Config{FS: fsys}).Records(ctx, "t.jsonl", trace.ReadOptions{}) {
		t.Fatalf("unexpected yield after cancel: %v %v", rec, err)
	}
}

func TestLiveFollow(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "live.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	write := func(s string) {
		t.Helper()
		if _, err := f.WriteString(s); err != nil {
			t.Fatal(err)
		}
	}
	write(`{"apid":"A","ctid":"B","payload":"one","ts":"2024-03-01T12:00:00Z"}` + "\n")

	r := New(Config{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *trace.Record, 8)
	done := make(chan error, 1)
	go func() {
		for rec, err := range r.Records(ctx, path, trace.ReadOptions{Live: true}) {
			if err != nil {
				done <- err
				return
			}
			got <- rec
		}
		done <- nil
	}()

	next := func() *trace.Record {
		t.Helper()
		select {
		case rec := <-got:
			return rec
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for record")
			return nil
		}
	}

	if rec := next(); rec.Payload != "one" {
		t.Fatalf("first = %q", rec.Payload)
	}

	write(`{"apid":"A","ctid":"B","payl`)
	select {
	case rec := <-got:
		t.Fatalf("partial line yielded %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}
	write(`oad":"two","ts":"2024-03-01T12:00:01Z"}` + "\n")
	if rec := next(); rec.Payload != "two" {
		t.Fatalf("second = %q", rec.Payload)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop after cancel")
	}
}

func TestLiveRejectsCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.jsonl.gz")
	for _, err := range New(Config{}).Records(context.Background(), path, trace.ReadOptions{Live: true}) {
		if !errors.Is(err, ErrLiveUnsupported) {
			t.Fatalf("err = %v, want ErrLiveUnsupported", err)
		}
		return
	}
	t.Fatal("expected an error")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jsonl", "a.mpk.zst", "notes.txt", "sub/c.ndjson", "sub/deep/d.jsonl.gz"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	j := func(p string) string { return filepath.Join(dir, p) }

	tests := []struct {
		name      string
		args      []string
		recursive bool
		want      []string
	}{
		{"dir", []string{dir}, false, []string{j("a.mpk.zst"), j("b.jsonl")}},
		{"recursive", []string{dir}, true, []string{j("a.mpk.zst"), j("b.jsonl"), j("sub/c.ndjson"), j("sub/deep/d.jsonl.gz")}},
		{"glob", []string{j("**/*.jsonl*")}, false, []string{j("b.jsonl"), j("sub/deep/d.jsonl.gz")}},
		{"literal kept", []string{j("missing.jsonl"), j("notes.txt")}, false, []string{j("missing.jsonl"), j("notes.txt")}},
		{"dedup", []string{j("b.jsonl"), dir}, false, []string{j("b.jsonl"), j("a.mpk.zst")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(tt.args, tt.recursive)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Discover = %v, want %v", got, tt.want)
			}
		})
	}
}
