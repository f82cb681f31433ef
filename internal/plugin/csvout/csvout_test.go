package csvout

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", path, err)
	}
	return string(data)
}

func TestWriter(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/out",
		File{Name: "mem.csv", Columns: []string{"time", "value"}},
		File{Name: "sub/raw.csv"},
		File{Name: "unused.csv", Columns: []string{"x"}},
	)

	if err := w.WriteRow("1", "100"); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.WriteRows("sub/raw.csv", [][]string{{"a", "b,c"}, {"d"}}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if err := w.WriteRow("2", "200"); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.WriteRowTo("nope.csv", "x"); err == nil {
		t.Error("expected error for undeclared file")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := readFile(t, fs, "/out/mem.csv"); got != "time,value\n1,100\n2,200\n" {
		t.Errorf("mem.csv = %q", got)
	}
	if got := readFile(t, fs, "/out/sub/raw.csv"); got != "a,\"b,c\"\nd\n" {
		t.Errorf("raw.csv = %q", got)
	}
	if exists, _ := afero.Exists(fs, "/out/unused.csv"); exists {
		t.Error("files are created lazily; unused.csv should not exist")
	}
	if got := strings.Join(w.Files(), ","); got != "mem.csv,sub/raw.csv" {
		t.Errorf("Files() = %s", got)
	}
}

func TestWriterWithoutFiles(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs(), "/out")
	if err := w.WriteRow("x"); err == nil {
		t.Error("expected error")
	}
}

func TestLifecycleWriter(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLifecycleWriter(fs, "/out", File{Name: "lc.csv", Columns: []string{"n"}})

	if err := l.WriteRow("early"); err == nil {
		t.Error("expected error before Start")
	}

	for id := range 2 {
		if err := l.Start(id); err != nil {
			t.Fatalf("Start(%d): %v", id, err)
		}
		if err := l.WriteRow("row"); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
		if err := l.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
	}
	// A lifecycle without rows produces no files.
	_ = l.Start(2)
	_ = l.End()

	if got := strings.Join(l.Files(), ","); got != "Lifecycles/00/lc.csv,Lifecycles/01/lc.csv" {
		t.Errorf("Files() = %s", got)
	}
	if got := readFile(t, fs, "/out/Lifecycles/01/lc.csv"); got != "n\nrow\n" {
		t.Errorf("content = %q", got)
	}
}

func TestLifecycleWriterStartEndsPrevious(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLifecycleWriter(fs, "/out", File{Name: "lc.csv"})
	_ = l.Start(0)
	_ = l.WriteRow("a")
	_ = l.Start(1)
	if got := strings.Join(l.Files(), ","); got != "Lifecycles/00/lc.csv" {
		t.Errorf("Files() = %s", got)
	}
}
