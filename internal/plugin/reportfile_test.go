package plugin

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"tracelyse/internal/outdir"
)

func TestReportFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"syserrors", "syserrors.txt"},
		{"SysErrors", "sys_errors.txt"},
		{"ContextPlugin", "context_plugin.txt"},
		{"sysmem_", "sysmem.txt"},
	}
	for _, tt := range tests {
		if got := ReportFileName(tt.in); got != tt.want {
			t.Errorf("ReportFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReportWriter(t *testing.T) {
	fsys := afero.NewMemMapFs()
	env := Env{FS: fsys, Dir: outdir.New("out")}
	w := NewReportWriter(env, "MemoryCheck")

	name, err := w.Write(func() (string, error) { return "all good\n", nil })
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if name != "memory_check.txt" || name != w.Name() {
		t.Errorf("name = %q", name)
	}
	data, err := afero.ReadFile(fsys, filepath.Join("out", "extracted_files", "memory_check.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "all good\n" {
		t.Errorf("content = %q", data)
	}
}

func TestReportWriterNoReport(t *testing.T) {
	fsys := afero.NewMemMapFs()
	w := NewReportWriter(Env{FS: fsys, Dir: outdir.New("out")}, "quiet")

	name, err := w.Write(func() (string, error) { return "", nil })
	if err != nil || name != "" {
		t.Fatalf("Write = %q, %v", name, err)
	}
	if ok, _ := afero.Exists(fsys, filepath.Join("out", "extracted_files", "quiet.txt")); ok {
		t.Error("empty report must not create a file")
	}

	boom := errors.New("boom")
	if _, err := w.Write(func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
