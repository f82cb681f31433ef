// Package outdir manages the output directory layout of an analysis run.
//
// The output directory owns every file a run produces besides the log:
//
//	<root>/
//	  tracelyse_results.xml            (xUnit report, default name)
//	  extracted_files/                 (files written by plugins)
//	    Lifecycles/
//	      00/                          (per-lifecycle plugin output)
//	      01/
//
// Attachment names in the report are relative to extracted_files.
package outdir

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultReport is the default file name of the xUnit report.
const DefaultReport = "tracelyse_results.xml"

// Dir represents an output directory on a filesystem.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path. An empty root means the
// current working directory.
func New(root string) Dir {
	if root == "" {
		root = "."
	}
	return Dir{root: root}
}

// Root returns the output directory path.
func (d Dir) Root() string {
	return d.root
}

// ExtractDir returns the directory for files extracted from traces.
func (d Dir) ExtractDir() string {
	return filepath.Join(d.root, "extracted_files")
}

// LifecycleSubdir returns a lifecycle's directory relative to ExtractDir.
func LifecycleSubdir(id int) string {
	return filepath.Join("Lifecycles", fmt.Sprintf("%02d", id))
}

// LifecycleDir returns the directory for one lifecycle's output.
func (d Dir) LifecycleDir(id int) string {
	return filepath.Join(d.ExtractDir(), LifecycleSubdir(id))
}

// Path joins name onto the root.
func (d Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// ReportPath resolves the report file name. Absolute names are kept as is;
// relative names are placed under the root. An empty name yields the default.
func (d Dir) ReportPath(name string) string {
	if name == "" {
		name = DefaultReport
	}
	if filepath.IsAbs(name) {
		return name
	}
	return d.Path(name)
}

// EnsureExists creates the output directory (and parents) on fs.
func (d Dir) EnsureExists(fs afero.Fs) error {
	if err := fs.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create output directory %s: %w", d.root, err)
	}
	return nil
}

// EnsureDir creates dir (and parents) on fs.
func EnsureDir(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// RunID returns a new identifier for a run, used as the report's testsuite id.
func RunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
