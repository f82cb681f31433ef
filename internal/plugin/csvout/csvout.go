// Package csvout writes plugin output as CSV files under the extract
// directory. Files are created lazily on the first row and listed by Files
// so a plugin can attach them to its result.
package csvout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"tracelyse/internal/outdir"
)

// File declares one CSV file. Name is relative to the writer's directory and
// may contain subdirectories. A header row is written when Columns is non-empty.
type File struct {
	Name    string
	Columns []string
}

type openFile struct {
	f afero.File
	w *csv.Writer
}

// Writer writes a set of CSV files. The first declared file is the default.
type Writer struct {
	fs    afero.Fs
	dir   string
	files []File
	open  map[string]*openFile
	order []string // names in creation order
}

// NewWriter creates a writer for files under dir.
func NewWriter(fs afero.Fs, dir string, files ...File) *Writer {
	return &Writer{
		fs:    fs,
		dir:   dir,
		files: files,
		open:  make(map[string]*openFile),
	}
}

// WriteRow writes a row to the default file.
func (w *Writer) WriteRow(row ...string) error {
	if len(w.files) == 0 {
		return errors.New("csv writer has no files")
	}
	return w.WriteRowTo(w.files[0].Name, row...)
}

// WriteRowTo writes a row to the named file.
func (w *Writer) WriteRowTo(name string, row ...string) error {
	return w.WriteRows(name, [][]string{row})
}

// WriteRows writes several rows to the named file.
func (w *Writer) WriteRows(name string, rows [][]string) error {
	of, err := w.file(name)
	if err != nil {
		return err
	}
	if err := of.w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (w *Writer) file(name string) (*openFile, error) {
	if of, ok := w.open[name]; ok {
		return of, nil
	}
	idx := slices.IndexFunc(w.files, func(f File) bool { return f.Name == name })
	if idx < 0 {
		return nil, fmt.Errorf("undeclared csv file %q", name)
	}

	path := filepath.Join(w.dir, name)
	if err := outdir.EnsureDir(w.fs, filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := w.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	of := &openFile{f: f, w: csv.NewWriter(f)}
	if cols := w.files[idx].Columns; len(cols) > 0 {
		if err := of.w.Write(cols); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header %s: %w", name, err)
		}
	}
	w.open[name] = of
	w.order = append(w.order, name)
	return of, nil
}

// Close flushes and closes every created file.
func (w *Writer) Close() error {
	var errs []error
	for _, name := range w.order {
		of, ok := w.open[name]
		if !ok {
			continue
		}
		of.w.Flush()
		if err := of.w.Error(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", name, err))
		}
		if err := of.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(w.open, name)
	}
	return errors.Join(errs...)
}

// Files returns the names of created files, relative to the writer's
// directory, in creation order.
func (w *Writer) Files() []string {
	return slices.Clone(w.order)
}

// LifecycleWriter keeps one set of CSV files per lifecycle under
// Lifecycles/NN/ of dir.
type LifecycleWriter struct {
	fs      afero.Fs
	dir     string
	files   []File
	current *Writer
	subdir  string
	all     []string
}

// NewLifecycleWriter creates a writer that opens a new file set on Start.
func NewLifecycleWriter(fs afero.Fs, dir string, files ...File) *LifecycleWriter {
	return &LifecycleWriter{fs: fs, dir: dir, files: files}
}

// Start begins the file set of lifecycle id. An unfinished previous set is
// ended first.
func (l *LifecycleWriter) Start(id int) error {
	var err error
	if l.current != nil {
		err = l.End()
	}
	l.subdir = outdir.LifecycleSubdir(id)
	l.current = NewWriter(l.fs, filepath.Join(l.dir, l.subdir), l.files...)
	return err
}

// WriteRow writes a row to the default file of the current lifecycle.
func (l *LifecycleWriter) WriteRow(row ...string) error {
	if l.current == nil {
		return errors.New("no lifecycle started")
	}
	return l.current.WriteRow(row...)
}

// WriteRowTo writes a row to the named file of the current lifecycle.
func (l *LifecycleWriter) WriteRowTo(name string, row ...string) error {
	if l.current == nil {
		return errors.New("no lifecycle started")
	}
	return l.current.WriteRowTo(name, row...)
}

// End closes the current lifecycle's files and remembers them.
func (l *LifecycleWriter) End() error {
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	for _, name := range l.current.Files() {
		l.all = append(l.all, filepath.Join(l.subdir, name))
	}
	l.current = nil
	return err
}

// Files returns every file written by ended lifecycles, relative to dir.
func (l *LifecycleWriter) Files() []string {
	return slices.Clone(l.all)
}
