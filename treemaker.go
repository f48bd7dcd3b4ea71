package ecalveto

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"
)

// TreeMaker writes one flat tree row per Fill. The file is written in a
// working directory and moved to the output directory on Close.
type TreeMaker struct {
	schema *Schema
	name   string
	work   string
	outDir string

	f *riofs.File
	w rtree.Writer

	ints   []int32
	floats []float64
	row    []float64
	n      int64
	closed bool
}

func NewTreeMaker(fname, tname string, schema *Schema, workDir, outDir string) (*TreeMaker, error) {
	tm := &TreeMaker{
		schema: schema,
		name:   fname,
		work:   filepath.Join(workDir, fname),
		outDir: outDir,
		ints:   make([]int32, schema.Len()),
		floats: make([]float64, schema.Len()),
		row:    make([]float64, schema.Len()),
	}

	f, err := groot.Create(tm.work)
	if err != nil {
		return nil, fmt.Errorf("could not create %q: %w", tm.work, err)
	}
	tm.f = f

	wvars := make([]rtree.WriteVar, schema.Len())
	for i, feat := range schema.Features() {
		wvars[i].Name = feat.Name
		switch feat.Kind {
		case Int:
			wvars[i].Value = &tm.ints[i]
		default:
			wvars[i].Value = &tm.floats[i]
		}
	}

	tm.w, err = rtree.NewWriter(f, tname, wvars)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not create tree %q in %q: %w", tname, tm.work, err)
	}
	return tm, nil
}

func (tm *TreeMaker) Schema() *Schema { return tm.schema }

// Entries returns the number of rows filled so far.
func (tm *TreeMaker) Entries() int64 { return tm.n }

// Fill commits v as one row. Columns are matched by name.
func (tm *TreeMaker) Fill(v *Vector) error {
	if err := tm.schema.Project(v, tm.row); err != nil {
		return fmt.Errorf("could not fill %q: %w", tm.name, err)
	}
	for i, x := range tm.row {
		switch tm.schema.Feature(i).Kind {
		case Int:
			tm.ints[i] = int32(x)
		default:
			tm.floats[i] = x
		}
	}
	if _, err := tm.w.Write(); err != nil {
		return fmt.Errorf("could not write row %d of %q: %w", tm.n, tm.name, err)
	}
	tm.n++
	return nil
}

// Close flushes the tree and moves the file into the output directory.
// It returns the final path.
func (tm *TreeMaker) Close() (string, error) {
	if tm.closed {
		return "", fmt.Errorf("%q already closed", tm.name)
	}
	if err := tm.close(); err != nil {
		return "", err
	}

	if tm.outDir == "" {
		return tm.work, nil
	}
	if err := os.MkdirAll(tm.outDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create output directory: %w", err)
	}
	dst := filepath.Join(tm.outDir, tm.name)
	if err := moveFile(tm.work, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Abort closes the file and removes it from the working directory. Nothing
// is written to the output directory. Abort after Close is a no-op.
func (tm *TreeMaker) Abort() error {
	if tm.closed {
		return nil
	}
	cerr := tm.close()
	if err := os.Remove(tm.work); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(cerr, fmt.Errorf("could not remove %q: %w", tm.work, err))
	}
	return cerr
}

func (tm *TreeMaker) close() error {
	tm.closed = true
	werr := tm.w.Close()
	ferr := tm.f.Close()
	if err := errors.Join(werr, ferr); err != nil {
		return fmt.Errorf("could not close %q: %w", tm.work, err)
	}
	return nil
}

func moveFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// rename fails across filesystems
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("could not copy %q to %q: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not close %q: %w", dst, err)
	}
	return os.Remove(src)
}
