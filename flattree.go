package ecalveto

import (
	"fmt"

	"go-hep.org/x/hep/groot/rtree"
)

// FlatTree is the name of the flat feature trees.
const FlatTree = "EcalVeto"

// FlatReader reads rows of a flat feature tree into vectors of a schema.
// Int features are int32 branches, Float features float64 branches.
type FlatReader struct {
	schema *Schema
	tree   rtree.Tree
	close  func() error

	ints   []int32
	floats []float64
	rvars  []rtree.ReadVar
}

func NewFlatReader(files []string, schema *Schema) (*FlatReader, error) {
	return NewFlatReaderTree(FlatTree, files, schema)
}

func NewFlatReaderTree(tname string, files []string, schema *Schema) (*FlatReader, error) {
	tree, closer, err := openChain(tname, files)
	if err != nil {
		return nil, err
	}
	r := &FlatReader{
		schema: schema,
		tree:   tree,
		close:  closer,
		ints:   make([]int32, schema.Len()),
		floats: make([]float64, schema.Len()),
	}
	for i, f := range schema.Features() {
		rv := rtree.ReadVar{Name: f.Name}
		switch f.Kind {
		case Int:
			rv.Value = &r.ints[i]
		default:
			rv.Value = &r.floats[i]
		}
		r.rvars = append(r.rvars, rv)
	}
	return r, nil
}

func (r *FlatReader) Entries() int64 { return r.tree.Entries() }

// Read calls fn with a fresh vector for each entry in [beg, end).
// end < 0 reads to the last entry.
func (r *FlatReader) Read(beg, end int64, fn func(entry int64, v *Vector) error) error {
	if end < 0 || end > r.tree.Entries() {
		end = r.tree.Entries()
	}
	if beg >= end {
		return nil
	}
	rd, err := rtree.NewReader(r.tree, r.rvars, rtree.WithRange(beg, end))
	if err != nil {
		return fmt.Errorf("could not create %q reader: %w", r.tree.Name(), err)
	}
	defer rd.Close()

	return rd.Read(func(ctx rtree.RCtx) error {
		v := r.schema.Defaults()
		for i := 0; i < r.schema.Len(); i++ {
			switch r.schema.Feature(i).Kind {
			case Int:
				v.values[i] = float64(r.ints[i])
			default:
				v.values[i] = r.floats[i]
			}
		}
		return fn(ctx.Entry, v)
	})
}

func (r *FlatReader) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
