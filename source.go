package ecalveto

import (
	"fmt"
	"path/filepath"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultEventTree is the name of the tree holding raw simulated events.
const DefaultEventTree = "LDMX_Events"

// Branch names of the raw event tree.
const (
	nRegionsBranch = "nRegions"
	targetSPPrefix = "targetSPHit"
	ecalSPPrefix   = "ecalSPHit"
)

// ExpandInputs resolves glob patterns, keeping the argument order.
func ExpandInputs(patterns []string) ([]string, error) {
	var files []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input file matches %q", pat)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// openChain opens the named tree across all files.
func openChain(tname string, files []string) (rtree.Tree, func() error, error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no input files")
	}
	for _, fname := range files {
		f, err := groot.Open(fname)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open %q: %w", fname, err)
		}
		_, err = f.Get(tname)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("could not find tree %q in %q: %w", tname, fname, err)
		}
	}
	t, closer, err := rtree.ChainOf(tname, files...)
	if err != nil {
		return nil, nil, fmt.Errorf("could not chain %q trees: %w", tname, err)
	}
	return t, closer, nil
}

type hitBuffers struct {
	n              int32
	pdgID, trackID []int32
	x, y, z        []float32
	px, py, pz     []float32
}

func (b *hitBuffers) readVars(prefix string) []rtree.ReadVar {
	count := "n" + upperFirst(prefix) + "s"
	return []rtree.ReadVar{
		{Name: count, Value: &b.n},
		{Name: prefix + "_pdgID", Value: &b.pdgID},
		{Name: prefix + "_trackID", Value: &b.trackID},
		{Name: prefix + "_x", Value: &b.x},
		{Name: prefix + "_y", Value: &b.y},
		{Name: prefix + "_z", Value: &b.z},
		{Name: prefix + "_px", Value: &b.px},
		{Name: prefix + "_py", Value: &b.py},
		{Name: prefix + "_pz", Value: &b.pz},
	}
}

func (b *hitBuffers) hits() []ScoringPlaneHit {
	hits := make([]ScoringPlaneHit, len(b.pdgID))
	for i := range hits {
		hits[i] = ScoringPlaneHit{
			PdgID:    b.pdgID[i],
			TrackID:  b.trackID[i],
			Position: r3.Vec{X: float64(b.x[i]), Y: float64(b.y[i]), Z: float64(b.z[i])},
			Momentum: r3.Vec{X: float64(b.px[i]), Y: float64(b.py[i]), Z: float64(b.pz[i])},
		}
	}
	return hits
}

func upperFirst(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// EventReader reads raw events from a chain of ROOT files. Veto scalars are
// stored as int32 or float32 branches named after their source field, veto
// arrays as slices counted by nRegions, and scoring plane hits as parallel
// slices counted by nTargetSPHits and nEcalSPHits.
type EventReader struct {
	tree  rtree.Tree
	close func() error

	scalarInts   map[string]*int32
	scalarFloats map[string]*float32
	arrayInts    map[string]*[]int32
	arrayFloats  map[string]*[]float32
	nRegions     int32

	target, ecal hitBuffers
	rvars        []rtree.ReadVar
}

// NewEventReader prepares reading of the veto fields the schema needs.
func NewEventReader(tname string, files []string, schema *Schema) (*EventReader, error) {
	tree, closer, err := openChain(tname, files)
	if err != nil {
		return nil, err
	}
	r := &EventReader{
		tree:         tree,
		close:        closer,
		scalarInts:   make(map[string]*int32),
		scalarFloats: make(map[string]*float32),
		arrayInts:    make(map[string]*[]int32),
		arrayFloats:  make(map[string]*[]float32),
	}

	hasArrays := false
	for _, f := range schema.Features() {
		if f.Source == nil {
			continue
		}
		name := f.Source.Field
		switch {
		case f.Source.Index < 0 && f.Kind == Int:
			if _, ok := r.scalarInts[name]; !ok {
				r.scalarInts[name] = new(int32)
				r.rvars = append(r.rvars, rtree.ReadVar{Name: name, Value: r.scalarInts[name]})
			}
		case f.Source.Index < 0:
			if _, ok := r.scalarFloats[name]; !ok {
				r.scalarFloats[name] = new(float32)
				r.rvars = append(r.rvars, rtree.ReadVar{Name: name, Value: r.scalarFloats[name]})
			}
		case f.Kind == Int:
			hasArrays = true
			if _, ok := r.arrayInts[name]; !ok {
				r.arrayInts[name] = new([]int32)
				r.rvars = append(r.rvars, rtree.ReadVar{Name: name, Value: r.arrayInts[name]})
			}
		default:
			hasArrays = true
			if _, ok := r.arrayFloats[name]; !ok {
				r.arrayFloats[name] = new([]float32)
				r.rvars = append(r.rvars, rtree.ReadVar{Name: name, Value: r.arrayFloats[name]})
			}
		}
	}
	if hasArrays {
		r.rvars = append([]rtree.ReadVar{{Name: nRegionsBranch, Value: &r.nRegions}}, r.rvars...)
	}
	r.rvars = append(r.rvars, r.target.readVars(targetSPPrefix)...)
	r.rvars = append(r.rvars, r.ecal.readVars(ecalSPPrefix)...)
	return r, nil
}

func (r *EventReader) Entries() int64 { return r.tree.Entries() }

// Read calls fn for each event in [beg, end). end < 0 reads to the last entry.
func (r *EventReader) Read(beg, end int64, fn func(ev *Event) error) error {
	if end < 0 || end > r.tree.Entries() {
		end = r.tree.Entries()
	}
	if beg >= end {
		return nil
	}
	rd, err := rtree.NewReader(r.tree, r.rvars, rtree.WithRange(beg, end))
	if err != nil {
		return fmt.Errorf("could not create event reader: %w", err)
	}
	defer rd.Close()

	return rd.Read(func(ctx rtree.RCtx) error {
		ev := &Event{
			Number: ctx.Entry,
			Veto: VetoResult{
				Scalars: make(map[string]float64, len(r.scalarInts)+len(r.scalarFloats)),
				Arrays:  make(map[string][]float64, len(r.arrayInts)+len(r.arrayFloats)),
			},
			TargetSPHits: r.target.hits(),
			EcalSPHits:   r.ecal.hits(),
		}
		for name, v := range r.scalarInts {
			ev.Veto.Scalars[name] = float64(*v)
		}
		for name, v := range r.scalarFloats {
			ev.Veto.Scalars[name] = float64(*v)
		}
		for name, v := range r.arrayInts {
			arr := make([]float64, len(*v))
			for i, x := range *v {
				arr[i] = float64(x)
			}
			ev.Veto.Arrays[name] = arr
		}
		for name, v := range r.arrayFloats {
			arr := make([]float64, len(*v))
			for i, x := range *v {
				arr[i] = float64(x)
			}
			ev.Veto.Arrays[name] = arr
		}
		return fn(ev)
	})
}

func (r *EventReader) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
