package ecalveto

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Preselect reports whether a flat-tree row is kept for training. Events
// where the recoil electron reached the ECal scoring plane without crossing
// the target scoring plane are dropped.
func Preselect(v *Vector) bool {
	return !(v.MustGet(IsAtTSP) == 0 && v.MustGet(IsAtESP) == 1)
}

// Sample is one labeled set of events, rows in model column order.
type Sample struct {
	Label float64
	Rows  [][]float64

	Train, Test [][]float64
}

// LoadSample reads pre-selected rows of the flat trees in files, keeping at
// most maxEvents of them (maxEvents < 0 keeps all).
func LoadSample(files []string, v *Variant, maxEvents int, label float64) (*Sample, error) {
	r, err := NewFlatReader(files, v.TreeSchema())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	s := &Sample{Label: label}
	model := v.ModelSchema()
	err = r.Read(0, -1, func(_ int64, row *Vector) error {
		if maxEvents >= 0 && len(s.Rows) >= maxEvents {
			return nil
		}
		_, err := s.Add(model, row)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not load sample: %w", err)
	}
	return s, nil
}

// Add projects row onto the model columns and appends it if it passes the
// pre-selection. It reports whether the row was kept.
func (s *Sample) Add(model *Schema, row *Vector) (bool, error) {
	if !Preselect(row) {
		return false, nil
	}
	x := make([]float64, model.Len())
	if err := model.Project(row, x); err != nil {
		return false, err
	}
	s.Rows = append(s.Rows, x)
	return true, nil
}

// Shuffle permutes the rows with rng.
func (s *Sample) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(s.Rows), func(i, j int) {
		s.Rows[i], s.Rows[j] = s.Rows[j], s.Rows[i]
	})
}

// Split uses the first floor(n*frac) rows for training, the rest for testing.
func (s *Sample) Split(frac float64) error {
	if frac < 0 || frac > 1 || math.IsNaN(frac) {
		return fmt.Errorf("train fraction %v not in [0, 1]", frac)
	}
	n := int(float64(len(s.Rows)) * frac)
	s.Train = s.Rows[:n]
	s.Test = s.Rows[n:]
	return nil
}

// NewRand returns the generator used to shuffle samples.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// TrainingSet is the merged signal+background data handed to the booster.
type TrainingSet struct {
	Features []string

	XTrain *mat.Dense
	YTrain []float64
	XTest  *mat.Dense
	YTest  []float64
}

// Merge stacks signal then background rows. NaN entries are replaced by 0.
func Merge(sig, bkg *Sample, features []string) (*TrainingSet, error) {
	set := &TrainingSet{Features: features}
	var err error
	set.XTrain, set.YTrain, err = stack(len(features), sig, bkg, func(s *Sample) [][]float64 { return s.Train })
	if err != nil {
		return nil, fmt.Errorf("training set: %w", err)
	}
	set.XTest, set.YTest, err = stack(len(features), sig, bkg, func(s *Sample) [][]float64 { return s.Test })
	if err != nil {
		return nil, fmt.Errorf("test set: %w", err)
	}
	return set, nil
}

func stack(ncols int, sig, bkg *Sample, part func(*Sample) [][]float64) (*mat.Dense, []float64, error) {
	nrows := len(part(sig)) + len(part(bkg))
	if nrows == 0 {
		return nil, nil, fmt.Errorf("no events")
	}
	x := mat.NewDense(nrows, ncols, nil)
	y := make([]float64, 0, nrows)
	i := 0
	for _, s := range []*Sample{sig, bkg} {
		for _, row := range part(s) {
			if len(row) != ncols {
				return nil, nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), ncols)
			}
			x.SetRow(i, row)
			y = append(y, s.Label)
			i++
		}
	}
	x.Apply(func(_, _ int, v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return v
	}, x)
	for i, v := range y {
		if math.IsNaN(v) {
			y[i] = 0
		}
	}
	return x, y, nil
}

// HasNaN reports whether m holds a NaN.
func HasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}
