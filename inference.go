package ecalveto

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/dmitryikh/leaves"
)

// Predictor scores one event given its features in training column order.
// nEstimators limits the number of trees used; 0 uses all of them.
// *leaves.Ensemble implements it.
type Predictor interface {
	PredictSingle(fvals []float64, nEstimators int) float64
	NFeatures() int
}

// Model is a trained BDT ready for scoring.
type Model struct {
	Predictor
	Path string
	// NEstimators is the number of trees to use, from the model card when
	// training stopped early.
	NEstimators int
	Card        *ModelCard
}

// LoadModel loads an XGBoost model and, when present, its model card. The
// card must describe the same variant and column order.
func LoadModel(path string, v *Variant) (*Model, error) {
	ens, err := leaves.XGEnsembleFromFile(path, true)
	if err != nil {
		return nil, fmt.Errorf("could not load model %q: %w", path, err)
	}
	m := &Model{Predictor: ens, Path: path}

	card, err := ReadModelCard(CardPath(path))
	switch {
	case err == nil:
		if err := card.Check(v); err != nil {
			return nil, fmt.Errorf("model %q: %w", path, err)
		}
		m.Card = card
		m.NEstimators = card.NEstimators()
	case errors.Is(err, os.ErrNotExist):
		Logf("no model card for %q, using all trees", path)
	default:
		return nil, err
	}
	return m, nil
}

// Annotator adds the discriminant of a variant to flat-tree rows.
type Annotator struct {
	variant     *Variant
	model       Predictor
	nEstimators int
	buf         []float64
}

func NewAnnotator(v *Variant, model Predictor, nEstimators int) (*Annotator, error) {
	if got, want := model.NFeatures(), v.ModelSchema().Len(); got != want {
		return nil, fmt.Errorf("model expects %d features, variant %q has %d", got, v.Name, want)
	}
	return &Annotator{
		variant:     v,
		model:       model,
		nEstimators: nEstimators,
		buf:         make([]float64, v.ModelSchema().Len()),
	}, nil
}

// Score projects in onto the model columns by name and returns the
// discriminant.
func (a *Annotator) Score(in *Vector) (float64, error) {
	if err := a.variant.ModelSchema().Project(in, a.buf); err != nil {
		return 0, err
	}
	pred := a.model.PredictSingle(a.buf, a.nEstimators)
	if math.IsNaN(pred) || pred < 0 || pred > 1 {
		return 0, fmt.Errorf("discriminant %v out of [0, 1]", pred)
	}
	return pred, nil
}

// Annotate returns an evaluation row: the model inputs and bookkeeping
// fields of in, copied as is, plus the discriminant.
func (a *Annotator) Annotate(in *Vector) (*Vector, error) {
	disc, err := a.Score(in)
	if err != nil {
		return nil, err
	}
	out := a.variant.EvalSchema().Defaults()
	for i := 0; i < out.schema.Len(); i++ {
		name := out.schema.Feature(i).Name
		if name == a.variant.DiscName() {
			out.values[i] = disc
			continue
		}
		x, ok := in.Get(name)
		if !ok {
			return nil, fmt.Errorf("input row has no %q", name)
		}
		out.values[i] = x
	}
	return out, nil
}

// EvalJob annotates flat-tree rows and writes them out.
type EvalJob struct {
	Annotator *Annotator
	Sink      Sink
}

func (j *EvalJob) Process(in *Vector) error {
	out, err := j.Annotator.Annotate(in)
	if err != nil {
		return err
	}
	return j.Sink.Fill(out)
}
