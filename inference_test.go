package ecalveto

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weightedPredictor is a logistic function of a weighted sum of features.
type weightedPredictor struct {
	weights []float64
}

func (p *weightedPredictor) PredictSingle(fvals []float64, _ int) float64 {
	var s float64
	for i, w := range p.weights {
		s += w * fvals[i]
	}
	return 1 / (1 + math.Exp(-s))
}

func (p *weightedPredictor) NFeatures() int { return len(p.weights) }

func linearModel(v *Variant) *weightedPredictor {
	w := make([]float64, v.ModelSchema().Len())
	for i := range w {
		w[i] = float64(i+1) / 100
	}
	return &weightedPredictor{weights: w}
}

func TestAnnotatorFeatureCount(t *testing.T) {
	_, err := NewAnnotator(Segmipx, &weightedPredictor{weights: make([]float64, 41)}, 0)
	assert.Error(t, err)
}

func TestAnnotate(t *testing.T) {
	v := Gabrielle
	ann, err := NewAnnotator(v, linearModel(v), 0)
	require.NoError(t, err)

	in := v.TreeSchema().Defaults()
	for i := 0; i < in.Schema().Len(); i++ {
		in.SetAt(i, float64(i%3))
	}
	in.Set(RecoilPT, 12.5)
	in.Set(IsAtTSP, 1)
	before := in.Values()

	out, err := ann.Annotate(in)
	require.NoError(t, err)
	assert.Same(t, v.EvalSchema(), out.Schema())
	assert.Equal(t, before, in.Values())

	disc := out.MustGet(v.DiscName())
	assert.Greater(t, disc, 0.0)
	assert.Less(t, disc, 1.0)
	assert.NotEqual(t, DiscDefault, disc)
	for _, name := range v.ModelSchema().Names() {
		assert.Equal(t, in.MustGet(name), out.MustGet(name), name)
	}
	assert.Equal(t, 12.5, out.MustGet(RecoilPT))
	assert.Equal(t, 1.0, out.MustGet(IsAtTSP))
	assert.Equal(t, 0.0, out.MustGet(IsAtESP))
}

func TestScoreColumnOrderMatters(t *testing.T) {
	v := Segmipx
	ann, err := NewAnnotator(v, linearModel(v), 0)
	require.NoError(t, err)

	in := v.TreeSchema().Defaults()
	in.Set("nReadoutHits", 10)
	in.Set("summedDet", 1)
	base, err := ann.Score(in)
	require.NoError(t, err)

	// swap the values of the first two model columns
	swapped := v.TreeSchema().Defaults()
	swapped.Set("nReadoutHits", 1)
	swapped.Set("summedDet", 10)
	got, err := ann.Score(swapped)
	require.NoError(t, err)
	assert.NotEqual(t, base, got)
}

func TestScoreIgnoresInputLayout(t *testing.T) {
	v := Segmipx
	ann, err := NewAnnotator(v, linearModel(v), 0)
	require.NoError(t, err)

	in := v.TreeSchema().Defaults()
	for i := 0; i < in.Schema().Len(); i++ {
		in.SetAt(i, float64(i))
	}

	// same values, reversed column layout
	feats := v.TreeSchema().Features()
	for i, j := 0, len(feats)-1; i < j; i, j = i+1, j-1 {
		feats[i], feats[j] = feats[j], feats[i]
	}
	rev, err := NewSchema(feats...)
	require.NoError(t, err)
	other := rev.Defaults()
	for _, name := range rev.Names() {
		other.Set(name, in.MustGet(name))
	}

	a, err := ann.Score(in)
	require.NoError(t, err)
	b, err := ann.Score(other)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

type constPredictor struct {
	n   int
	val float64
}

func (p constPredictor) PredictSingle([]float64, int) float64 { return p.val }
func (p constPredictor) NFeatures() int                       { return p.n }

func TestScoreOutOfRange(t *testing.T) {
	n := Segmipx.ModelSchema().Len()
	for _, val := range []float64{math.NaN(), -0.1, 1.5} {
		ann, err := NewAnnotator(Segmipx, constPredictor{n: n, val: val}, 0)
		require.NoError(t, err)
		_, err = ann.Score(Segmipx.TreeSchema().Defaults())
		assert.Error(t, err, "%v", val)
	}
}

type recordSink struct {
	rows []*Vector
}

func (s *recordSink) Fill(v *Vector) error {
	s.rows = append(s.rows, v)
	return nil
}

func TestEvalJob(t *testing.T) {
	n := Segmipx.ModelSchema().Len()
	ann, err := NewAnnotator(Segmipx, constPredictor{n: n, val: 0.25}, 0)
	require.NoError(t, err)
	sink := &recordSink{}
	job := &EvalJob{Annotator: ann, Sink: sink}

	require.NoError(t, job.Process(Segmipx.TreeSchema().Defaults()))
	require.Len(t, sink.rows, 1)
	assert.Equal(t, 0.25, sink.rows[0].MustGet("discValue_segmipx"))
	assert.Equal(t, float64(FirstNearPhLayerNotFound), sink.rows[0].MustGet("firstNearPhLayer"))

	_, err = ann.Annotate(Gabrielle.TreeSchema().Defaults())
	assert.Error(t, err)
}

// testdata/segmipx_weights.model is a binary:logistic gbtree over the 47
// segmipx columns, base score 0, with three trees:
//
//	column 0 <= 50 ? -1 : +1
//	column 1 <= 10 ? -0.5 : +0.5
//	+2
const testModel = "testdata/segmipx_weights.model"

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// modelWithCard copies the test model into a fresh directory and writes a
// card for it unless card is nil.
func modelWithCard(t *testing.T, card *ModelCard) string {
	t.Helper()
	raw, err := os.ReadFile(testModel)
	require.NoError(t, err)
	fname := filepath.Join(t.TempDir(), "bdt_0"+weightsSuffix)
	require.NoError(t, os.WriteFile(fname, raw, 0o644))
	if card != nil {
		require.NoError(t, WriteModelCard(CardPath(fname), card))
	}
	return fname
}

func segmipxRow(c0, c1 float64) *Vector {
	names := Segmipx.ModelSchema().Names()
	in := Segmipx.TreeSchema().Defaults()
	in.Set(names[0], c0)
	in.Set(names[1], c1)
	return in
}

func TestLoadModelWithoutCard(t *testing.T) {
	m, err := LoadModel(testModel, Segmipx)
	require.NoError(t, err)
	assert.Nil(t, m.Card)
	assert.Equal(t, 0, m.NEstimators)
	assert.Equal(t, 47, m.NFeatures())

	ann, err := NewAnnotator(Segmipx, m, m.NEstimators)
	require.NoError(t, err)
	for _, tc := range []struct {
		c0, c1, want float64
	}{
		{100, 0, sigmoid(1 - 0.5 + 2)},
		{0, 20, sigmoid(-1 + 0.5 + 2)},
		{0, 0, sigmoid(-1 - 0.5 + 2)},
	} {
		got, err := ann.Score(segmipxRow(tc.c0, tc.c1))
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 1e-6, "%+v", tc)
	}

	_, err = NewAnnotator(Gabrielle, m, 0)
	assert.Error(t, err)
}

func TestLoadModelCard(t *testing.T) {
	names := Segmipx.ModelSchema().Names()
	fname := modelWithCard(t, &ModelCard{
		Variant:       Segmipx.Name,
		Features:      names,
		Rounds:        3,
		BestIteration: 1,
	})

	m, err := LoadModel(fname, Segmipx)
	require.NoError(t, err)
	require.NotNil(t, m.Card)
	assert.Equal(t, 2, m.NEstimators)

	ann, err := NewAnnotator(Segmipx, m, m.NEstimators)
	require.NoError(t, err)
	got, err := ann.Score(segmipxRow(100, 0))
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(1-0.5), got, 1e-6)

	for _, c0 := range []float64{-1e6, 0, 50, 51, 1e6} {
		for _, c1 := range []float64{-1e6, 10, 11, 1e6} {
			got, err := ann.Score(segmipxRow(c0, c1))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestLoadModelRejectsCard(t *testing.T) {
	names := Segmipx.ModelSchema().Names()
	permuted := append([]string(nil), names...)
	permuted[0], permuted[1] = permuted[1], permuted[0]

	for name, card := range map[string]*ModelCard{
		"permuted": {Variant: Segmipx.Name, Features: permuted},
		"short":    {Variant: Segmipx.Name, Features: names[:40]},
		"variant":  {Variant: Gabrielle.Name, Features: names},
	} {
		_, err := LoadModel(modelWithCard(t, card), Segmipx)
		assert.Error(t, err, name)
	}

	fname := modelWithCard(t, nil)
	require.NoError(t, os.WriteFile(CardPath(fname), []byte("features: [\n"), 0o644))
	_, err := LoadModel(fname, Segmipx)
	assert.Error(t, err)

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing"+weightsSuffix), Segmipx)
	assert.Error(t, err)
}
