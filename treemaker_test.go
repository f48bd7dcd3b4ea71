package ecalveto

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rtree"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

func init() {
	SetLogger(nil)
}

type rawHits struct {
	n              int32
	pdgID, trackID []int32
	x, y, z        []float32
	px, py, pz     []float32
}

func (h *rawHits) writeVars(prefix, count string) []rtree.WriteVar {
	return []rtree.WriteVar{
		{Name: count, Value: &h.n},
		{Name: prefix + "_pdgID", Value: &h.pdgID, Count: count},
		{Name: prefix + "_trackID", Value: &h.trackID, Count: count},
		{Name: prefix + "_x", Value: &h.x, Count: count},
		{Name: prefix + "_y", Value: &h.y, Count: count},
		{Name: prefix + "_z", Value: &h.z, Count: count},
		{Name: prefix + "_px", Value: &h.px, Count: count},
		{Name: prefix + "_py", Value: &h.py, Count: count},
		{Name: prefix + "_pz", Value: &h.pz, Count: count},
	}
}

func (h *rawHits) set(hits ...ScoringPlaneHit) {
	*h = rawHits{n: int32(len(hits))}
	for _, hit := range hits {
		h.pdgID = append(h.pdgID, hit.PdgID)
		h.trackID = append(h.trackID, hit.TrackID)
		h.x = append(h.x, float32(hit.Position.X))
		h.y = append(h.y, float32(hit.Position.Y))
		h.z = append(h.z, float32(hit.Position.Z))
		h.px = append(h.px, float32(hit.Momentum.X))
		h.py = append(h.py, float32(hit.Momentum.Y))
		h.pz = append(h.pz, float32(hit.Momentum.Z))
	}
}

// writeRawEvents writes events in the raw event tree layout of v. Veto
// scalars of event i are set to i+1, array elements j to i+1+j.
func writeRawEvents(t *testing.T, fname string, v *Variant, events []*Event) {
	t.Helper()
	f, err := groot.Create(fname)
	require.NoError(t, err)
	defer f.Close()

	var (
		nRegions     int32
		scalarInts   = map[string]*int32{}
		scalarFloats = map[string]*float32{}
		arrayInts    = map[string]*[]int32{}
		arrayFloats  = map[string]*[]float32{}
		target, ecal rawHits
		wvars        = []rtree.WriteVar{{Name: nRegionsBranch, Value: &nRegions}}
	)
	for _, feat := range v.TreeSchema().Features() {
		src := feat.Source
		if src == nil {
			continue
		}
		switch {
		case src.Index < 0 && feat.Kind == Int:
			scalarInts[src.Field] = new(int32)
			wvars = append(wvars, rtree.WriteVar{Name: src.Field, Value: scalarInts[src.Field]})
		case src.Index < 0:
			scalarFloats[src.Field] = new(float32)
			wvars = append(wvars, rtree.WriteVar{Name: src.Field, Value: scalarFloats[src.Field]})
		case feat.Kind == Int:
			if _, ok := arrayInts[src.Field]; !ok {
				arrayInts[src.Field] = new([]int32)
				wvars = append(wvars, rtree.WriteVar{Name: src.Field, Value: arrayInts[src.Field], Count: nRegionsBranch})
			}
		default:
			if _, ok := arrayFloats[src.Field]; !ok {
				arrayFloats[src.Field] = new([]float32)
				wvars = append(wvars, rtree.WriteVar{Name: src.Field, Value: arrayFloats[src.Field], Count: nRegionsBranch})
			}
		}
	}
	wvars = append(wvars, target.writeVars(targetSPPrefix, "nTargetSPHits")...)
	wvars = append(wvars, ecal.writeVars(ecalSPPrefix, "nEcalSPHits")...)

	w, err := rtree.NewWriter(f, DefaultEventTree, wvars)
	require.NoError(t, err)

	for i, ev := range events {
		x := float64(i + 1)
		nRegions = NRegions
		for _, p := range scalarInts {
			*p = int32(x)
		}
		for _, p := range scalarFloats {
			*p = float32(x)
		}
		for _, p := range arrayInts {
			*p = make([]int32, NRegions)
			for j := range *p {
				(*p)[j] = int32(x) + int32(j)
			}
		}
		for _, p := range arrayFloats {
			*p = make([]float32, NRegions)
			for j := range *p {
				(*p)[j] = float32(x) + float32(j)
			}
		}
		target.set(ev.TargetSPHits...)
		ecal.set(ev.EcalSPHits...)
		_, err := w.Write()
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func testEvents() []*Event {
	geom := DefaultGeometry()
	tsp := electronHit(float64(float32(geom.TargetSPZ)), r3.Vec{X: 30, Y: 40, Z: 1000})
	esp := electronHit(float64(float32(geom.EcalSPZ)), r3.Vec{Z: 900})
	return []*Event{
		{TargetSPHits: []ScoringPlaneHit{tsp}, EcalSPHits: []ScoringPlaneHit{esp}},
		{EcalSPHits: []ScoringPlaneHit{esp}},
		{},
	}
}

func TestEventReader(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "raw.root")
	writeRawEvents(t, fname, Gabrielle, testEvents())

	r, err := NewEventReader(DefaultEventTree, []string{fname}, Gabrielle.TreeSchema())
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, int64(3), r.Entries())

	var events []*Event
	require.NoError(t, r.Read(0, -1, func(ev *Event) error {
		events = append(events, ev)
		return nil
	}))
	require.Len(t, events, 3)

	ev := events[1]
	assert.Equal(t, int64(1), ev.Number)
	assert.Equal(t, 2.0, ev.Veto.Scalars["nReadoutHits"])
	assert.Equal(t, 2.0, ev.Veto.Scalars["summedDet"])
	assert.Equal(t, []float64{2, 3, 4, 5, 6}, ev.Veto.Arrays["outsideContainmentNHits"])
	assert.Empty(t, ev.TargetSPHits)
	require.Len(t, ev.EcalSPHits, 1)
	assert.Equal(t, int32(11), ev.EcalSPHits[0].PdgID)
	assert.Equal(t, 900.0, ev.EcalSPHits[0].Momentum.Z)

	require.Len(t, events[0].TargetSPHits, 1)
	assert.Equal(t, 30.0, events[0].TargetSPHits[0].Momentum.X)

	// partial range
	var n int
	require.NoError(t, r.Read(1, 2, func(ev *Event) error {
		assert.Equal(t, int64(1), ev.Number)
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestEventReaderMissingTree(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "raw.root")
	writeRawEvents(t, fname, Segmipx, testEvents())

	_, err := NewEventReader("Events", []string{fname}, Segmipx.TreeSchema())
	assert.Error(t, err)
	_, err = NewEventReader(DefaultEventTree, nil, Segmipx.TreeSchema())
	assert.Error(t, err)
}

func TestTreePipeline(t *testing.T) {
	tmp := t.TempDir()
	raw := filepath.Join(tmp, "raw.root")
	v := Segmipx
	writeRawEvents(t, raw, v, testEvents())

	scr, err := NewScratch(tmp, "sig")
	require.NoError(t, err)
	out := filepath.Join(tmp, "flat")

	reader, err := NewEventReader(DefaultEventTree, []string{raw}, v.TreeSchema())
	require.NoError(t, err)
	defer reader.Close()
	x, err := NewExtractor(v, DefaultGeometry())
	require.NoError(t, err)
	router, err := NewRouter(false, nil, 5)
	require.NoError(t, err)

	tm, err := NewTreeMaker("sig_unsorted.root", FlatTree, x.Schema(), scr.Dir, out)
	require.NoError(t, err)
	job, err := NewTreeJob(x, router, map[Category]Sink{Unsorted: tm})
	require.NoError(t, err)

	proc := &Process{ID: "sig", Scratch: scr, Max: -1, PFreq: 1}
	require.NoError(t, proc.RunEvents(reader, job.Process))
	assert.Equal(t, int64(3), proc.Processed())
	assert.Equal(t, map[Category]int64{Unsorted: 3}, job.Counts())

	flat, err := tm.Close()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "sig_unsorted.root"), flat)
	assert.NoFileExists(t, filepath.Join(scr.Dir, "sig_unsorted.root"))
	require.NoError(t, scr.Cleanup())
	assert.NoDirExists(t, scr.Dir)

	// flat rows
	fr, err := NewFlatReader([]string{flat}, v.TreeSchema())
	require.NoError(t, err)
	var rows []*Vector
	require.NoError(t, fr.Read(0, -1, func(_ int64, row *Vector) error {
		rows = append(rows, row)
		return nil
	}))
	require.NoError(t, fr.Close())
	require.Len(t, rows, 3)
	assert.Equal(t, 1.0, rows[0].MustGet(IsAtTSP))
	assert.InDelta(t, 50.0, rows[0].MustGet(RecoilPT), 1e-4)
	assert.Equal(t, 1.0, rows[0].MustGet("firstNearPhLayer"))
	assert.Equal(t, 0.0, rows[1].MustGet(IsAtTSP))
	assert.Equal(t, 1.0, rows[1].MustGet(IsAtESP))
	assert.Equal(t, 3.0, rows[2].MustGet("epDot"))

	// training sample skips the event without target hit
	s, err := LoadSample([]string{flat}, v, -1, 1)
	require.NoError(t, err)
	assert.Len(t, s.Rows, 2)
	s, err = LoadSample([]string{flat, flat}, v, 3, 1)
	require.NoError(t, err)
	assert.Len(t, s.Rows, 3)

	// evaluation
	ann, err := NewAnnotator(v, constPredictor{n: v.ModelSchema().Len(), val: 0.75}, 0)
	require.NoError(t, err)
	etm, err := NewTreeMaker("sig_segmipx_eval.root", FlatTree, v.EvalSchema(), tmp, out)
	require.NoError(t, err)
	fr, err = NewFlatReader([]string{flat}, v.TreeSchema())
	require.NoError(t, err)
	defer fr.Close()
	eproc := &Process{ID: "sig", Max: 2}
	require.NoError(t, eproc.RunFlat(fr, (&EvalJob{Annotator: ann, Sink: etm}).Process))
	evalFile, err := etm.Close()
	require.NoError(t, err)
	assert.Equal(t, int64(2), etm.Entries())

	h := NewDiscHist("sig")
	require.NoError(t, h.FillFromTrees([]string{evalFile}, v))
	assert.Equal(t, 2.0, h.Entries())
	eff, _ := h.EfficiencyForCut(0.7)
	assert.Equal(t, 1.0, eff)
}

func TestTreeJobNeedsAllSinks(t *testing.T) {
	x, err := NewExtractor(Segmipx, DefaultGeometry())
	require.NoError(t, err)
	router, err := NewRouter(true, &CellMap{IDs: []int64{0}, Centers: []r2.Vec{{}}}, 5)
	require.NoError(t, err)
	_, err = NewTreeJob(x, router, map[Category]Sink{EGIn: &recordSink{}})
	assert.Error(t, err)
}

func spHit(z, x, y, pz float64) ScoringPlaneHit {
	return ScoringPlaneHit{PdgID: 11, TrackID: 1, Position: r3.Vec{X: x, Y: y, Z: z}, Momentum: r3.Vec{Z: pz}}
}

func TestTreePipelineFiducial(t *testing.T) {
	tmp := t.TempDir()
	geom := DefaultGeometry()
	tz := float64(float32(geom.TargetSPZ))
	ez := float64(float32(geom.EcalSPZ))

	// straight tracks: the electron lands at its ECal hit, the photon at
	// the target hit of the electron
	events := []*Event{
		{TargetSPHits: []ScoringPlaneHit{spHit(tz, 0, 0, 1000)}, EcalSPHits: []ScoringPlaneHit{spHit(ez, 0, 0, 900)}},
		{EcalSPHits: []ScoringPlaneHit{spHit(ez, 100, 0, 900)}},
		{TargetSPHits: []ScoringPlaneHit{spHit(tz, 100, 0, 1000)}, EcalSPHits: []ScoringPlaneHit{spHit(ez, 300, 0, 900)}},
		{TargetSPHits: []ScoringPlaneHit{spHit(tz, 300, 300, 1000)}, EcalSPHits: []ScoringPlaneHit{spHit(ez, 300, 0, 900)}},
		{},
	}
	v := Segmipx
	raw := filepath.Join(tmp, "raw.root")
	writeRawEvents(t, raw, v, events)

	cells, err := LoadCellMap(writeCellMap(t, "# id x y\n0\t0.0\t0.0\n1  100.0   0.0\n"))
	require.NoError(t, err)
	router, err := NewRouter(true, cells, geom.CellRadius)
	require.NoError(t, err)
	x, err := NewExtractor(v, geom)
	require.NoError(t, err)
	reader, err := NewEventReader(DefaultEventTree, []string{raw}, v.TreeSchema())
	require.NoError(t, err)
	defer reader.Close()

	out := filepath.Join(tmp, "flat")
	makers := make(map[Category]*TreeMaker)
	sinks := make(map[Category]Sink)
	for _, cat := range router.Categories() {
		tm, err := NewTreeMaker("pn_"+cat.String()+".root", FlatTree, x.Schema(), tmp, out)
		require.NoError(t, err)
		makers[cat], sinks[cat] = tm, tm
	}
	require.Len(t, sinks, 4)
	job, err := NewTreeJob(x, router, sinks)
	require.NoError(t, err)
	require.NoError(t, (&Process{ID: "pn", Max: -1}).RunEvents(reader, job.Process))

	want := map[Category]int64{EGIn: 1, EIn: 1, GIn: 1, None: 2}
	assert.Equal(t, want, job.Counts())
	for cat, tm := range makers {
		fname, err := tm.Close()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(out, "pn_"+cat.String()+".root"), fname)

		fr, err := NewFlatReader([]string{fname}, v.TreeSchema())
		require.NoError(t, err)
		var n int64
		require.NoError(t, fr.Read(0, -1, func(_ int64, _ *Vector) error {
			n++
			return nil
		}))
		require.NoError(t, fr.Close())
		assert.Equal(t, want[cat], n, cat.String())
	}
}

func TestTreeMakerAbort(t *testing.T) {
	tmp := t.TempDir()
	work := filepath.Join(tmp, "work")
	out := filepath.Join(tmp, "out")
	require.NoError(t, os.Mkdir(work, 0o755))
	x, err := NewExtractor(Segmipx, DefaultGeometry())
	require.NoError(t, err)
	router, err := NewRouter(false, nil, 5)
	require.NoError(t, err)

	tm, err := NewTreeMaker("g_unsorted.root", FlatTree, x.Schema(), work, out)
	require.NoError(t, err)
	job, err := NewTreeJob(x, router, map[Category]Sink{Unsorted: tm})
	require.NoError(t, err)

	raw := filepath.Join(tmp, "raw.root")
	writeRawEvents(t, raw, Segmipx, testEvents())
	reader, err := NewEventReader(DefaultEventTree, []string{raw}, Segmipx.TreeSchema())
	require.NoError(t, err)
	defer reader.Close()

	errBad := errors.New("bad event")
	err = (&Process{ID: "g", Max: -1}).RunEvents(reader, func(ev *Event) error {
		if ev.Number == 1 {
			return errBad
		}
		return job.Process(ev)
	})
	require.ErrorIs(t, err, errBad)
	assert.Equal(t, int64(1), tm.Entries())

	require.NoError(t, tm.Abort())
	assert.NoFileExists(t, filepath.Join(work, "g_unsorted.root"))
	assert.NoFileExists(t, filepath.Join(out, "g_unsorted.root"))
	require.NoError(t, tm.Abort())
	_, err = tm.Close()
	assert.Error(t, err)

	// abort after a successful close keeps the output
	tm, err = NewTreeMaker("ok.root", FlatTree, x.Schema(), work, out)
	require.NoError(t, err)
	require.NoError(t, tm.Fill(x.Schema().Defaults()))
	fname, err := tm.Close()
	require.NoError(t, err)
	require.NoError(t, tm.Abort())
	assert.FileExists(t, fname)
}
