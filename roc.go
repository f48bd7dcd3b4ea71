package ecalveto

import (
	"fmt"
	"math"
	"sort"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	discBins     = 10000
	discPlotBins = 100
)

// DiscHist is the distribution of a discriminant on [0, 1]. Values outside
// the range are kept in the first or last bin.
type DiscHist struct {
	Name string
	Fine *hbook.H1D // efficiency computations
	Plot *hbook.H1D // drawing
}

func NewDiscHist(name string) *DiscHist {
	return &DiscHist{
		Name: name,
		Fine: hbook.NewH1D(discBins, 0, 1),
		Plot: hbook.NewH1D(discPlotBins, 0, 1),
	}
}

func (d *DiscHist) Fill(x float64) {
	d.Fine.Fill(clampBin(x, discBins), 1)
	d.Plot.Fill(clampBin(x, discPlotBins), 1)
}

func clampBin(x float64, nbins int) float64 {
	switch {
	case x < 0:
		return 0
	case x >= 1:
		return 1 - 0.5/float64(nbins)
	}
	return x
}

// FillFromTrees fills d with the discriminant of v read from the flat
// evaluation trees in files.
func (d *DiscHist) FillFromTrees(files []string, v *Variant) error {
	schema, err := NewSchema(Feature{Name: v.DiscName(), Kind: Float, Default: DiscDefault})
	if err != nil {
		return err
	}
	r, err := NewFlatReader(files, schema)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Read(0, -1, func(_ int64, row *Vector) error {
		d.Fill(row.At(0))
		return nil
	})
}

func (d *DiscHist) Entries() float64 {
	var n float64
	for i := 0; i < d.Fine.Len(); i++ {
		_, y := d.Fine.XY(i)
		n += y
	}
	return n
}

// passing returns, per bin, its low edge and the fraction of entries at or
// above that edge.
func (d *DiscHist) passing() (edges, effs []float64) {
	n := d.Fine.Len()
	edges = make([]float64, n)
	effs = make([]float64, n)
	var total float64
	for i := n - 1; i >= 0; i-- {
		x, y := d.Fine.XY(i)
		total += y
		edges[i] = x
		effs[i] = total
	}
	if total == 0 {
		return edges, effs
	}
	for i := range effs {
		effs[i] /= total
	}
	return edges, effs
}

// EfficiencyForCut returns the fraction of entries passing the bin edge
// closest to cut, and that edge.
func (d *DiscHist) EfficiencyForCut(cut float64) (eff, edge float64) {
	edges, effs := d.passing()
	best, diff := 0, math.Inf(1)
	for i, x := range edges {
		if dx := math.Abs(x - cut); dx < diff {
			best, diff = i, dx
		}
	}
	return effs[best], edges[best]
}

// CutForEfficiency returns the bin edge whose passing fraction is closest to
// target, and that fraction.
func (d *DiscHist) CutForEfficiency(target float64) (cut, eff float64) {
	edges, effs := d.passing()
	best, diff := 0, math.Inf(1)
	for i, e := range effs {
		if de := math.Abs(e - target); de < diff {
			best, diff = i, de
		}
	}
	return edges[best], effs[best]
}

// ROCCurve returns (background efficiency, signal efficiency) for each cut.
func ROCCurve(sig, bkg *DiscHist) plotter.XYs {
	_, effSig := sig.passing()
	_, effBkg := bkg.passing()
	pts := make(plotter.XYs, len(effSig))
	for i := range pts {
		pts[i].X = effBkg[i]
		pts[i].Y = effSig[i]
	}
	return pts
}

// AUC returns the area under the ROC curve of scores, label 1 being signal.
func AUC(scores, labels []float64) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("%d scores but %d labels", len(scores), len(labels))
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] < scores[idx[j]] })

	y := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	var nsig int
	for i, k := range idx {
		y[i] = scores[k]
		classes[i] = labels[k] == 1
		if classes[i] {
			nsig++
		}
	}
	if nsig == 0 || nsig == len(scores) {
		return 0, fmt.Errorf("AUC needs both signal and background events")
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// ROCPlotOptions configure PlotROC.
type ROCPlotOptions struct {
	Title string
	LogX  bool
	Zoom  bool
}

// PlotROC draws one ROC curve per signal histogram against bkg.
func PlotROC(sigs []*DiscHist, bkg *DiscHist, opts ROCPlotOptions, fname string) error {
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "eff(bkg)"
	p.Y.Label.Text = "eff(sig)"
	p.X.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	p.Y.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	p.Legend.Top = false
	p.Legend.Left = false

	for i, sig := range sigs {
		pts := ROCCurve(sig, bkg)
		if opts.LogX {
			pts = positiveX(pts)
		}
		if len(pts) == 0 {
			Logf("no ROC points for %s", sig.Name)
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("could not create ROC curve of %s: %w", sig.Name, err)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(sig.Name, line)
	}

	switch {
	case opts.Zoom:
		p.X.Min, p.X.Max = 1e-4, 5e-3
		p.Y.Min, p.Y.Max = 0.5, 1
	default:
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	}
	if opts.LogX {
		if p.X.Min <= 0 {
			p.X.Min = 1e-5
		}
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	if err := p.Save(6*vg.Inch, 6*vg.Inch, fname); err != nil {
		return fmt.Errorf("could not save ROC plot: %w", err)
	}
	return nil
}

func positiveX(pts plotter.XYs) plotter.XYs {
	out := make(plotter.XYs, 0, len(pts))
	for _, pt := range pts {
		if pt.X > 0 {
			out = append(out, pt)
		}
	}
	return out
}

// PlotDiscriminants draws the unit-normalized discriminant distributions.
func PlotDiscriminants(hists []*DiscHist, xlabel, fname string) error {
	p := plot.New()
	p.X.Label.Text = xlabel
	p.X.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	p.Legend.Top = true

	for i, d := range hists {
		if d.Entries() == 0 {
			continue
		}
		h := hplot.NewH1D(normalized(d.Plot))
		h.FillColor = nil
		h.LineStyle.Color = plotutil.Color(i)
		h.Infos.Style = hplot.HInfoNone
		p.Add(h)
		p.Legend.Add(d.Name, h)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return fmt.Errorf("could not save discriminant plot: %w", err)
	}
	return nil
}

func normalized(h *hbook.H1D) *hbook.H1D {
	out := hbook.NewH1D(h.Len(), 0, 1)
	var total float64
	for i := 0; i < h.Len(); i++ {
		_, y := h.XY(i)
		total += y
	}
	if total == 0 {
		return out
	}
	width := 1 / float64(h.Len())
	for i := 0; i < h.Len(); i++ {
		x, y := h.XY(i)
		out.Fill(x+0.5*width, y/total)
	}
	return out
}
