package ecalveto

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// FeatureScore is the number of splits made on a feature.
type FeatureScore struct {
	Name   string
	Splits int
}

var splitRe = regexp.MustCompile(`\[f(\d+)<`)

// Importance counts splits per feature in a text model dump. Features that
// are never used are omitted. Scores are sorted by decreasing split count.
func Importance(dump io.Reader, names []string) ([]FeatureScore, error) {
	counts := make([]int, len(names))
	sc := bufio.NewScanner(dump)
	for sc.Scan() {
		for _, m := range splitRe.FindAllStringSubmatch(sc.Text(), -1) {
			i, err := strconv.Atoi(m[1])
			if err != nil || i >= len(names) {
				return nil, fmt.Errorf("split on unknown feature f%s", m[1])
			}
			counts[i]++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not read model dump: %w", err)
	}

	var scores []FeatureScore
	for i, n := range counts {
		if n > 0 {
			scores = append(scores, FeatureScore{Name: names[i], Splits: n})
		}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Splits > scores[j].Splits })
	return scores, nil
}

func ImportanceFromFile(fname string, names []string) ([]FeatureScore, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open model dump: %w", err)
	}
	defer f.Close()
	return Importance(f, names)
}

// PlotImportance draws a horizontal bar chart of the scores, the most used
// feature on top.
func PlotImportance(scores []FeatureScore, fname string) error {
	if len(scores) == 0 {
		return fmt.Errorf("no feature importances to plot")
	}
	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "F score (splits)"
	p.X.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}

	n := len(scores)
	vals := make(plotter.Values, n)
	names := make([]string, n)
	for i, s := range scores {
		vals[n-1-i] = float64(s.Splits)
		names[n-1-i] = s.Name
	}

	bars, err := plotter.NewBarChart(vals, vg.Points(10))
	if err != nil {
		return fmt.Errorf("could not create bar chart: %w", err)
	}
	bars.Horizontal = true
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Length(n)*14*vg.Millimeter/4 + 2*vg.Inch
	if err := p.Save(8*vg.Inch, height, fname); err != nil {
		return fmt.Errorf("could not save importance plot: %w", err)
	}
	return nil
}
