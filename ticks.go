package ecalveto

import (
	"math"
	"strconv"

	"gonum.org/v1/plot"
)

// PreciseTicks places round-valued major ticks, labeled without trailing
// digits, and unlabeled minor ticks between them.
type PreciseTicks struct {
	NSuggestedTicks int
}

func (t PreciseTicks) Ticks(min, max float64) []plot.Tick {
	if t.NSuggestedTicks < 2 {
		t.NSuggestedTicks = 4
	}
	if !(max > min) || math.IsInf(max-min, 0) {
		return nil
	}

	majorMult, tens := majorStep(min, max, t.NSuggestedTicks)
	majorDelta := float64(majorMult) * tens

	var ticks []plot.Tick
	labeled := make(map[float64]bool)
	val := math.Floor(min/majorDelta) * majorDelta
	for ; val <= max; val += majorDelta {
		if val < min {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: val})
	}
	prec := int(math.Ceil(math.Log10(val)) - math.Floor(math.Log10(majorDelta)))
	for i := range ticks {
		v := round(ticks[i].Value, prec)
		ticks[i] = plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)}
		labeled[v] = true
	}

	minorDelta := minorStep(majorMult, majorDelta)
	for val = math.Floor(min/minorDelta) * minorDelta; val <= max; val += minorDelta {
		if val >= min && !labeled[val] {
			ticks = append(ticks, plot.Tick{Value: val})
		}
	}
	return ticks
}

// majorStep returns the major tick spacing as a multiple of a power of ten.
func majorStep(min, max float64, nticks int) (int, float64) {
	tens := math.Pow10(int(math.Floor(math.Log10(max - min))))
	n := (max - min) / tens
	for n < float64(nticks)-1 {
		tens /= 10
		n = (max - min) / tens
	}

	mult := int(n / float64(nticks-1))
	switch mult {
	case 7:
		mult = 6
	case 9:
		mult = 8
	}
	return max1(mult), tens
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func minorStep(majorMult int, majorDelta float64) float64 {
	switch majorMult {
	case 3, 6:
		return majorDelta / 3
	case 5:
		return majorDelta / 5
	}
	return majorDelta / 2
}

func round(x float64, prec int) float64 {
	if x == 0 {
		// no negative zero
		return 0
	}
	if prec >= 0 && x == math.Trunc(x) {
		return x
	}
	pow := math.Pow10(prec)
	intermed := x * pow
	if math.IsInf(intermed, 0) {
		return x
	}
	if x < 0 {
		x = math.Ceil(intermed - 0.5)
	} else {
		x = math.Floor(intermed + 0.5)
	}
	if x == 0 {
		return 0
	}
	return x / pow
}
