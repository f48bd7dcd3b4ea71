package ecalveto

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// VetoResult holds the summary quantities computed upstream by the ECal veto.
type VetoResult struct {
	Scalars map[string]float64
	Arrays  map[string][]float64
}

func (vr *VetoResult) Value(src Source) (float64, error) {
	if src.Index < 0 {
		x, ok := vr.Scalars[src.Field]
		if !ok {
			return 0, fmt.Errorf("veto result has no field %q", src.Field)
		}
		return x, nil
	}
	arr, ok := vr.Arrays[src.Field]
	if !ok {
		return 0, fmt.Errorf("veto result has no array %q", src.Field)
	}
	if src.Index >= len(arr) {
		return 0, fmt.Errorf("veto result array %q has %d elements, need index %d", src.Field, len(arr), src.Index)
	}
	return arr[src.Index], nil
}

type ScoringPlaneHit struct {
	PdgID    int32
	TrackID  int32
	Position r3.Vec
	Momentum r3.Vec
}

// Event is one raw simulated event as read from the detector output.
type Event struct {
	Number       int64
	Veto         VetoResult
	TargetSPHits []ScoringPlaneHit
	EcalSPHits   []ScoringPlaneHit
}
