package ecalveto

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Extractor fills the flat-tree features of a variant from raw events.
type Extractor struct {
	schema *Schema
	geom   Geometry

	// pre-selection columns
	atTSP, atESP, recoilPT int
}

func NewExtractor(v *Variant, geom Geometry) (*Extractor, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	x := &Extractor{schema: v.TreeSchema(), geom: geom}
	for _, c := range []struct {
		name string
		idx  *int
	}{
		{IsAtTSP, &x.atTSP},
		{IsAtESP, &x.atESP},
		{RecoilPT, &x.recoilPT},
	} {
		i, ok := x.schema.Index(c.name)
		if !ok {
			return nil, fmt.Errorf("variant %q has no %q column", v.Name, c.name)
		}
		*c.idx = i
	}
	return x, nil
}

func (x *Extractor) Schema() *Schema { return x.schema }

// Tracks holds the projected electron and photon trajectories of an event.
type Tracks struct {
	Electron Trajectory
	Photon   Trajectory

	// Photon origin and momentum at the target; zero when the recoil
	// electron was not found there.
	PhotonPos r3.Vec
	PhotonMom r3.Vec
}

// Extract returns the feature vector of ev and the projected trajectories.
func (x *Extractor) Extract(ev *Event) (*Vector, Tracks, error) {
	feats := x.schema.Defaults()
	for i := 0; i < x.schema.Len(); i++ {
		f := x.schema.Feature(i)
		if f.Source == nil {
			continue
		}
		val, err := ev.Veto.Value(*f.Source)
		if err != nil {
			return nil, Tracks{}, fmt.Errorf("event %d: feature %q: %w", ev.Number, f.Name, err)
		}
		feats.SetAt(i, val)
	}

	var tracks Tracks

	eEcal, atESP := ElectronEcalSPHit(ev.EcalSPHits, x.geom)
	if atESP {
		tracks.Electron = LayerIntercepts(eEcal.Position, eEcal.Momentum, x.geom.LayerZs)
	}

	eTarget, atTSP := ElectronTargetSPHit(ev.TargetSPHits, x.geom)
	if atTSP {
		tracks.PhotonPos, tracks.PhotonMom = GammaTargetInfo(eTarget, x.geom.BeamEnergy)
		tracks.Photon = LayerIntercepts(tracks.PhotonPos, tracks.PhotonMom, x.geom.LayerZs)
	}

	// electron at scoring planes, for pre-selection
	if atTSP {
		feats.SetAt(x.atTSP, 1)
		feats.SetAt(x.recoilPT, TransverseMomentum(eTarget.Momentum))
	}
	if atESP {
		feats.SetAt(x.atESP, 1)
	}

	return feats, tracks, nil
}
