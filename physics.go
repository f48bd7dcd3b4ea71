package ecalveto

import (
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const electronPdgID = 11

// Trajectory is the straight-line projection of a particle onto each ECal
// layer. A nil Trajectory means the particle was not found.
type Trajectory []r2.Vec

// electronSPHit picks the hardest beam electron crossing the plane at z.
func electronSPHit(hits []ScoringPlaneHit, z, thickness float64) (ScoringPlaneHit, bool) {
	var (
		best  ScoringPlaneHit
		found bool
		pmax  float64
	)
	for _, hit := range hits {
		if math.Abs(hit.Position.Z-z) > 0.5*thickness {
			continue
		}
		if hit.Momentum.Z <= 0 || hit.TrackID != 1 || hit.PdgID != electronPdgID {
			continue
		}
		if p := r3.Norm(hit.Momentum); p > pmax {
			best, found, pmax = hit, true, p
		}
	}
	return best, found
}

func ElectronTargetSPHit(hits []ScoringPlaneHit, geom Geometry) (ScoringPlaneHit, bool) {
	return electronSPHit(hits, geom.TargetSPZ, geom.SPThickness)
}

func ElectronEcalSPHit(hits []ScoringPlaneHit, geom Geometry) (ScoringPlaneHit, bool) {
	return electronSPHit(hits, geom.EcalSPZ, geom.SPThickness)
}

// GammaTargetInfo infers the recoil photon at the target from the electron:
// same origin, momentum equal to the beam momentum minus the electron's.
func GammaTargetInfo(e ScoringPlaneHit, beamEnergy float64) (pos, mom r3.Vec) {
	return e.Position, r3.Sub(r3.Vec{Z: beamEnergy}, e.Momentum)
}

// Project extrapolates a straight line from pos along mom to z. A line with
// no longitudinal momentum stays at its transverse origin.
func Project(pos, mom r3.Vec, z float64) r2.Vec {
	if mom.Z == 0 {
		return r2.Vec{X: pos.X, Y: pos.Y}
	}
	dz := z - pos.Z
	return r2.Vec{
		X: pos.X + mom.X/mom.Z*dz,
		Y: pos.Y + mom.Y/mom.Z*dz,
	}
}

func LayerIntercepts(pos, mom r3.Vec, layerZs []float64) Trajectory {
	traj := make(Trajectory, len(layerZs))
	for i, z := range layerZs {
		traj[i] = Project(pos, mom, z)
	}
	return traj
}

// TransverseMomentum returns sqrt(px^2 + py^2).
func TransverseMomentum(mom r3.Vec) float64 {
	p4 := fmom.NewPxPyPzE(mom.X, mom.Y, mom.Z, r3.Norm(mom))
	return p4.Pt()
}
