// Package recodecay holds the decay kinematics used to derive V0 candidate
// observables from the stored vertex and daughter momentum columns.
package recodecay

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Particle masses in GeV/c^2 (PDG 2022).
const (
	MassPionCharged = 0.13957039
	MassProton      = 0.93827208816
	MassK0Short     = 0.497611
	MassLambda      = 1.115683
)

// Pt returns the transverse momentum of p.
func Pt(p r3.Vec) float64 {
	return math.Hypot(p.X, p.Y)
}

// RadiusXY returns the transverse distance of v from the beam axis.
func RadiusXY(v r3.Vec) float64 {
	return math.Hypot(v.X, v.Y)
}

// CosPA returns the cosine of the pointing angle between the momentum p of a
// candidate decaying at sv and its flight direction from the primary vertex pv.
// A zero flight length or zero momentum yields 0.
func CosPA(pv, sv, p r3.Vec) float64 {
	flight := r3.Sub(sv, pv)
	den := r3.Norm(flight) * r3.Norm(p)
	if den == 0 {
		return 0
	}
	cpa := r3.Dot(flight, p) / den
	// rounding can push aligned vectors just past unity
	if cpa > 1 {
		return 1
	}
	if cpa < -1 {
		return -1
	}
	return cpa
}

// Energy returns the energy of a particle of mass m and momentum p.
func Energy(p r3.Vec, m float64) float64 {
	return math.Sqrt(r3.Norm2(p) + m*m)
}

// InvMass returns the invariant mass of the system made of momenta ps under the
// mass hypotheses ms. ps and ms must have the same length.
func InvMass(ps []r3.Vec, ms []float64) float64 {
	if len(ps) != len(ms) {
		panic("recodecay: momentum and mass slices differ in length")
	}
	var (
		e   float64
		sum r3.Vec
	)
	for i, p := range ps {
		e += Energy(p, ms[i])
		sum = r3.Add(sum, p)
	}
	m2 := e*e - r3.Norm2(sum)
	if m2 < 0 {
		return 0
	}
	return math.Sqrt(m2)
}

// Rapidity returns the rapidity along the beam axis of a particle with
// momentum p and mass m.
func Rapidity(p r3.Vec, m float64) float64 {
	e := Energy(p, m)
	return 0.5 * math.Log((e+p.Z)/(e-p.Z))
}
