// Package toymc generates synthetic AOD events: K0S -> pi+ pi- decays on top
// of combinatorial V0 background, with a simple model of TPC and ITS
// acceptance. Output is fully determined by the seed.
package toymc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trackeff.report/internal/aod"
	"github.com/banshee-data/trackeff.report/internal/recodecay"
)

// CTauK0Short is the K0S mean proper decay length in cm.
const CTauK0Short = 2.6844

// ITSLayerRadii are the nominal radii (cm) of the seven ITS layers, inner
// barrel first.
var ITSLayerRadii = [7]float64{2.3, 3.1, 3.9, 19.6, 24.5, 34.4, 39.3}

// Config controls the generated sample.
type Config struct {
	Seed   int64
	Events int

	// Mean number of K0S and of fake V0s per event.
	SignalPerEvent     int
	BackgroundPerEvent int
	// Mean number of unrelated primary tracks per event.
	PrimaryTracks int

	Sel8Fraction  float64
	VertexSigmaXY float64 // cm
	VertexSigmaZ  float64 // cm

	MeanPt      float64 // GeV/c, exponential spectrum
	MaxRapidity float64

	TPCEfficiency      float64
	ITSLayerEfficiency float64
	// MinITSClusters is the number of clusters for a track to count as
	// having ITS.
	MinITSClusters int
	// NonPionFraction of background daughters get a PID response away from
	// the pion hypothesis.
	NonPionFraction float64
	// BrokenRefFraction of events carry a V0 whose daughter is missing from
	// the track table.
	BrokenRefFraction float64
}

// DefaultConfig returns a sample of a thousand events.
func DefaultConfig() Config {
	return Config{
		Seed:               1,
		Events:             1000,
		SignalPerEvent:     2,
		BackgroundPerEvent: 4,
		PrimaryTracks:      10,
		Sel8Fraction:       0.9,
		VertexSigmaXY:      0.01,
		VertexSigmaZ:       5,
		MeanPt:             1.0,
		MaxRapidity:        0.8,
		TPCEfficiency:      0.95,
		ITSLayerEfficiency: 0.97,
		MinITSClusters:     4,
		NonPionFraction:    0.3,
	}
}

// Validate reports an unusable configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Events < 0 {
		errs = append(errs, fmt.Errorf("events must be non-negative, got %d", c.Events))
	}
	if c.SignalPerEvent < 0 || c.BackgroundPerEvent < 0 || c.PrimaryTracks < 0 {
		errs = append(errs, errors.New("multiplicities must be non-negative"))
	}
	fractions := []struct {
		name string
		p    float64
	}{
		{"sel8 fraction", c.Sel8Fraction},
		{"TPC efficiency", c.TPCEfficiency},
		{"ITS layer efficiency", c.ITSLayerEfficiency},
		{"non-pion fraction", c.NonPionFraction},
		{"broken-ref fraction", c.BrokenRefFraction},
	}
	for _, f := range fractions {
		if f.p < 0 || f.p > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %g", f.name, f.p))
		}
	}
	if c.MeanPt <= 0 {
		errs = append(errs, fmt.Errorf("mean pT must be positive, got %g", c.MeanPt))
	}
	if c.MinITSClusters < 1 || c.MinITSClusters > len(ITSLayerRadii) {
		errs = append(errs, fmt.Errorf("min ITS clusters must be in [1, %d], got %d", len(ITSLayerRadii), c.MinITSClusters))
	}
	return errors.Join(errs...)
}

// Generator produces events on demand. It implements the event source
// interface used by the pipeline.
type Generator struct {
	cfg Config
	rng *rand.Rand

	produced  int
	collision int64
	track     int64
	v0        int64
}

// New returns a generator for cfg.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

// Produced returns the number of events generated so far.
func (g *Generator) Produced() int { return g.produced }

// Next returns the next event, or io.EOF once Events have been produced.
func (g *Generator) Next(ctx context.Context) (*aod.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.produced >= g.cfg.Events {
		return nil, io.EOF
	}
	g.produced++
	return g.event(), nil
}

func (g *Generator) Close() error { return nil }

func (g *Generator) multiplicity(mean int) int {
	if mean <= 0 {
		return 0
	}
	return g.rng.Intn(2*mean + 1)
}

func (g *Generator) chance(p float64) bool {
	return g.rng.Float64() < p
}

func (g *Generator) event() *aod.Event {
	c := aod.Collision{
		GlobalIndex: g.collision,
		PosX:        g.rng.NormFloat64() * g.cfg.VertexSigmaXY,
		PosY:        g.rng.NormFloat64() * g.cfg.VertexSigmaXY,
		PosZ:        g.rng.NormFloat64() * g.cfg.VertexSigmaZ,
		Sel8:        g.chance(g.cfg.Sel8Fraction),
	}
	g.collision++

	var (
		tracks []aod.Track
		v0s    []aod.V0
	)
	for i := g.multiplicity(g.cfg.PrimaryTracks); i > 0; i-- {
		tracks = append(tracks, g.detect(g.primaryMomentum(), 0, false))
	}
	for i := g.multiplicity(g.cfg.SignalPerEvent); i > 0; i-- {
		v0, pos, neg := g.k0Short(c)
		tracks = append(tracks, pos, neg)
		v0s = append(v0s, v0)
	}
	for i := g.multiplicity(g.cfg.BackgroundPerEvent); i > 0; i-- {
		v0, pos, neg := g.fake(c)
		tracks = append(tracks, pos, neg)
		v0s = append(v0s, v0)
	}
	if len(v0s) > 0 && g.chance(g.cfg.BrokenRefFraction) {
		// drop the negative daughter of the last candidate
		last := v0s[len(v0s)-1]
		kept := tracks[:0]
		for _, t := range tracks {
			if t.GlobalIndex != last.NegTrackID {
				kept = append(kept, t)
			}
		}
		tracks = kept
	}
	return aod.NewEvent(c, v0s, tracks)
}

func (g *Generator) isotropic() r3.Vec {
	cosTheta := 2*g.rng.Float64() - 1
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	phi := 2 * math.Pi * g.rng.Float64()
	return r3.Vec{X: sinTheta * math.Cos(phi), Y: sinTheta * math.Sin(phi), Z: cosTheta}
}

// momentum draws pT from an exponential spectrum and rapidity uniformly for
// a particle of mass m.
func (g *Generator) momentum(m float64) r3.Vec {
	pt := g.rng.ExpFloat64() * g.cfg.MeanPt
	y := (2*g.rng.Float64() - 1) * g.cfg.MaxRapidity
	phi := 2 * math.Pi * g.rng.Float64()
	mt := math.Hypot(m, pt)
	return r3.Vec{X: pt * math.Cos(phi), Y: pt * math.Sin(phi), Z: mt * math.Sinh(y)}
}

func (g *Generator) primaryMomentum() r3.Vec {
	return g.momentum(recodecay.MassPionCharged)
}

func (g *Generator) k0Short(c aod.Collision) (aod.V0, aod.Track, aod.Track) {
	const m = recodecay.MassK0Short
	p := g.momentum(m)
	length := CTauK0Short * r3.Norm(p) / m * g.rng.ExpFloat64()
	sv := r3.Add(c.Position(), r3.Scale(length, r3.Unit(p)))

	// isotropic two-body decay in the rest frame, boosted along p
	mpi := recodecay.MassPionCharged
	pStar := math.Sqrt(m*m/4 - mpi*mpi)
	dir := g.isotropic()
	pPos := boost(r3.Scale(pStar, dir), math.Hypot(pStar, mpi), p, m)
	pNeg := boost(r3.Scale(-pStar, dir), math.Hypot(pStar, mpi), p, m)

	radius := recodecay.RadiusXY(sv)
	pos := g.detect(pPos, radius, false)
	neg := g.detect(pNeg, radius, false)
	return g.newV0(c, sv, pos, neg), pos, neg
}

func (g *Generator) fake(c aod.Collision) (aod.V0, aod.Track, aod.Track) {
	pPos := g.primaryMomentum()
	pNeg := g.primaryMomentum()
	radius := 0.2 + 30*g.rng.Float64()
	phi := 2 * math.Pi * g.rng.Float64()
	sv := r3.Add(c.Position(), r3.Vec{
		X: radius * math.Cos(phi),
		Y: radius * math.Sin(phi),
		Z: g.rng.NormFloat64() * radius,
	})
	r := recodecay.RadiusXY(sv)
	pos := g.detect(pPos, r, g.chance(g.cfg.NonPionFraction))
	neg := g.detect(pNeg, r, g.chance(g.cfg.NonPionFraction))
	return g.newV0(c, sv, pos, neg), pos, neg
}

func (g *Generator) newV0(c aod.Collision, sv r3.Vec, pos, neg aod.Track) aod.V0 {
	v := aod.V0{
		GlobalIndex: g.v0,
		CollisionID: c.GlobalIndex,
		PosTrackID:  pos.GlobalIndex,
		NegTrackID:  neg.GlobalIndex,
		X:           sv.X,
		Y:           sv.Y,
		Z:           sv.Z,
		PxPos:       pos.Px,
		PyPos:       pos.Py,
		PzPos:       pos.Pz,
		PxNeg:       neg.Px,
		PyNeg:       neg.Py,
		PzNeg:       neg.Pz,
	}
	g.v0++
	return v
}

// detect turns a true momentum produced at transverse radius r into a
// reconstructed track. ITS layers inside r cannot have clusters.
func (g *Generator) detect(p r3.Vec, r float64, nonPion bool) aod.Track {
	t := aod.Track{
		GlobalIndex: g.track,
		Px:          p.X,
		Py:          p.Y,
		Pz:          p.Z,
		HasTPC:      g.chance(g.cfg.TPCEfficiency),
	}
	g.track++

	n := 0
	for i, layer := range ITSLayerRadii {
		if layer > r && g.chance(g.cfg.ITSLayerEfficiency) {
			t.ITSClusterMap |= 1 << i
			n++
		}
	}
	t.HasITS = n >= g.cfg.MinITSClusters

	nsigma := g.rng.NormFloat64()
	if nonPion {
		nsigma = 4 + 8*g.rng.Float64()
	}
	t.TPCNSigmaPi = float32(nsigma)
	return t
}

// boost transforms a rest-frame four-momentum (pStar, eStar) into the frame
// where the parent of mass m has momentum parent.
func boost(pStar r3.Vec, eStar float64, parent r3.Vec, m float64) r3.Vec {
	pp := r3.Norm(parent)
	if pp == 0 {
		return pStar
	}
	e := math.Hypot(pp, m)
	gamma := e / m
	beta := pp / e
	n := r3.Scale(1/pp, parent)
	par := r3.Dot(pStar, n)
	return r3.Add(pStar, r3.Scale((gamma-1)*par+gamma*beta*eStar, n))
}
