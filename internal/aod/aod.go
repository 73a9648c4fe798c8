// Package aod defines the reconstructed event tables consumed by the
// tracking-efficiency analysis: collisions, barrel tracks and V0 candidates.
//
// The tables are produced upstream and are read-only here. V0 observables
// (radius, transverse momentum, pointing angle, mass, rapidity) are derived on
// access from the stored decay vertex and daughter momenta.
package aod

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/trackeff.report/internal/recodecay"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrUnresolvedTrack is returned when a V0 references a track that is not
	// part of the event's track table.
	ErrUnresolvedTrack = errors.New("unresolved daughter track")
	// ErrSameDaughter is returned when both V0 daughters reference the same track.
	ErrSameDaughter = errors.New("v0 daughters reference the same track")
	// ErrCollisionMismatch is returned when a V0 belongs to another collision.
	ErrCollisionMismatch = errors.New("v0 collision index mismatch")
)

// Collision is one reconstructed event.
type Collision struct {
	GlobalIndex int64   `json:"index"`
	PosX        float64 `json:"pos_x"`
	PosY        float64 `json:"pos_y"`
	PosZ        float64 `json:"pos_z"`
	// Sel8 is the event-quality flag from the event selection.
	Sel8 bool `json:"sel8"`
}

// Position returns the primary vertex.
func (c Collision) Position() r3.Vec {
	return r3.Vec{X: c.PosX, Y: c.PosY, Z: c.PosZ}
}

// Track is a charged-particle trajectory with detector hit information and
// the TPC pion PID response.
type Track struct {
	GlobalIndex int64   `json:"index"`
	Px          float64 `json:"px"`
	Py          float64 `json:"py"`
	Pz          float64 `json:"pz"`
	HasTPC      bool    `json:"has_tpc"`
	HasITS      bool    `json:"has_its"`
	// ITSClusterMap has bit i set when the track has a cluster on ITS layer i.
	ITSClusterMap uint8   `json:"its_cluster_map"`
	TPCNSigmaPi   float32 `json:"tpc_nsigma_pi"`
}

// Pt returns the track transverse momentum.
func (t Track) Pt() float64 {
	return recodecay.Pt(r3.Vec{X: t.Px, Y: t.Py, Z: t.Pz})
}

// V0 is a neutral decay vertex candidate with a positive and a negative daughter.
type V0 struct {
	GlobalIndex int64 `json:"index"`
	CollisionID int64 `json:"collision_id"`
	PosTrackID  int64 `json:"pos_track_id"`
	NegTrackID  int64 `json:"neg_track_id"`

	// Decay vertex.
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	// Daughter momenta at the decay vertex.
	PxPos float64 `json:"px_pos"`
	PyPos float64 `json:"py_pos"`
	PzPos float64 `json:"pz_pos"`
	PxNeg float64 `json:"px_neg"`
	PyNeg float64 `json:"py_neg"`
	PzNeg float64 `json:"pz_neg"`
}

func (v V0) pPos() r3.Vec { return r3.Vec{X: v.PxPos, Y: v.PyPos, Z: v.PzPos} }
func (v V0) pNeg() r3.Vec { return r3.Vec{X: v.PxNeg, Y: v.PyNeg, Z: v.PzNeg} }

// Momentum returns the candidate momentum.
func (v V0) Momentum() r3.Vec {
	return r3.Add(v.pPos(), v.pNeg())
}

func (v V0) Px() float64 { return v.PxPos + v.PxNeg }
func (v V0) Py() float64 { return v.PyPos + v.PyNeg }
func (v V0) Pz() float64 { return v.PzPos + v.PzNeg }

// Pt returns the candidate transverse momentum in GeV/c.
func (v V0) Pt() float64 {
	return recodecay.Pt(v.Momentum())
}

// V0Radius returns the transverse decay radius in cm.
func (v V0) V0Radius() float64 {
	return recodecay.RadiusXY(r3.Vec{X: v.X, Y: v.Y, Z: v.Z})
}

// V0CosPA returns the cosine of the pointing angle with respect to the
// primary vertex at (pvx, pvy, pvz).
func (v V0) V0CosPA(pvx, pvy, pvz float64) float64 {
	return recodecay.CosPA(
		r3.Vec{X: pvx, Y: pvy, Z: pvz},
		r3.Vec{X: v.X, Y: v.Y, Z: v.Z},
		v.Momentum(),
	)
}

// MK0Short returns the invariant mass under the pi+ pi- hypothesis.
func (v V0) MK0Short() float64 {
	return recodecay.InvMass(
		[]r3.Vec{v.pPos(), v.pNeg()},
		[]float64{recodecay.MassPionCharged, recodecay.MassPionCharged},
	)
}

// MLambda returns the invariant mass under the p pi- hypothesis.
func (v V0) MLambda() float64 {
	return recodecay.InvMass(
		[]r3.Vec{v.pPos(), v.pNeg()},
		[]float64{recodecay.MassProton, recodecay.MassPionCharged},
	)
}

// MAntiLambda returns the invariant mass under the pi+ anti-p hypothesis.
func (v V0) MAntiLambda() float64 {
	return recodecay.InvMass(
		[]r3.Vec{v.pPos(), v.pNeg()},
		[]float64{recodecay.MassPionCharged, recodecay.MassProton},
	)
}

// YK0Short returns the candidate rapidity under the K0S mass hypothesis.
func (v V0) YK0Short() float64 {
	return recodecay.Rapidity(v.Momentum(), recodecay.MassK0Short)
}

// Event groups a collision with its V0 candidates and the tracks they reference.
type Event struct {
	Collision Collision       `json:"collision"`
	V0s       []V0            `json:"v0s"`
	Tracks    map[int64]Track `json:"-"`
}

// NewEvent builds an event indexing tracks by their global index.
func NewEvent(c Collision, v0s []V0, tracks []Track) *Event {
	ev := &Event{
		Collision: c,
		V0s:       v0s,
		Tracks:    make(map[int64]Track, len(tracks)),
	}
	for _, t := range tracks {
		ev.Tracks[t.GlobalIndex] = t
	}
	return ev
}

// TrackList returns the track table ordered by global index.
func (e *Event) TrackList() []Track {
	out := make([]Track, 0, len(e.Tracks))
	for _, t := range e.Tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalIndex < out[j].GlobalIndex })
	return out
}

// PosTrack returns the positive daughter of v. The event must have been validated.
func (e *Event) PosTrack(v V0) Track {
	return e.Tracks[v.PosTrackID]
}

// NegTrack returns the negative daughter of v. The event must have been validated.
func (e *Event) NegTrack(v V0) Track {
	return e.Tracks[v.NegTrackID]
}

// Validate checks that every V0 belongs to the collision and references two
// distinct tracks present in the track table.
func (e *Event) Validate() error {
	for _, v := range e.V0s {
		if v.CollisionID != e.Collision.GlobalIndex {
			return fmt.Errorf("v0 %d: %w (collision %d, event %d)",
				v.GlobalIndex, ErrCollisionMismatch, v.CollisionID, e.Collision.GlobalIndex)
		}
		if v.PosTrackID == v.NegTrackID {
			return fmt.Errorf("v0 %d: %w (track %d)", v.GlobalIndex, ErrSameDaughter, v.PosTrackID)
		}
		if _, ok := e.Tracks[v.PosTrackID]; !ok {
			return fmt.Errorf("v0 %d positive daughter %d: %w", v.GlobalIndex, v.PosTrackID, ErrUnresolvedTrack)
		}
		if _, ok := e.Tracks[v.NegTrackID]; !ok {
			return fmt.Errorf("v0 %d negative daughter %d: %w", v.GlobalIndex, v.NegTrackID, ErrUnresolvedTrack)
		}
	}
	return nil
}
