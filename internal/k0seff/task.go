// Package k0seff implements the K0S tracking-efficiency analysis: a V0
// candidate selection and the histograms that cross-tabulate accepted
// candidates against the ITS and inner-barrel hit status of their daughters.
package k0seff

import (
	"math"

	"github.com/banshee-data/trackeff.report/internal/aod"
	"github.com/banshee-data/trackeff.report/internal/config"
	"github.com/banshee-data/trackeff.report/internal/hist"
)

// RegistryName is the name of the registry owned by a Task.
const RegistryName = "K0sTrackingEfficiency"

// Histogram names.
const (
	HEventCounter      = "h_EventCounter"
	HRpTMassITSStatus  = "h5_RpTmassITSStatus"
	HRpTMassIBStatus   = "h5_RpTmassIBStatus"
	HRadius            = "Test/h_R"
	HPt                = "Test/h_pT"
	HMass              = "Test/h_mass"
	HNegITSStatus      = "Test/h_negITSStatus"
	HPosITSStatus      = "Test/h_posITSStatus"
	HNegIBStatus       = "Test/h_negIBStatus"
	HPosIBStatus       = "Test/h_posIBStatus"
	HNegIBHits         = "Test/h_negIBhits"
	HPosIBHits         = "Test/h_posIBhits"
)

// Event counter fill values.
const (
	eventCounterTotal  = 0
	eventCounterPassed = 1
)

// Axes of the 5-D status histograms, in fill order.
const (
	AxisRadius = iota
	AxisPt
	AxisMass
	AxisNegStatus
	AxisPosStatus
)

// Binnings shared by the 1-D and 5-D histograms.
var (
	RadiusAxis = hist.NewAxis(100, 0, 10, "#it{R} (cm)")
	PtAxis     = hist.NewAxis(200, 0, 10, "#it{p}_{T} (GeV/#it{c})")
	MassAxis   = hist.NewAxis(200, 0.4, 0.6, "#it{m} (GeV/#it{c}^{2})")
	StatusAxis = hist.NewAxis(2, -0.5, 1.5, "")
	NHitsAxis  = hist.NewAxis(4, -0.5, 3.5, "")
)

// innerBarrelLayers is the number of innermost ITS layers forming the inner barrel.
const innerBarrelLayers = 3

// IBHits counts inner-barrel clusters: set bits among the first three
// positions of an ITS cluster map.
func IBHits(clusterMap uint8) int {
	n := 0
	for i := 0; i < innerBarrelLayers; i++ {
		if clusterMap&(1<<i) != 0 {
			n++
		}
	}
	return n
}

// AcceptV0 applies the candidate selection. Cuts are evaluated in order and
// the first failing cut rejects the candidate.
func AcceptV0(sel config.Selection, v0 aod.V0, pos, neg aod.Track, coll aod.Collision) bool {
	if v0.V0CosPA(coll.PosX, coll.PosY, coll.PosZ) < sel.V0CosPA {
		return false
	}
	if math.Abs(v0.YK0Short()) > sel.Rapidity {
		return false
	}
	if !pos.HasTPC || !neg.HasTPC {
		return false
	}
	// no lower bound and a single threshold for both charges
	if float64(pos.TPCNSigmaPi) > sel.NSigTPC || float64(neg.TPCNSigmaPi) > sel.NSigTPC {
		return false
	}
	return true
}

// Stats counts what a Task has processed.
type Stats struct {
	EventsSeen          int64 `json:"events_seen"`
	EventsSelected      int64 `json:"events_selected"`
	CandidatesEvaluated int64 `json:"candidates_evaluated"`
	CandidatesAccepted  int64 `json:"candidates_accepted"`
}

// Task is one instance of the analysis. It owns its histogram registry and
// must be driven from a single goroutine.
type Task struct {
	sel      config.Selection
	registry *hist.Registry
	stats    Stats

	eventCounter *hist.H1
	hITS, hIB    *hist.Sparse
	hR, hPt, hM  *hist.H1
	hNegITS      *hist.H1
	hPosITS      *hist.H1
	hNegIB       *hist.H1
	hPosIB       *hist.H1
	hNegIBHits   *hist.H1
	hPosIBHits   *hist.H1
}

// NewTask creates a task with the given selection and registers its histograms.
func NewTask(sel config.Selection) *Task {
	t := &Task{
		sel:      sel,
		registry: hist.NewRegistry(RegistryName),
	}
	t.init()
	return t
}

func (t *Task) init() {
	r := t.registry

	t.eventCounter = r.Add1D(HEventCounter, "", hist.NewAxis(2, -0.5, 1.5, ""))
	t.eventCounter.SetBinLabel(1, "Total")
	t.eventCounter.SetBinLabel(2, "Selected")

	t.hITS = r.AddSparse(HRpTMassITSStatus, "h5_RpTmassITSStatus", RadiusAxis, PtAxis, MassAxis, StatusAxis, StatusAxis)
	t.hIB = r.AddSparse(HRpTMassIBStatus, "h5_RpTmassIBStatus", RadiusAxis, PtAxis, MassAxis, StatusAxis, StatusAxis)

	t.hR = r.Add1D(HRadius, "h_R", RadiusAxis)
	t.hPt = r.Add1D(HPt, "h_pT", PtAxis)
	t.hM = r.Add1D(HMass, "h_mass", MassAxis)
	t.hNegITS = r.Add1D(HNegITSStatus, "h_negITSStatus", StatusAxis)
	t.hPosITS = r.Add1D(HPosITSStatus, "h_posITSStatus", StatusAxis)
	t.hNegIB = r.Add1D(HNegIBStatus, "h_negIBStatus", StatusAxis)
	t.hPosIB = r.Add1D(HPosIBStatus, "h_posIBStatus", StatusAxis)
	t.hNegIBHits = r.Add1D(HNegIBHits, "h_negIBhits", NHitsAxis)
	t.hPosIBHits = r.Add1D(HPosIBHits, "h_posIBhits", NHitsAxis)
}

// Selection returns the cuts the task was built with.
func (t *Task) Selection() config.Selection { return t.sel }

// Registry returns the histograms filled by the task.
func (t *Task) Registry() *hist.Registry { return t.registry }

// Stats returns the processing counters.
func (t *Task) Stats() Stats { return t.stats }

// Process analyses one event. The event's daughter references must resolve
// (see aod.Event.Validate).
func (t *Task) Process(ev *aod.Event) {
	t.stats.EventsSeen++
	t.eventCounter.Fill(eventCounterTotal, 1)
	if t.sel.EventSelection && !ev.Collision.Sel8 {
		return
	}
	t.stats.EventsSelected++
	t.eventCounter.Fill(eventCounterPassed, 1)

	for _, v0 := range ev.V0s {
		pos := ev.PosTrack(v0)
		neg := ev.NegTrack(v0)

		t.stats.CandidatesEvaluated++
		if !AcceptV0(t.sel, v0, pos, neg, ev.Collision) {
			continue
		}
		t.stats.CandidatesAccepted++
		t.fill(v0, pos, neg)
	}
}

func (t *Task) fill(v0 aod.V0, pos, neg aod.Track) {
	radius := v0.V0Radius()
	pt := v0.Pt()
	mass := v0.MK0Short()

	t.hR.Fill(radius, 1)
	t.hPt.Fill(pt, 1)
	t.hM.Fill(mass, 1)

	negHasITS := neg.HasITS
	posHasITS := pos.HasITS
	if t.sel.LegacyPosITSStatus {
		posHasITS = neg.HasITS
	}
	t.hNegITS.Fill(hist.Bool(negHasITS), 1)
	t.hPosITS.Fill(hist.Bool(posHasITS), 1)
	t.hITS.Fill(1, radius, pt, mass, hist.Bool(negHasITS), hist.Bool(posHasITS))

	negIBHits := IBHits(neg.ITSClusterMap)
	posIBHits := IBHits(pos.ITSClusterMap)
	negHasIB := negIBHits != 0
	posHasIB := posIBHits != 0
	t.hNegIB.Fill(hist.Bool(negHasIB), 1)
	t.hPosIB.Fill(hist.Bool(posHasIB), 1)
	t.hNegIBHits.Fill(float64(negIBHits), 1)
	t.hPosIBHits.Fill(float64(posIBHits), 1)
	t.hIB.Fill(1, radius, pt, mass, hist.Bool(negHasIB), hist.Bool(posHasIB))
}
