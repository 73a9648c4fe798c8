package hist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/hbook"
)

func TestAxisFindBin(t *testing.T) {
	status := NewAxis(2, -0.5, 1.5, "")
	tests := []struct {
		x    float64
		want int
	}{
		{-1, 0},
		{0, 1},
		{1, 2},
		{1.5, 3},
		{math.NaN(), 3},
		{-0.5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.FindBin(tt.x), "x=%v", tt.x)
	}

	r := NewAxis(100, 0, 10, "R")
	assert.Equal(t, 1, r.FindBin(0))
	assert.Equal(t, 100, r.FindBin(9.99999))
	assert.Equal(t, 101, r.FindBin(10))
	assert.InDelta(t, 0.05, r.BinCenter(1), 1e-12)
	assert.InDelta(t, 0.1, r.BinUpEdge(1), 1e-12)
	assert.True(t, math.IsInf(r.BinLowEdge(0), -1))
	assert.True(t, math.IsInf(r.BinUpEdge(101), 1))
	assert.Equal(t, 0, r.FindBin(r.BinCenter(0)))
	assert.Equal(t, 101, r.FindBin(r.BinCenter(101)))
}

// hbookBin returns the bin an hbook histogram fills for x, in Axis numbering.
func hbookBin(a Axis, x float64) int {
	h := hbook.NewH1D(a.NBins, a.Min, a.Max)
	h.Fill(x, 1)
	if h.Binning.Underflow().Entries() == 1 {
		return 0
	}
	for i := range h.Binning.Bins {
		if h.Binning.Bins[i].Entries() == 1 {
			return i + 1
		}
	}
	return a.NBins + 1
}

func TestAxisFindBinMatchesHbookAtEdges(t *testing.T) {
	axes := []Axis{
		NewAxis(100, 0, 10, "R"),
		NewAxis(200, 0, 10, "pT"),
		NewAxis(200, 0.4, 0.6, "m"),
		NewAxis(2, -0.5, 1.5, "status"),
		NewAxis(4, -0.5, 3.5, "nhits"),
	}
	for _, a := range axes {
		for bin := 1; bin <= a.NBins+1; bin++ {
			edge := a.BinLowEdge(bin)
			for _, x := range []float64{math.Nextafter(edge, math.Inf(-1)), edge, math.Nextafter(edge, math.Inf(1))} {
				assert.Equal(t, hbookBin(a, x), a.FindBin(x), "%s x=%v", a.Title, x)
			}
		}
	}

	// 0.1 - ulp lies in the first R bin for hbook; x*N/(max-min) rounds it up.
	r := axes[0]
	assert.Equal(t, 1, r.FindBin(0.09999999999999999))
}

func TestH1AndSparseAgreeAtEdges(t *testing.T) {
	a := NewAxis(100, 0, 10, "R")
	r := NewRegistry("edges")
	h := r.Add1D("h_R", "", a)
	s := r.AddSparse("h2", "", a, NewAxis(2, -0.5, 1.5, "status"))
	for bin := 1; bin <= a.NBins+1; bin++ {
		edge := a.BinLowEdge(bin)
		for _, x := range []float64{math.Nextafter(edge, math.Inf(-1)), edge, math.Nextafter(edge, math.Inf(1))} {
			h.Fill(x, 1)
			s.Fill(1, x, 1)
		}
	}
	counts := s.Counts(0, nil)
	for bin := 0; bin <= a.NBins+1; bin++ {
		assert.Equal(t, h.BinContent(bin), counts[bin], "bin %d", bin)
	}
}

func TestNewAxisRejectsBadBinning(t *testing.T) {
	assert.Panics(t, func() { NewAxis(0, 0, 1, "none") })
	assert.Panics(t, func() { NewAxis(10, 1, 1, "empty") })
}

func TestBool(t *testing.T) {
	assert.Equal(t, 1.0, Bool(true))
	assert.Equal(t, 0.0, Bool(false))
}

func TestSparseFillAndProject(t *testing.T) {
	s := NewSparse("h3", "test",
		NewAxis(10, 0, 10, "x"),
		NewAxis(2, -0.5, 1.5, "a"),
		NewAxis(2, -0.5, 1.5, "b"),
	)
	s.Fill(1, 2.5, 1, 0)
	s.Fill(1, 2.5, 1, 0)
	s.Fill(1, 7.5, 1, 1)
	s.Fill(1, 12, 0, 0) // overflow on x

	assert.Equal(t, int64(4), s.Entries())
	assert.Equal(t, 3, s.NFilledBins())
	assert.Equal(t, 2.0, s.BinContent(3, 2, 1))
	assert.Equal(t, 1.0, s.BinContent(11, 1, 1))
	assert.Equal(t, 0.0, s.BinContent(1, 1, 1))

	b, ok := s.Bin(3, 2, 1)
	require.True(t, ok)
	assert.Equal(t, SparseBin{Entries: 2, SumW: 2, SumW2: 2}, b)

	counts := s.Counts(0, nil)
	require.Len(t, counts, 12)
	assert.Equal(t, 2.0, counts[3])
	assert.Equal(t, 1.0, counts[8])
	assert.Equal(t, 1.0, counts[11])

	both := s.Counts(0, func(bins []int) bool { return bins[1] == 2 && bins[2] == 2 })
	assert.Equal(t, 1.0, both[8])
	assert.Equal(t, 0.0, both[3])

	h := s.Project(0, nil)
	assert.Equal(t, 2.0, h.Binning.Bins[2].SumW())
	assert.Equal(t, 1.0, h.Binning.Bins[7].SumW())
	assert.Equal(t, 1.0, h.Binning.Overflow().SumW())
}

func TestSparseWrongDimensionPanics(t *testing.T) {
	s := NewSparse("h2", "", NewAxis(1, 0, 1, "x"), NewAxis(1, 0, 1, "y"))
	assert.Panics(t, func() { s.Fill(1, 0.5) })
	assert.Panics(t, func() { s.BinContent(1) })
	assert.Panics(t, func() { NewSparse("none", "") })
}

func TestSparseEachOrderedAndAddBin(t *testing.T) {
	s := NewSparse("h2", "", NewAxis(3, 0, 3, "x"), NewAxis(3, 0, 3, "y"))
	s.Fill(1, 2.5, 0.5)
	s.Fill(1, 0.5, 2.5)
	s.Fill(1, 0.5, 0.5)

	var seen [][2]int
	s.Each(func(bins []int, _ SparseBin) {
		seen = append(seen, [2]int{bins[0], bins[1]})
	})
	assert.Equal(t, [][2]int{{1, 1}, {1, 3}, {3, 1}}, seen)

	restored := NewSparse("h2", "", s.Axes()...)
	s.Each(func(bins []int, content SparseBin) {
		restored.AddBin(bins, content)
	})
	assert.Equal(t, s.Entries(), restored.Entries())
	assert.Equal(t, s.BinContent(1, 3), restored.BinContent(1, 3))
	assert.Panics(t, func() { restored.AddBin([]int{9, 1}, SparseBin{Entries: 1}) })
}

func TestRegistry(t *testing.T) {
	r := NewRegistry("K0sTrackingEfficiency")
	counter := r.Add1D("h_EventCounter", "", NewAxis(2, -0.5, 1.5, ""))
	counter.SetBinLabel(1, "Total")
	counter.SetBinLabel(2, "Selected")
	r.AddSparse("h2", "", NewAxis(2, 0, 2, "x"), NewAxis(2, 0, 2, "y"))

	r.Fill("h_EventCounter", 0)
	r.Fill("h_EventCounter", 0)
	r.Fill("h_EventCounter", 1)
	r.Fill("h2", 0.5, 1.5)

	assert.Equal(t, 2.0, r.H1("h_EventCounter").BinContent(1))
	assert.Equal(t, 1.0, r.H1("h_EventCounter").BinContent(2))
	assert.Equal(t, "Selected", r.H1("h_EventCounter").BinLabel(2))
	assert.Equal(t, int64(3), r.H1("h_EventCounter").Entries())
	assert.Equal(t, 1.0, r.Sparse("h2").BinContent(1, 2))

	assert.Equal(t, []string{"h_EventCounter", "h2"}, r.Names())
	assert.Equal(t, []string{"h2", "h_EventCounter"}, r.SortedNames())

	k, ok := r.Kind("h2")
	assert.True(t, ok)
	assert.Equal(t, KindSparse, k)

	assert.Panics(t, func() { r.Add1D("h2", "", NewAxis(1, 0, 1, "")) })
	assert.Panics(t, func() { r.Fill("missing", 1) })
	assert.Panics(t, func() { r.Fill("h_EventCounter", 1, 2) })
	assert.Panics(t, func() { counter.SetBinLabel(3, "Overflow") })
}
