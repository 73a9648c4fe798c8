// Package hist provides the named histogram registry filled by analysis
// tasks: one-dimensional histograms backed by go-hep's hbook and sparse
// N-dimensional histograms that only store populated bins.
package hist

import (
	"fmt"
	"math"
	"sort"
)

// Axis is a fixed-width binning. Bin numbers follow the usual convention:
// 0 is the underflow, 1..NBins are the in-range bins and NBins+1 is the overflow.
type Axis struct {
	NBins int     `json:"nbins"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Title string  `json:"title,omitempty"`
}

// NewAxis returns an axis and panics on an invalid binning.
func NewAxis(nbins int, min, max float64, title string) Axis {
	a := Axis{NBins: nbins, Min: min, Max: max, Title: title}
	if err := a.Validate(); err != nil {
		panic(err)
	}
	return a
}

// Validate reports an unusable binning.
func (a Axis) Validate() error {
	if a.NBins <= 0 {
		return fmt.Errorf("hist: axis %q needs at least one bin, got %d", a.Title, a.NBins)
	}
	if !(a.Min < a.Max) {
		return fmt.Errorf("hist: axis %q has empty range [%g, %g]", a.Title, a.Min, a.Max)
	}
	return nil
}

// BinWidth returns the width of every in-range bin.
func (a Axis) BinWidth() float64 {
	return (a.Max - a.Min) / float64(a.NBins)
}

// FindBin returns the bin number containing x. NaN is counted as overflow.
// Bins are located by searching the same edges hbook computes, so a value
// lands in the same bin of an H1 and of a Sparse axis.
func (a Axis) FindBin(x float64) int {
	switch {
	case x < a.Min:
		return 0
	case !(x < a.Max):
		return a.NBins + 1
	}
	w := a.BinWidth()
	i := sort.Search(a.NBins, func(i int) bool { return x < a.Min+float64(i+1)*w })
	return i + 1
}

// BinLowEdge returns the lower edge of bin. The underflow bin starts at -Inf.
func (a Axis) BinLowEdge(bin int) float64 {
	if bin <= 0 {
		return math.Inf(-1)
	}
	return a.Min + float64(bin-1)*a.BinWidth()
}

// BinUpEdge returns the upper edge of bin. The overflow bin ends at +Inf.
func (a Axis) BinUpEdge(bin int) float64 {
	if bin > a.NBins {
		return math.Inf(1)
	}
	return a.Min + float64(bin)*a.BinWidth()
}

// BinCenter returns the centre of an in-range bin. Outflow bins report a
// point half a bin outside the range so that refilling lands in the outflow.
func (a Axis) BinCenter(bin int) float64 {
	return a.Min + (float64(bin)-0.5)*a.BinWidth()
}

// Bool converts a flag to the 0/1 value filled on status axes.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
