package hist

import (
	"fmt"
	"sort"

	"go-hep.org/x/hep/hbook"
)

// MaxDims is the largest dimensionality supported by Sparse.
const MaxDims = 8

type binKey [MaxDims]int32

// SparseBin holds the content of one populated bin.
type SparseBin struct {
	Entries int64   `json:"entries"`
	SumW    float64 `json:"sumw"`
	SumW2   float64 `json:"sumw2"`
}

// Sparse is an N-dimensional histogram that stores only populated bins.
// Each axis keeps its own underflow and overflow bins.
type Sparse struct {
	name    string
	title   string
	axes    []Axis
	bins    map[binKey]*SparseBin
	entries int64
}

// NewSparse creates a sparse histogram over axes.
func NewSparse(name, title string, axes ...Axis) *Sparse {
	if len(axes) == 0 || len(axes) > MaxDims {
		panic(fmt.Sprintf("hist: sparse histogram %q needs 1..%d axes, got %d", name, MaxDims, len(axes)))
	}
	for _, a := range axes {
		if err := a.Validate(); err != nil {
			panic(err)
		}
	}
	return &Sparse{
		name:  name,
		title: title,
		axes:  append([]Axis(nil), axes...),
		bins:  make(map[binKey]*SparseBin),
	}
}

func (s *Sparse) Name() string  { return s.name }
func (s *Sparse) Title() string { return s.title }

// Dims returns the number of axes.
func (s *Sparse) Dims() int { return len(s.axes) }

// Axes returns a copy of the axes.
func (s *Sparse) Axes() []Axis { return append([]Axis(nil), s.axes...) }

// Entries returns the number of fills.
func (s *Sparse) Entries() int64 { return s.entries }

// NFilledBins returns the number of populated bins.
func (s *Sparse) NFilledBins() int { return len(s.bins) }

// Fill adds weight w at coordinates xs, one per axis.
func (s *Sparse) Fill(w float64, xs ...float64) {
	if len(xs) != len(s.axes) {
		panic(fmt.Sprintf("hist: %s: filled with %d coordinates, want %d", s.name, len(xs), len(s.axes)))
	}
	var k binKey
	for i, x := range xs {
		k[i] = int32(s.axes[i].FindBin(x))
	}
	b, ok := s.bins[k]
	if !ok {
		b = &SparseBin{}
		s.bins[k] = b
	}
	b.Entries++
	b.SumW += w
	b.SumW2 += w * w
	s.entries++
}

func (s *Sparse) key(bins []int) binKey {
	if len(bins) != len(s.axes) {
		panic(fmt.Sprintf("hist: %s: addressed with %d bin numbers, want %d", s.name, len(bins), len(s.axes)))
	}
	var k binKey
	for i, b := range bins {
		k[i] = int32(b)
	}
	return k
}

// BinContent returns the sum of weights in the bin addressed by bin numbers.
func (s *Sparse) BinContent(bins ...int) float64 {
	if b, ok := s.bins[s.key(bins)]; ok {
		return b.SumW
	}
	return 0
}

// Bin returns the bin addressed by bin numbers and whether it is populated.
func (s *Sparse) Bin(bins ...int) (SparseBin, bool) {
	b, ok := s.bins[s.key(bins)]
	if !ok {
		return SparseBin{}, false
	}
	return *b, true
}

// AddBin adds content to the bin addressed by bin numbers. It is used to
// restore stored histograms.
func (s *Sparse) AddBin(bins []int, content SparseBin) {
	for i, b := range bins {
		if b < 0 || b > s.axes[i].NBins+1 {
			panic(fmt.Sprintf("hist: %s: bin %d out of range on axis %d", s.name, b, i))
		}
	}
	k := s.key(bins)
	b, ok := s.bins[k]
	if !ok {
		b = &SparseBin{}
		s.bins[k] = b
	}
	b.Entries += content.Entries
	b.SumW += content.SumW
	b.SumW2 += content.SumW2
	s.entries += content.Entries
}

// Each calls fn for every populated bin in lexicographic bin order.
// The bins slice is reused between calls.
func (s *Sparse) Each(fn func(bins []int, content SparseBin)) {
	keys := make([]binKey, 0, len(s.bins))
	for k := range s.bins {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		for d := range s.axes {
			if keys[i][d] != keys[j][d] {
				return keys[i][d] < keys[j][d]
			}
		}
		return false
	})
	bins := make([]int, len(s.axes))
	for _, k := range keys {
		for d := range s.axes {
			bins[d] = int(k[d])
		}
		fn(bins, *s.bins[k])
	}
}

// Project sums the bins accepted by keep (nil keeps all) onto axis and
// returns the result as an hbook histogram. Outflow bins of the projected
// axis land in the hbook outflows. Each populated source bin counts as one
// entry of the projection.
func (s *Sparse) Project(axis int, keep func(bins []int) bool) *hbook.H1D {
	if axis < 0 || axis >= len(s.axes) {
		panic(fmt.Sprintf("hist: %s: no axis %d", s.name, axis))
	}
	a := s.axes[axis]
	h := hbook.NewH1D(a.NBins, a.Min, a.Max)
	h.Ann["name"] = fmt.Sprintf("%s_proj%d", s.name, axis)
	h.Ann["title"] = a.Title
	s.Each(func(bins []int, content SparseBin) {
		if keep != nil && !keep(bins) {
			return
		}
		h.Fill(a.BinCenter(bins[axis]), content.SumW)
	})
	return h
}

// Counts sums the bins accepted by keep onto axis, returning the weights of
// bins 0..NBins+1 including both outflows.
func (s *Sparse) Counts(axis int, keep func(bins []int) bool) []float64 {
	if axis < 0 || axis >= len(s.axes) {
		panic(fmt.Sprintf("hist: %s: no axis %d", s.name, axis))
	}
	out := make([]float64, s.axes[axis].NBins+2)
	bins := make([]int, len(s.axes))
	for k, b := range s.bins {
		if keep != nil {
			for d := range s.axes {
				bins[d] = int(k[d])
			}
			if !keep(bins) {
				continue
			}
		}
		out[k[axis]] += b.SumW
	}
	return out
}
