package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/trackeff.report/internal/hist"
	"github.com/banshee-data/trackeff.report/internal/httputil"
)

// BinJSON is one bin of a 1-D histogram or projection. Bin 0 is the
// underflow and NBins+1 the overflow; their open edge is omitted.
type BinJSON struct {
	Bin     int      `json:"bin"`
	Low     *float64 `json:"low,omitempty"`
	High    *float64 `json:"high,omitempty"`
	Label   string   `json:"label,omitempty"`
	Entries int64    `json:"entries"`
	SumW    float64  `json:"sumw"`
	SumW2   float64  `json:"sumw2"`
}

// binEdges returns the finite edges of bin. The underflow has no low edge
// and the overflow no high edge.
func binEdges(a hist.Axis, bin int) (low, high *float64) {
	lo, hi := a.Min, a.Max
	switch {
	case bin <= 0:
		return nil, &lo
	case bin > a.NBins:
		return &hi, nil
	}
	lo, hi = a.BinLowEdge(bin), a.BinUpEdge(bin)
	return &lo, &hi
}

// SparseBinJSON is one populated bin of a sparse histogram.
type SparseBinJSON struct {
	Index []int `json:"index"`
	hist.SparseBin
}

// HistogramJSON is the wire form of a stored histogram. 1-D histograms and
// projections fill Bins; sparse histograms fill SparseBins.
type HistogramJSON struct {
	Name       string          `json:"name"`
	Kind       hist.Kind       `json:"kind"`
	Title      string          `json:"title"`
	Axes       []hist.Axis     `json:"axes"`
	Entries    int64           `json:"entries"`
	Projection *int            `json:"projection,omitempty"`
	Bins       []BinJSON       `json:"bins,omitempty"`
	SparseBins []SparseBinJSON `json:"sparse_bins,omitempty"`
}

func h1JSON(name string, h *hist.H1) HistogramJSON {
	out := HistogramJSON{
		Name:    name,
		Kind:    hist.KindH1,
		Axes:    []hist.Axis{h.Axis},
		Entries: int64(h.Entries()),
	}
	if title, ok := h.Ann["title"].(string); ok {
		out.Title = title
	}
	under, over := h.Binning.Underflow(), h.Binning.Overflow()
	low, high := binEdges(h.Axis, 0)
	out.Bins = append(out.Bins, BinJSON{Bin: 0, Low: low, High: high,
		Entries: under.Entries(), SumW: under.SumW(), SumW2: under.SumW2()})
	for i, b := range h.Binning.Bins {
		bin := i + 1
		low, high := binEdges(h.Axis, bin)
		out.Bins = append(out.Bins, BinJSON{
			Bin:     bin,
			Low:     low,
			High:    high,
			Label:   h.BinLabel(bin),
			Entries: b.Entries(),
			SumW:    b.SumW(),
			SumW2:   b.SumW2(),
		})
	}
	low, high = binEdges(h.Axis, h.Axis.NBins+1)
	out.Bins = append(out.Bins, BinJSON{Bin: h.Axis.NBins + 1, Low: low, High: high,
		Entries: over.Entries(), SumW: over.SumW(), SumW2: over.SumW2()})
	return out
}

func sparseJSON(s *hist.Sparse) HistogramJSON {
	out := HistogramJSON{
		Name:       s.Name(),
		Kind:       hist.KindSparse,
		Title:      s.Title(),
		Axes:       s.Axes(),
		Entries:    s.Entries(),
		SparseBins: make([]SparseBinJSON, 0, s.NFilledBins()),
	}
	s.Each(func(bins []int, content hist.SparseBin) {
		out.SparseBins = append(out.SparseBins, SparseBinJSON{
			Index:     append([]int(nil), bins...),
			SparseBin: content,
		})
	})
	return out
}

// projectionJSON sums a sparse histogram onto one axis, outflows included.
func projectionJSON(s *hist.Sparse, axis int) HistogramJSON {
	a := s.Axes()[axis]
	counts := s.Counts(axis, nil)
	out := HistogramJSON{
		Name:       s.Name(),
		Kind:       hist.KindSparse,
		Title:      s.Title(),
		Axes:       []hist.Axis{a},
		Entries:    s.Entries(),
		Projection: &axis,
	}
	for bin, sumw := range counts {
		low, high := binEdges(a, bin)
		out.Bins = append(out.Bins, BinJSON{
			Bin:  bin,
			Low:  low,
			High: high,
			SumW: sumw,
		})
	}
	return out
}

func (s *Server) showHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	reg, err := s.db.LoadRunRegistry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	name := r.PathValue("name")
	kind, ok := reg.Kind(name)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no histogram %q in run", name))
		return
	}
	if kind == hist.KindH1 {
		httputil.WriteJSONOK(w, h1JSON(name, reg.H1(name)))
		return
	}

	sp := reg.Sparse(name)
	if raw := r.URL.Query().Get("project"); raw != "" {
		axis, err := strconv.Atoi(raw)
		if err != nil || axis < 0 || axis >= sp.Dims() {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'project' parameter: want 0..%d", sp.Dims()-1))
			return
		}
		httputil.WriteJSONOK(w, projectionJSON(sp, axis))
		return
	}
	httputil.WriteJSONOK(w, sparseJSON(sp))
}
