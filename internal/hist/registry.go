package hist

import (
	"fmt"
	"sort"

	"go-hep.org/x/hep/hbook"
)

// Kind distinguishes the histogram types held by a Registry.
type Kind string

const (
	KindH1     Kind = "h1"
	KindSparse Kind = "sparse"
)

// H1 is a one-dimensional histogram with its axis definition and optional
// bin labels.
type H1 struct {
	*hbook.H1D
	Axis   Axis
	labels map[int]string
}

// SetBinLabel labels an in-range bin (1-based).
func (h *H1) SetBinLabel(bin int, label string) {
	if bin < 1 || bin > h.Axis.NBins {
		panic(fmt.Sprintf("hist: bin label %q on bin %d outside 1..%d", label, bin, h.Axis.NBins))
	}
	if h.labels == nil {
		h.labels = make(map[int]string)
	}
	h.labels[bin] = label
}

// BinLabel returns the label of bin, or "" when unlabelled.
func (h *H1) BinLabel(bin int) string {
	return h.labels[bin]
}

// BinLabels returns a copy of all bin labels.
func (h *H1) BinLabels() map[int]string {
	out := make(map[int]string, len(h.labels))
	for k, v := range h.labels {
		out[k] = v
	}
	return out
}

// BinContent returns the sum of weights of an in-range bin (1-based), the
// underflow (0) or the overflow (NBins+1).
func (h *H1) BinContent(bin int) float64 {
	switch {
	case bin <= 0:
		return h.Binning.Underflow().SumW()
	case bin > h.Axis.NBins:
		return h.Binning.Overflow().SumW()
	}
	return h.Binning.Bins[bin-1].SumW()
}

// Registry owns the histograms of one analysis task. Names may contain
// slashes to group histograms into folders ("Test/h_R").
type Registry struct {
	name   string
	order  []string
	kinds  map[string]Kind
	h1     map[string]*H1
	sparse map[string]*Sparse
}

// NewRegistry creates an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:   name,
		kinds:  make(map[string]Kind),
		h1:     make(map[string]*H1),
		sparse: make(map[string]*Sparse),
	}
}

// Name returns the registry name.
func (r *Registry) Name() string { return r.name }

func (r *Registry) claim(name string, k Kind) {
	if _, dup := r.kinds[name]; dup {
		panic(fmt.Sprintf("hist: histogram %q already registered in %q", name, r.name))
	}
	r.kinds[name] = k
	r.order = append(r.order, name)
}

// Add1D registers a one-dimensional histogram.
func (r *Registry) Add1D(name, title string, axis Axis) *H1 {
	if err := axis.Validate(); err != nil {
		panic(err)
	}
	r.claim(name, KindH1)
	h := hbook.NewH1D(axis.NBins, axis.Min, axis.Max)
	h.Ann["name"] = name
	h.Ann["title"] = title
	h1 := &H1{H1D: h, Axis: axis}
	r.h1[name] = h1
	return h1
}

// AddSparse registers a sparse N-dimensional histogram.
func (r *Registry) AddSparse(name, title string, axes ...Axis) *Sparse {
	s := NewSparse(name, title, axes...)
	r.claim(name, KindSparse)
	r.sparse[name] = s
	return s
}

// Restore1D registers an already-filled hbook histogram, as read back from
// storage.
func (r *Registry) Restore1D(name string, h *hbook.H1D, axis Axis, labels map[int]string) *H1 {
	r.claim(name, KindH1)
	h1 := &H1{H1D: h, Axis: axis}
	for bin, label := range labels {
		h1.SetBinLabel(bin, label)
	}
	r.h1[name] = h1
	return h1
}

// RestoreSparse registers an already-built sparse histogram.
func (r *Registry) RestoreSparse(s *Sparse) {
	r.claim(s.Name(), KindSparse)
	r.sparse[s.Name()] = s
}

// Fill adds a unit-weight entry to the named histogram.
func (r *Registry) Fill(name string, xs ...float64) {
	switch r.kinds[name] {
	case KindH1:
		if len(xs) != 1 {
			panic(fmt.Sprintf("hist: %s: 1-D histogram filled with %d values", name, len(xs)))
		}
		r.h1[name].Fill(xs[0], 1)
	case KindSparse:
		r.sparse[name].Fill(1, xs...)
	default:
		panic(fmt.Sprintf("hist: no histogram %q in %q", name, r.name))
	}
}

// Kind returns the kind of the named histogram and whether it exists.
func (r *Registry) Kind(name string) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// H1 returns the named one-dimensional histogram or nil.
func (r *Registry) H1(name string) *H1 {
	return r.h1[name]
}

// Sparse returns the named sparse histogram or nil.
func (r *Registry) Sparse(name string) *Sparse {
	return r.sparse[name]
}

// Names returns histogram names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// SortedNames returns histogram names in lexical order.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
