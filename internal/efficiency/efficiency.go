// Package efficiency derives daughter-track efficiencies from the 5-D status
// histograms of the K0S analysis.
package efficiency

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/trackeff.report/internal/hist"
	"github.com/banshee-data/trackeff.report/internal/k0seff"
)

var (
	ErrUnknownVariable = errors.New("efficiency: unknown variable")
	ErrUnknownStatus   = errors.New("efficiency: unknown status")
	ErrNoHistogram     = errors.New("efficiency: status histogram missing")
)

// Variable is the axis an efficiency curve is binned in.
type Variable string

const (
	VsRadius Variable = "r"
	VsPt     Variable = "pt"
)

// Status selects which daughter flag defines a passing candidate.
type Status string

const (
	StatusITS Status = "its"
	StatusIB  Status = "ib"
)

// ParseVariable accepts "r" or "pt", case-insensitively.
func ParseVariable(s string) (Variable, error) {
	switch v := Variable(strings.ToLower(s)); v {
	case VsRadius, VsPt:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariable, s)
}

// ParseStatus accepts "its" or "ib", case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch v := Status(strings.ToLower(s)); v {
	case StatusITS, StatusIB:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) histogram() string {
	if s == StatusIB {
		return k0seff.HRpTMassIBStatus
	}
	return k0seff.HRpTMassITSStatus
}

func (v Variable) axis() int {
	if v == VsPt {
		return k0seff.AxisPt
	}
	return k0seff.AxisRadius
}

// Options controls the mass window and interval coverage.
type Options struct {
	MassMin         float64
	MassMax         float64
	ConfidenceLevel float64
}

// Point is one bin of an efficiency curve. Total counts every candidate in
// the bin, Single those with at least one flagged daughter and Pass those
// with both. Empty bins have Total == 0 and a zero interval.
type Point struct {
	Bin        int     `json:"bin"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Center     float64 `json:"center"`
	Pass       float64 `json:"pass"`
	Single     float64 `json:"single"`
	Total      float64 `json:"total"`
	Efficiency float64 `json:"efficiency"`
	SingleEff  float64 `json:"single_efficiency"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
}

// Empty reports whether the bin had no candidates.
func (p Point) Empty() bool { return p.Total == 0 }

// Curve is an efficiency as a function of R or pT.
type Curve struct {
	Histogram       string   `json:"histogram"`
	Variable        Variable `json:"variable"`
	Status          Status   `json:"status"`
	Title           string   `json:"title"`
	MassMin         float64  `json:"mass_min"`
	MassMax         float64  `json:"mass_max"`
	ConfidenceLevel float64  `json:"confidence_level"`
	Points          []Point  `json:"points"`
}

// FromRegistry computes the curve for status vs variable from a registry
// filled by a k0seff.Task.
func FromRegistry(r *hist.Registry, status Status, v Variable, opts Options) (Curve, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Curve{}, err
	}
	if _, err := ParseVariable(string(v)); err != nil {
		return Curve{}, err
	}
	s := r.Sparse(status.histogram())
	if s == nil {
		return Curve{}, fmt.Errorf("%w: %s", ErrNoHistogram, status.histogram())
	}
	c := Compute(s, v.axis(), opts)
	c.Variable = v
	c.Status = status
	return c, nil
}

// Compute projects a status histogram onto axis, keeping candidates whose
// mass bin centre lies inside [MassMin, MassMax].
func Compute(s *hist.Sparse, axis int, opts Options) Curve {
	axes := s.Axes()
	mass := axes[k0seff.AxisMass]
	inWindow := func(bins []int) bool {
		mb := bins[k0seff.AxisMass]
		if mb < 1 || mb > mass.NBins {
			return false
		}
		c := mass.BinCenter(mb)
		return c >= opts.MassMin && c <= opts.MassMax
	}
	flagged := func(bins []int, ax int) bool {
		return bins[ax] == axes[ax].FindBin(1)
	}

	total := s.Counts(axis, inWindow)
	single := s.Counts(axis, func(bins []int) bool {
		return inWindow(bins) && (flagged(bins, k0seff.AxisNegStatus) || flagged(bins, k0seff.AxisPosStatus))
	})
	pass := s.Counts(axis, func(bins []int) bool {
		return inWindow(bins) && flagged(bins, k0seff.AxisNegStatus) && flagged(bins, k0seff.AxisPosStatus)
	})

	a := axes[axis]
	c := Curve{
		Histogram:       s.Name(),
		Title:           a.Title,
		MassMin:         opts.MassMin,
		MassMax:         opts.MassMax,
		ConfidenceLevel: opts.ConfidenceLevel,
		Points:          make([]Point, 0, a.NBins),
	}
	for bin := 1; bin <= a.NBins; bin++ {
		p := Point{
			Bin:    bin,
			Low:    a.BinLowEdge(bin),
			High:   a.BinUpEdge(bin),
			Center: a.BinCenter(bin),
			Pass:   pass[bin],
			Single: single[bin],
			Total:  total[bin],
		}
		if p.Total > 0 {
			p.Efficiency = p.Pass / p.Total
			p.SingleEff = p.Single / p.Total
			p.Lower, p.Upper = ClopperPearson(p.Pass, p.Total, opts.ConfidenceLevel)
		}
		c.Points = append(c.Points, p)
	}
	return c
}

// ClopperPearson returns the central interval for k successes in n trials
// at confidence level cl. It returns (0, 0) for n <= 0.
func ClopperPearson(k, n, cl float64) (lower, upper float64) {
	if n <= 0 {
		return 0, 0
	}
	k = math.Max(0, math.Min(k, n))
	alpha := 1 - cl
	lower, upper = 0, 1
	if k > 0 {
		lower = distuv.Beta{Alpha: k, Beta: n - k + 1}.Quantile(alpha / 2)
	}
	if k < n {
		upper = distuv.Beta{Alpha: k + 1, Beta: n - k}.Quantile(1 - alpha/2)
	}
	return lower, upper
}
