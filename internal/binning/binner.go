// Package binning discretizes continuous values into ordered buckets.
package binning

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/stats"
)

// Method selects the binning strategy.
type Method string

const (
	Quantize    Method = "quantize"
	Quantile    Method = "quantile"
	Cluster     Method = "cluster"
	Breakpoints Method = "breakpoints"
)

// Options declares how a binner is built.
type Options struct {
	Method      string    `yaml:"method" mapstructure:"method"`
	Bins        int       `yaml:"bins" mapstructure:"bins"`
	Breakpoints []float64 `yaml:"breakpoints" mapstructure:"breakpoints"`
}

// ResolveBins picks the effective bin count: the explicit setting wins,
// then an explicit palette's length, then the caller default. Never
// fewer than 2.
func ResolveBins(opts Options, paletteLen, fallback int) int {
	n := opts.Bins
	if n <= 0 {
		n = paletteLen
	}
	if n <= 0 {
		n = fallback
	}
	if n < 2 {
		n = 2
	}
	return n
}

// Binner maps raw values to bin indexes over a fixed edge list.
// Edges are non-decreasing with length Bins+1. Built fresh per
// (values, summary, options); never mutated afterwards.
type Binner struct {
	Method Method
	Bins   int
	edges  []float64
}

// New builds a binner. Distribution-dependent methods (quantile, cluster)
// read the observed values; quantize and breakpoints use the domain
// bounds. Returns nil when the method is unrecognized or the inputs are
// insufficient to place any edge.
func New(values []float32, sum *stats.Summary, domainLo, domainHi float64, opts Options, bins int) *Binner {
	if sum == nil || sum.Kind != stats.KindNumeric || bins < 2 {
		return nil
	}
	if domainLo > domainHi {
		domainLo, domainHi = domainHi, domainLo
	}

	switch Method(opts.Method) {
	case Quantize:
		return &Binner{Method: Quantize, Bins: bins, edges: quantizeEdges(domainLo, domainHi, bins)}
	case Quantile:
		return quantileBinner(values, bins)
	case Cluster:
		if b := clusterBinner(values, bins); b != nil {
			return b
		}
		// Clustering needs enough distinct values; equal-population is
		// the closest fallback.
		zap.L().Warn("binning: cluster unavailable, falling back to quantile", zap.Int("bins", bins))
		return quantileBinner(values, bins)
	case Breakpoints:
		return breakpointBinner(opts.Breakpoints, domainLo, domainHi)
	default:
		if opts.Method != "" {
			zap.L().Warn("binning: unrecognized method", zap.String("method", opts.Method))
		}
		return nil
	}
}

// Index returns the bin for a value, always clamped into [0, Bins-1].
// A value equal to an interior edge lands in the lower bin, matching the
// "≤ X" first-bin label convention.
func (b *Binner) Index(v float64) int {
	// Count of interior edges strictly below v.
	idx := sort.SearchFloat64s(b.edges[1:b.Bins], v)
	if idx > b.Bins-1 {
		idx = b.Bins - 1
	}
	return idx
}

// T returns the mid-bin position (index+0.5)/bins. The midpoint, not the
// bin start, keeps continuous-interpolator sampling and filter-slider
// alignment consistent with legend tick placement.
func (b *Binner) T(v float64) float64 {
	return (float64(b.Index(v)) + 0.5) / float64(b.Bins)
}

// Edges returns the bin edge list (length Bins+1, non-decreasing).
func (b *Binner) Edges() []float64 {
	return b.edges
}

func quantizeEdges(lo, hi float64, bins int) []float64 {
	edges := make([]float64, bins+1)
	span := hi - lo
	for i := 0; i <= bins; i++ {
		edges[i] = lo + span*float64(i)/float64(bins)
	}
	edges[bins] = hi
	return edges
}

// sortedFinite extracts the finite values in ascending order.
func sortedFinite(values []float32) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			out = append(out, f)
		}
	}
	sort.Float64s(out)
	return out
}

// quantileBinner places edges at order statistics of the observed
// distribution. The declared settings domain is ignored except as
// display bounds; the data decides the cuts.
func quantileBinner(values []float32, bins int) *Binner {
	sorted := sortedFinite(values)
	if len(sorted) == 0 {
		return nil
	}
	edges := make([]float64, bins+1)
	edges[0] = sorted[0]
	edges[bins] = sorted[len(sorted)-1]
	for i := 1; i < bins; i++ {
		edges[i] = quantileSorted(sorted, float64(i)/float64(bins))
	}
	return &Binner{Method: Quantile, Bins: bins, edges: edges}
}

// quantileSorted interpolates the p-quantile of an ascending slice.
func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// clusterBinner groups values by natural breaks (CKmeans). Each group's
// maximum becomes an upper threshold, all but the last. Returns nil when
// there are fewer distinct values than requested groups.
func clusterBinner(values []float32, bins int) *Binner {
	sorted := sortedFinite(values)
	groups := ckmeans(sorted, bins)
	if groups == nil {
		return nil
	}
	edges := make([]float64, 0, bins+1)
	edges = append(edges, sorted[0])
	for i := 0; i < len(groups)-1; i++ {
		g := groups[i]
		edges = append(edges, g[len(g)-1])
	}
	edges = append(edges, sorted[len(sorted)-1])
	return &Binner{Method: Cluster, Bins: len(edges) - 1, edges: edges}
}

// Relative tolerance for deciding a breakpoint list already spans the
// domain.
const spanEpsilon = 1e-9

// breakpointBinner builds edges from user-declared monotonic cut points.
// A list already spanning the full domain is taken as the complete edge
// list; otherwise the points are interior thresholds and the domain ends
// are synthesized as outer edges.
func breakpointBinner(points []float64, lo, hi float64) *Binner {
	if len(points) == 0 {
		return nil
	}
	// Deduplicate adjacent-equal points.
	dedup := points[:0:0]
	for i, p := range points {
		if i == 0 || p != dedup[len(dedup)-1] {
			dedup = append(dedup, p)
		}
	}

	tol := spanEpsilon * (hi - lo)
	fullSpan := len(dedup) >= 2 &&
		math.Abs(dedup[0]-lo) <= tol &&
		math.Abs(dedup[len(dedup)-1]-hi) <= tol

	var edges []float64
	if fullSpan {
		edges = dedup
	} else {
		edges = make([]float64, 0, len(dedup)+2)
		edges = append(edges, lo)
		edges = append(edges, dedup...)
		edges = append(edges, hi)
	}
	if len(edges) < 3 {
		return nil
	}
	return &Binner{Method: Breakpoints, Bins: len(edges) - 1, edges: edges}
}
