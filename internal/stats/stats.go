// Package stats computes read-only summaries of metric columns.
package stats

import (
	"math"
	"sort"
)

// Summary kinds.
const (
	KindNumeric     = "numeric"
	KindCategorical = "categorical"
)

// Category is a single categorical value with its occurrence count.
type Category struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summary is a derived snapshot of a column. It is never mutated after
// construction; callers rebuild it when the underlying values change.
type Summary struct {
	Kind string `json:"kind"`

	// Numeric fields.
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Mean   float64 `json:"mean,omitempty"`
	Median float64 `json:"median,omitempty"`
	Count  int     `json:"count"`

	// Categorical fields.
	Categories   []Category `json:"categories,omitempty"`
	UniqueValues int        `json:"unique_values,omitempty"`
}

// Numeric summarizes a float32 column. Non-finite entries (NaN encodes a
// missing value) are skipped. Returns nil when no finite values exist.
func Numeric(values []float32) *Summary {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			finite = append(finite, f)
		}
	}
	if len(finite) == 0 {
		return nil
	}
	sort.Float64s(finite)

	sum := 0.0
	for _, v := range finite {
		sum += v
	}
	n := len(finite)
	return &Summary{
		Kind: KindNumeric,
		Min:  finite[0],
		Max:  finite[n-1],
		Mean: sum / float64(n),
		// Lower median: element at floor(n/2), no averaging for even n.
		Median: finite[n/2],
		Count:  n,
	}
}

// Precomputed builds a numeric summary from metadata attached to a metric.
// Used as a short-circuit for canonical fields whose stats were computed at
// pack-build time; composites must always be rescanned.
func Precomputed(min, max, mean, median float64, count int) *Summary {
	return &Summary{
		Kind:   KindNumeric,
		Min:    min,
		Max:    max,
		Mean:   mean,
		Median: median,
		Count:  count,
	}
}

// Categorical summarizes a string column. Null/empty values are tallied
// into an empty-string bucket. Categories are ranked by descending count;
// ties keep first-encounter order. Returns nil for an empty column.
func Categorical(values []string) *Summary {
	if len(values) == 0 {
		return nil
	}
	counts := make(map[string]int, 16)
	order := make([]string, 0, 16)
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	cats := make([]Category, 0, len(order))
	for _, v := range order {
		cats = append(cats, Category{Value: v, Count: counts[v]})
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Count > cats[j].Count
	})

	return &Summary{
		Kind:         KindCategorical,
		Count:        len(values),
		Categories:   cats,
		UniqueValues: len(cats),
	}
}

// Span returns the observed numeric range, or 0 for non-numeric summaries.
func (s *Summary) Span() float64 {
	if s == nil || s.Kind != KindNumeric {
		return 0
	}
	return s.Max - s.Min
}
