// Package filterctl models the range and category filter controls. A
// range control is bound to the identical scale instance used for
// encoding, so slider positions and typed bounds land exactly on the
// values the legend axis shows.
package filterctl

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/county-atlas/internal/encoding"
	"github.com/sells-group/county-atlas/internal/numfmt"
	"github.com/sells-group/county-atlas/internal/scale"
	"github.com/sells-group/county-atlas/internal/stats"
)

// RangeControl is a bidirectional min/max selector over one numeric
// metric. Slider position and value convert through the shared scale's
// invert, never through a separately derived linear map.
type RangeControl struct {
	scale *scale.Scale
	fmt   *numfmt.Formatter

	// Whether data extends past the declared domain. When set, the
	// corresponding slider extreme means "unbounded" rather than
	// "domain edge".
	below, above bool

	lowT, highT float64

	onChange func(encoding.Range)
}

// NewRange builds a control spanning the full domain. The out-of-domain
// flags come from the same scale+summary pair the legend reads, so the
// two surfaces always agree. onChange fires on every bound movement and
// may be nil.
func NewRange(s *scale.Scale, sum *stats.Summary, f *numfmt.Formatter, onChange func(encoding.Range)) *RangeControl {
	c := &RangeControl{
		scale:    s,
		fmt:      f,
		lowT:     0,
		highT:    1,
		onChange: onChange,
	}
	c.below, c.above = s.OutOfDomain(sum)
	return c
}

// Bounds resolves the effective filter range. A slider at its extreme
// maps to an unbounded edge whenever data exists beyond the domain, so
// dragging "to the end" truly means no limit rather than limit = edge.
func (c *RangeControl) Bounds() encoding.Range {
	r := encoding.Range{
		Min: c.scale.Invert(c.lowT),
		Max: c.scale.Invert(c.highT),
	}
	if c.lowT == 0 && c.below {
		r.Min = math.Inf(-1)
	}
	if c.highT == 1 && c.above {
		r.Max = math.Inf(1)
	}
	return r
}

// Positions returns the current slider positions in [0,1].
func (c *RangeControl) Positions() (low, high float64) {
	return c.lowT, c.highT
}

// Labels renders the displayed bound text. Unbounded edges show the
// infinity marker.
func (c *RangeControl) Labels() (low, high string) {
	r := c.Bounds()
	return c.fmt.Format(r.Min), c.fmt.Format(r.Max)
}

// SetSliders moves both thumbs. Positions are clamped into [0,1] and
// reordered so low ≤ high.
func (c *RangeControl) SetSliders(low, high float64) {
	low = clamp01(low)
	high = clamp01(high)
	if low > high {
		low, high = high, low
	}
	c.lowT, c.highT = low, high
	c.fire()
}

// SetMinText applies a typed lower bound. The value is parsed from
// human shorthand, clamped into the domain, and converted to a slider
// position through the shared scale.
func (c *RangeControl) SetMinText(s string) error {
	v, err := c.fmt.Parse(s)
	if err != nil {
		return eris.Wrap(err, "filterctl: min bound")
	}
	c.lowT = c.scale.Normalize(v)
	if c.lowT > c.highT {
		c.highT = c.lowT
	}
	c.fire()
	return nil
}

// SetMaxText applies a typed upper bound.
func (c *RangeControl) SetMaxText(s string) error {
	v, err := c.fmt.Parse(s)
	if err != nil {
		return eris.Wrap(err, "filterctl: max bound")
	}
	c.highT = c.scale.Normalize(v)
	if c.highT < c.lowT {
		c.lowT = c.highT
	}
	c.fire()
	return nil
}

// Reset returns both thumbs to the extremes.
func (c *RangeControl) Reset() {
	c.lowT, c.highT = 0, 1
	c.fire()
}

func (c *RangeControl) fire() {
	if c.onChange != nil {
		c.onChange(c.Bounds())
	}
}

func clamp01(t float64) float64 {
	switch {
	case t < 0 || math.IsNaN(t):
		return 0
	case t > 1:
		return 1
	}
	return t
}

// CategoryControl is the selection filter for a categorical metric.
// Categories keep the summary's descending-count order, matching the
// legend.
type CategoryControl struct {
	order    []string
	selected map[string]bool

	onChange func(map[string]bool)
}

// NewCategory builds a control with every observed category selected.
// onChange receives the selection snapshot after each toggle; nil means
// everything is selected.
func NewCategory(sum *stats.Summary, onChange func(map[string]bool)) *CategoryControl {
	c := &CategoryControl{
		selected: map[string]bool{},
		onChange: onChange,
	}
	if sum != nil {
		for _, cat := range sum.Categories {
			c.order = append(c.order, cat.Value)
			c.selected[cat.Value] = true
		}
	}
	return c
}

// Order returns the display order, ranked by descending count.
func (c *CategoryControl) Order() []string {
	return c.order
}

// IsSelected reports one category's state.
func (c *CategoryControl) IsSelected(value string) bool {
	return c.selected[value]
}

// Toggle flips one category and notifies.
func (c *CategoryControl) Toggle(value string) {
	c.selected[value] = !c.selected[value]
	c.fire()
}

// Only selects exactly one category.
func (c *CategoryControl) Only(value string) {
	for v := range c.selected {
		c.selected[v] = v == value
	}
	c.fire()
}

// All reselects everything.
func (c *CategoryControl) All() {
	for v := range c.selected {
		c.selected[v] = true
	}
	c.fire()
}

// Selection snapshots the active set for the encoder. Returns nil when
// every category is selected, which the encoder treats as no filter.
func (c *CategoryControl) Selection() map[string]bool {
	all := true
	for _, on := range c.selected {
		if !on {
			all = false
			break
		}
	}
	if all {
		return nil
	}
	out := make(map[string]bool, len(c.selected))
	for v, on := range c.selected {
		if on {
			out[v] = true
		}
	}
	return out
}

func (c *CategoryControl) fire() {
	if c.onChange != nil {
		c.onChange(c.Selection())
	}
}
