// Package legend derives presentation models from the same scale,
// binner and interpolator instances used for encoding. Nothing here
// recomputes colors or positions independently, which is what keeps the
// legend in agreement with the map.
package legend

import (
	"image/color"

	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/encoding"
	"github.com/sells-group/county-atlas/internal/numfmt"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/scale"
	"github.com/sells-group/county-atlas/internal/stats"
)

// Mode selects the legend presentation.
type Mode string

const (
	ModeGradient    Mode = "gradient"
	ModeBinned      Mode = "binned"
	ModeCategorical Mode = "categorical"
	ModeBivariate   Mode = "bivariate"
)

// RampSamples is how finely the gradient bar is sampled.
const RampSamples = 64

// DefaultSteps is the tick/bin count when nothing pins one.
const DefaultSteps = 5

// Tick is one axis mark: the raw value, its normalized position, and
// its formatted label.
type Tick struct {
	Value float64 `json:"value"`
	T     float64 `json:"t"`
	Label string  `json:"label"`
}

// Swatch is one discrete legend entry.
type Swatch struct {
	Color string `json:"color"`
	Label string `json:"label"`
	Count int    `json:"count,omitempty"`
}

// AxisModel is one axis of a bivariate legend.
type AxisModel struct {
	MetricID string `json:"metric_id"`
	Ticks    []Tick `json:"ticks"`
	Below    bool   `json:"below"`
	Above    bool   `json:"above"`
}

// Model is a renderable legend. Exactly one of Ramp/Swatches/Grid is
// populated depending on Mode.
type Model struct {
	Mode  Mode   `json:"mode"`
	Badge string `json:"badge,omitempty"`

	// Gradient mode.
	Ramp  []string `json:"ramp,omitempty"`
	Ticks []Tick   `json:"ticks,omitempty"`

	// Binned and categorical modes.
	Swatches []Swatch `json:"swatches,omitempty"`

	// Whether observed data extends past the declared domain. Shared
	// verbatim with the filter control.
	Below bool `json:"below"`
	Above bool `json:"above"`

	// Bivariate mode: grid rows bottom-up (row 0 = lowest Y bin) plus
	// one axis model per dimension.
	Grid [][]string `json:"grid,omitempty"`
	X    *AxisModel `json:"x,omitempty"`
	Y    *AxisModel `json:"y,omitempty"`
}

// Build derives the legend for a univariate layer. Returns nil for a
// nil layer.
func Build(l *encoding.Layer, f *numfmt.Formatter, steps int) *Model {
	if l == nil {
		return nil
	}
	if steps < 2 {
		steps = DefaultSteps
	}

	if l.Ord != nil {
		return categoricalModel(l)
	}

	m := &Model{Badge: badge(l.Scale)}
	m.Below, m.Above = l.Scale.OutOfDomain(l.Summary)

	if l.Binner != nil {
		m.Mode = ModeBinned
		m.Swatches = binnedSwatches(l, f)
		return m
	}

	m.Mode = ModeGradient
	m.Ramp = hexAll(l.Cont.Swatches(RampSamples))
	m.Ticks = axisTicks(l.Scale, f, steps, m.Below, m.Above)
	return m
}

func categoricalModel(l *encoding.Layer) *Model {
	m := &Model{Mode: ModeCategorical}
	// Ranked by descending count, straight from the summary.
	for _, c := range l.Summary.Categories {
		label := c.Value
		if label == "" {
			label = "(none)"
		}
		m.Swatches = append(m.Swatches, Swatch{
			Color: palette.Hex(l.Ord.At(c.Value)),
			Label: label,
			Count: c.Count,
		})
	}
	return m
}

// binnedSwatches labels each bin by its edge range. The first and last
// bins read open-ended so out-of-domain values visibly belong to them.
func binnedSwatches(l *encoding.Layer, f *numfmt.Formatter) []Swatch {
	edges := l.Binner.Edges()
	n := l.Binner.Bins
	out := make([]Swatch, 0, n)
	for i := 0; i < n; i++ {
		var c color.RGBA
		if len(l.Discrete) > 0 {
			c = l.Discrete[i]
		} else {
			c = l.Cont.At((float64(i) + 0.5) / float64(n))
		}
		out = append(out, Swatch{
			Color: palette.Hex(c),
			Label: binLabel(f, edges, i, n),
		})
	}
	return out
}

func binLabel(f *numfmt.Formatter, edges []float64, i, n int) string {
	switch {
	case i == 0:
		return "≤ " + f.Format(edges[1])
	case i == n-1:
		return "≥ " + f.Format(edges[n-1])
	default:
		return f.Format(edges[i]) + " – " + f.Format(edges[i+1])
	}
}

// axisTicks places evenly-spaced ticks via scale inversion so tick
// values land exactly where a filter slider at the same position would.
func axisTicks(s *scale.Scale, f *numfmt.Formatter, steps int, below, above bool) []Tick {
	vals := s.Ticks(steps)
	out := make([]Tick, len(vals))
	for i, v := range vals {
		t := float64(i) / float64(len(vals)-1)
		label := f.Format(v)
		// Open-ended annotations when data exists beyond the domain.
		if i == 0 && below {
			label = "≤ " + label
		}
		if i == len(vals)-1 && above {
			label = "≥ " + label
		}
		out[i] = Tick{Value: v, T: t, Label: label}
	}
	return out
}

// badge is the scale annotation shown next to the legend. Linear is the
// unannotated default.
func badge(s *scale.Scale) string {
	switch s.Kind {
	case scale.Linear:
		return ""
	case scale.Pow:
		return "pow " + numfmt.New("", false, 0).Format(s.Exponent)
	default:
		return string(s.Kind)
	}
}

// BuildBivariate derives the 2D grid legend. When the layer has no
// declared palette grid, the grid is synthesized by blending the two
// axis ramps at mid-bin positions, so it shows exactly the colors the
// blend produces on the map.
func BuildBivariate(l *encoding.BivariateLayer, fx, fy *numfmt.Formatter, steps int) *Model {
	if l == nil {
		return nil
	}
	if steps < 2 {
		steps = 3
	}

	m := &Model{Mode: ModeBivariate}
	m.X = axisModel(l.X, fx, steps)
	m.Y = axisModel(l.Y, fy, steps)

	if l.Grid != nil {
		m.Grid = hexRows(l.Grid.RowsBottomUp())
		return m
	}
	m.Grid = blendedGrid(l, steps)
	return m
}

func axisModel(a *encoding.Axis, f *numfmt.Formatter, steps int) *AxisModel {
	am := &AxisModel{MetricID: a.MetricID}
	am.Below, am.Above = a.Scale.OutOfDomain(a.Summary)
	if a.Binner != nil {
		am.Ticks = edgeTicks(a, f, am.Below, am.Above)
	} else {
		am.Ticks = axisTicks(a.Scale, f, steps, am.Below, am.Above)
	}
	return am
}

// edgeTicks marks the bin edges of a binned axis.
func edgeTicks(a *encoding.Axis, f *numfmt.Formatter, below, above bool) []Tick {
	edges := a.Binner.Edges()
	out := make([]Tick, len(edges))
	for i, v := range edges {
		t := float64(i) / float64(len(edges)-1)
		label := f.Format(v)
		if i == 0 && below {
			label = "≤ " + label
		}
		if i == len(edges)-1 && above {
			label = "≥ " + label
		}
		out[i] = Tick{Value: v, T: t, Label: label}
	}
	return out
}

// blendedGrid samples the blend at bin midpoints, bottom-up.
func blendedGrid(l *encoding.BivariateLayer, steps int) [][]string {
	cols, rows := steps, steps
	if l.X.Binner != nil {
		cols = l.X.Binner.Bins
	}
	if l.Y.Binner != nil {
		rows = l.Y.Binner.Bins
	}
	if cols < 2 || rows < 2 {
		zap.L().Warn("legend: degenerate bivariate grid",
			zap.Int("cols", cols),
			zap.Int("rows", rows),
		)
	}
	grid := make([][]string, rows)
	for r := 0; r < rows; r++ {
		row := make([]string, cols)
		for c := 0; c < cols; c++ {
			tx := (float64(c) + 0.5) / float64(cols)
			ty := (float64(r) + 0.5) / float64(rows)
			row[c] = palette.Hex(l.BlendAt(tx, ty))
		}
		grid[r] = row
	}
	return grid
}

// Ranked exposes the categorical ranking used for legend order, for
// callers that need labels without colors.
func Ranked(sum *stats.Summary) []stats.Category {
	if sum == nil || sum.Kind != stats.KindCategorical {
		return nil
	}
	return sum.Categories
}

func hexAll(cs []color.RGBA) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = palette.Hex(c)
	}
	return out
}

func hexRows(rows [][]color.RGBA) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = hexAll(r)
	}
	return out
}
