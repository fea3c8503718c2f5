// Package encoding turns metric columns plus declarative settings into
// per-feature colors for the rendering layer.
package encoding

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/binning"
	"github.com/sells-group/county-atlas/internal/dataset"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/scale"
	"github.com/sells-group/county-atlas/internal/stats"
)

// RGBA is the color contract exposed to the rendering layer.
type RGBA [4]uint8

var (
	// MissingGray marks features with no usable value, fully opaque.
	MissingGray = RGBA{0xcc, 0xcc, 0xcc, 0xff}
	// Transparent marks features excluded by the active filter.
	Transparent = RGBA{0, 0, 0, 0}
)

func fromColor(c color.RGBA) RGBA {
	return RGBA{c.R, c.G, c.B, c.A}
}

// Range is an inclusive numeric filter. The zero value excludes
// everything; use FullRange for "no filter".
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FullRange admits every finite value.
func FullRange() Range {
	return Range{Min: math.Inf(-1), Max: math.Inf(1)}
}

// Contains reports whether v passes the filter. Bounds are inclusive:
// a value exactly at Min or Max stays visible.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Config assembles the inputs for a univariate layer.
type Config struct {
	MetricID string
	Settings dataset.Settings

	// Numeric input: Values with NaN for missing rows.
	Values  []float32
	Summary *stats.Summary

	// Categorical input.
	CategoryValues []string
	// Selected categories; nil means all are active.
	Selected map[string]bool

	Filter Range
	// LegendSteps is the user-facing default bin count when settings
	// pin neither bins nor a palette.
	LegendSteps int
}

// Layer is a fully-resolved univariate encoding: scale, binner and
// interpolator built once from (summary, settings), shared with the
// legend and filter control. Rebuilt on every settings change, never
// mutated.
type Layer struct {
	MetricID string
	Summary  *stats.Summary
	Scale    *scale.Scale
	Binner   *binning.Binner
	Cont     *palette.Continuous
	Ord      *palette.Ordinal
	Discrete []color.RGBA
	Filter   Range
	Selected map[string]bool

	values    []float32
	catValues []string
	settings  dataset.Settings
}

// Build resolves a univariate layer. Returns nil when the metric has no
// backing data — a single bad metric must not crash the map.
func Build(cfg Config) *Layer {
	if cfg.Summary == nil {
		zap.L().Warn("encoding: no summary, cannot render metric",
			zap.String("metric", cfg.MetricID),
		)
		return nil
	}

	l := &Layer{
		MetricID: cfg.MetricID,
		Summary:  cfg.Summary,
		Filter:   cfg.Filter,
		Selected: cfg.Selected,
		values:   cfg.Values,
		settings: cfg.Settings,
	}

	if cfg.Summary.Kind == stats.KindCategorical {
		l.catValues = cfg.CategoryValues
		l.Ord = palette.NewOrdinal(
			palette.ParseAll(cfg.Settings.Palette),
			cfg.Settings.CategoryDomain,
			cfg.Summary,
		)
		return l
	}

	l.Scale = scale.New(cfg.Summary, cfg.Settings.ScaleOptions())
	l.Cont = palette.ResolveContinuous(cfg.Settings.PaletteOptions())

	if cfg.Settings.Binning.Method != "" {
		steps := cfg.LegendSteps
		if cfg.Settings.LegendSteps > 0 {
			steps = cfg.Settings.LegendSteps
		}
		bins := binning.ResolveBins(cfg.Settings.Binning, len(cfg.Settings.Palette), steps)
		lo, hi := l.Scale.Domain()
		l.Binner = binning.New(cfg.Values, cfg.Summary, lo, hi, cfg.Settings.Binning, bins)
	}
	if l.Binner != nil {
		l.Discrete = palette.ResolveDiscrete(cfg.Settings.PaletteOptions(), l.Binner.Bins)
	}
	return l
}

// ColorAt resolves one feature's color. Resolution order: missing →
// gray; filtered-out category → transparent; non-finite numeric → gray;
// outside the filter range → transparent; binned palette lookup;
// continuous interpolation.
func (l *Layer) ColorAt(row int) RGBA {
	if l.Ord != nil {
		if row < 0 || row >= len(l.catValues) {
			return MissingGray
		}
		v := l.catValues[row]
		if l.Selected != nil && !l.Selected[v] {
			return Transparent
		}
		return fromColor(l.Ord.At(v))
	}

	if row < 0 || row >= len(l.values) {
		return MissingGray
	}
	v := float64(l.values[row])
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return MissingGray
	}
	if !l.Filter.Contains(v) {
		return Transparent
	}

	if l.Binner != nil && len(l.Discrete) > 0 {
		idx := l.Binner.Index(v)
		if idx < 0 || idx >= len(l.Discrete) {
			return MissingGray
		}
		return fromColor(l.Discrete[idx])
	}

	t := l.Scale.Normalize(v)
	if l.Binner != nil {
		// Mid-bin sampling keeps binned-without-palette colors aligned
		// with legend swatches.
		t = l.Binner.T(v)
	}
	return fromColor(l.Cont.At(t))
}

// ColorFunc returns the (feature, index) → color contract consumed by
// the rendering layer.
func (l *Layer) ColorFunc() func(row int) RGBA {
	return l.ColorAt
}

// Triggers is the explicit dependency list the rendering layer diffs to
// decide when to re-invoke the color function over all features. Any
// changed entry requires a redraw; there is no ambient reactivity.
func (l *Layer) Triggers() []string {
	out := []string{
		"metric=" + l.MetricID,
	}
	if l.Ord != nil {
		out = append(out, "selection="+selectionKey(l.Selected))
		out = append(out, "palette="+strings.Join(l.settings.Palette, ","))
		return out
	}
	lo, hi := l.Scale.Domain()
	out = append(out,
		fmt.Sprintf("filter=[%g,%g]", l.Filter.Min, l.Filter.Max),
		fmt.Sprintf("scale=%s[%g,%g]", l.Scale.Kind, lo, hi),
	)
	if l.Binner != nil {
		out = append(out, fmt.Sprintf("binning=%s/%d", l.Binner.Method, l.Binner.Bins))
	} else {
		out = append(out, "binning=off")
	}
	if len(l.settings.Palette) > 0 {
		out = append(out, "palette="+strings.Join(l.settings.Palette, ","))
	} else {
		out = append(out, "palette="+l.Cont.Mode+"/"+l.settings.Interpolation.Name)
	}
	return out
}

func selectionKey(sel map[string]bool) string {
	if sel == nil {
		return "all"
	}
	keys := make([]string, 0, len(sel))
	for k, on := range sel {
		if on {
			keys = append(keys, k)
		}
	}
	// Deterministic regardless of toggle order.
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
