package encoding

import (
	"fmt"
	"image/color"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/binning"
	"github.com/sells-group/county-atlas/internal/dataset"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/scale"
	"github.com/sells-group/county-atlas/internal/stats"
)

// Blend modes for continuous bivariate color mixing.
const (
	BlendAdditive = "additive"
	BlendMultiply = "multiply"
	BlendScreen   = "screen"
)

// Axis is one independently-scaled dimension of a bivariate layer.
type Axis struct {
	MetricID string
	Summary  *stats.Summary
	Scale    *scale.Scale
	Binner   *binning.Binner
	Cont     *palette.Continuous
	Filter   Range

	values []float32
}

// AxisConfig assembles one bivariate axis.
type AxisConfig struct {
	MetricID string
	Values   []float32
	Summary  *stats.Summary
	Settings dataset.Settings
	Filter   Range
	// DefaultGradient is used when the axis settings declare no
	// interpolation (sequential blue for X, orange for Y).
	DefaultGradient string
	LegendSteps     int
}

// BuildAxis resolves one axis. Returns nil when the axis metric has no
// data.
func BuildAxis(cfg AxisConfig) *Axis {
	if cfg.Summary == nil || cfg.Summary.Kind != stats.KindNumeric {
		zap.L().Warn("encoding: bivariate axis has no numeric data",
			zap.String("metric", cfg.MetricID),
		)
		return nil
	}
	a := &Axis{
		MetricID: cfg.MetricID,
		Summary:  cfg.Summary,
		Filter:   cfg.Filter,
		values:   cfg.Values,
	}
	a.Scale = scale.New(cfg.Summary, cfg.Settings.ScaleOptions())

	popts := cfg.Settings.PaletteOptions()
	if popts.Interpolation.Type == "" && popts.Interpolation.Name == "" {
		popts.Interpolation.Name = cfg.DefaultGradient
	}
	a.Cont = palette.ResolveContinuous(popts)

	if cfg.Settings.Binning.Method != "" {
		steps := cfg.LegendSteps
		if cfg.Settings.LegendSteps > 0 {
			steps = cfg.Settings.LegendSteps
		}
		bins := binning.ResolveBins(cfg.Settings.Binning, len(cfg.Settings.Palette), steps)
		lo, hi := a.Scale.Domain()
		a.Binner = binning.New(cfg.Values, cfg.Summary, lo, hi, cfg.Settings.Binning, bins)
	}
	return a
}

func (a *Axis) value(row int) float64 {
	if row < 0 || row >= len(a.values) {
		return math.NaN()
	}
	return float64(a.values[row])
}

// binFor discretizes a value into n cells, via the axis binner when
// present, else by uniform split of the normalized position.
func (a *Axis) binFor(v float64, n int) int {
	if a.Binner != nil {
		return a.Binner.Index(v)
	}
	idx := int(a.Scale.Normalize(v) * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// BivariateLayer encodes two independent metrics into one blended (or
// grid-looked-up) color per feature.
type BivariateLayer struct {
	X, Y  *Axis
	Grid  *palette.Grid
	Blend string
}

// BuildBivariate resolves a bivariate layer from two axes and the
// declared method. Either axis failing to resolve fails the layer.
func BuildBivariate(x, y *Axis, method *dataset.BivarMethod) *BivariateLayer {
	if x == nil || y == nil {
		return nil
	}
	l := &BivariateLayer{X: x, Y: y, Blend: BlendAdditive}
	if method != nil {
		if method.BlendMode != "" {
			l.Blend = method.BlendMode
		}
		if len(method.Palette) > 0 {
			l.Grid = palette.NewGrid(method.Palette)
		}
	}
	switch l.Blend {
	case BlendAdditive, BlendMultiply, BlendScreen:
	default:
		zap.L().Warn("encoding: unknown blend mode, using additive",
			zap.String("blend", l.Blend),
		)
		l.Blend = BlendAdditive
	}

	// Declared grid dimensions are authoritative over configured bin
	// counts; mismatches are reported, never resized.
	if l.Grid != nil {
		cols, rows := l.Grid.Dims()
		if x.Binner != nil && x.Binner.Bins != cols {
			zap.L().Warn("encoding: x bin count disagrees with palette grid, grid wins",
				zap.Int("bins", x.Binner.Bins),
				zap.Int("grid_cols", cols),
			)
		}
		if y.Binner != nil && y.Binner.Bins != rows {
			zap.L().Warn("encoding: y bin count disagrees with palette grid, grid wins",
				zap.Int("bins", y.Binner.Bins),
				zap.Int("grid_rows", rows),
			)
		}
	}
	return l
}

// ColorAt resolves one feature: gray when either axis is non-finite,
// transparent when either axis is filtered out, else grid lookup or
// channel blend.
func (l *BivariateLayer) ColorAt(row int) RGBA {
	xv := l.X.value(row)
	yv := l.Y.value(row)
	if math.IsNaN(xv) || math.IsInf(xv, 0) || math.IsNaN(yv) || math.IsInf(yv, 0) {
		return MissingGray
	}
	if !l.X.Filter.Contains(xv) || !l.Y.Filter.Contains(yv) {
		return Transparent
	}

	if l.Grid != nil {
		cols, rows := l.Grid.Dims()
		return fromColor(l.Grid.At(l.X.binFor(xv, cols), l.Y.binFor(yv, rows)))
	}

	cx := l.X.Cont.At(l.X.axisT(xv))
	cy := l.Y.Cont.At(l.Y.axisT(yv))
	return blend(l.Blend, RGBA{cx.R, cx.G, cx.B, 255}, RGBA{cy.R, cy.G, cy.B, 255})
}

// BlendAt mixes the two axis ramps at normalized positions. The legend
// samples this to draw the synthesized grid for blend-mode layers.
func (l *BivariateLayer) BlendAt(tx, ty float64) color.RGBA {
	cx := l.X.Cont.At(tx)
	cy := l.Y.Cont.At(ty)
	out := blend(l.Blend, RGBA{cx.R, cx.G, cx.B, 255}, RGBA{cy.R, cy.G, cy.B, 255})
	return color.RGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

func (a *Axis) axisT(v float64) float64 {
	if a.Binner != nil {
		return a.Binner.T(v)
	}
	return a.Scale.Normalize(v)
}

// ColorFunc returns the rendering-layer contract.
func (l *BivariateLayer) ColorFunc() func(row int) RGBA {
	return l.ColorAt
}

// Triggers is the redraw dependency list for the bivariate layer.
func (l *BivariateLayer) Triggers() []string {
	out := []string{
		"x.metric=" + l.X.MetricID,
		"y.metric=" + l.Y.MetricID,
		fmt.Sprintf("x.filter=[%g,%g]", l.X.Filter.Min, l.X.Filter.Max),
		fmt.Sprintf("y.filter=[%g,%g]", l.Y.Filter.Min, l.Y.Filter.Max),
		"blend=" + l.Blend,
	}
	if l.Grid != nil {
		cols, rows := l.Grid.Dims()
		out = append(out, fmt.Sprintf("grid=%dx%d", cols, rows))
	}
	return out
}

// blend mixes two axis colors per channel.
//
//	additive: clamp(c1+c2-255) — optical mixing, darkens toward overlap
//	multiply: c1*c2/255 — subtractive darkening
//	screen:   255-(255-c1)(255-c2)/255 — brightening
func blend(mode string, a, b RGBA) RGBA {
	var out RGBA
	out[3] = 255
	for i := 0; i < 3; i++ {
		c1 := int(a[i])
		c2 := int(b[i])
		var v int
		switch mode {
		case BlendMultiply:
			v = c1 * c2 / 255
		case BlendScreen:
			v = 255 - (255-c1)*(255-c2)/255
		default: // additive
			v = c1 + c2 - 255
		}
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = uint8(v)
	}
	return out
}
