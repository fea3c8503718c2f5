package palette

import (
	"image/color"

	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/stats"
)

// Interpolation modes.
const (
	ModeNamed     = "named"
	ModeRGB       = "rgb"
	ModeCubehelix = "cubehelix"
)

// Interpolation declares the continuous color ramp.
type Interpolation struct {
	Type      string   `yaml:"type" mapstructure:"type"`
	Name      string   `yaml:"name" mapstructure:"name"`
	Colors    []string `yaml:"colors" mapstructure:"colors"`
	Gamma     float64  `yaml:"gamma" mapstructure:"gamma"`
	Piecewise bool     `yaml:"piecewise" mapstructure:"piecewise"`
}

// Options declares the full palette configuration of a metric.
type Options struct {
	Interpolation Interpolation `yaml:"interpolation" mapstructure:"interpolation"`
	Palette       []string      `yaml:"palette" mapstructure:"palette"`
	Ordinal       bool          `yaml:"ordinal" mapstructure:"ordinal"`
	Domain        []string      `yaml:"category_domain" mapstructure:"category_domain"`
	Grid          [][]string    `yaml:"grid" mapstructure:"grid"`
	PaletteSteps  int           `yaml:"palette_steps" mapstructure:"palette_steps"`
}

// Continuous maps a normalized position in [0,1] to a color. The
// capability split (gamma vs. piecewise vs. basis) is resolved once at
// construction into a single curried function, never probed per pixel.
type Continuous struct {
	Mode string
	fn   func(float64) color.RGBA
}

// At returns the color at position t, clamped into [0,1].
func (c *Continuous) At(t float64) color.RGBA {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return c.fn(t)
}

// Swatches samples n discrete swatches at mid-bin positions
// ((i+0.5)/n), matching the binner's position contract.
func (c *Continuous) Swatches(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		out[i] = c.At((float64(i) + 0.5) / float64(n))
	}
	return out
}

// Named builds a continuous ramp from a named gradient.
func Named(name string) *Continuous {
	stops := Gradient(name)
	return &Continuous{Mode: ModeNamed, fn: func(t float64) color.RGBA {
		return rampAt(stops, t)
	}}
}

// ResolveContinuous builds the continuous interpolator declared by the
// options. Anything unresolvable falls back to the named default
// (Viridis).
func ResolveContinuous(opts Options) *Continuous {
	interp := opts.Interpolation
	switch interp.Type {
	case ModeRGB, ModeCubehelix:
		stops := ParseAll(interp.Colors)
		if len(stops) < 2 {
			zap.L().Warn("palette: interpolation needs >=2 colors, using named default",
				zap.String("type", interp.Type),
				zap.Int("colors", len(stops)),
			)
			return Named(DefaultGradient)
		}
		gamma := interp.Gamma
		if gamma <= 0 {
			gamma = 1
		}
		pair := func(a, b color.RGBA, t float64) color.RGBA {
			return lerpRGB(a, b, t, gamma)
		}
		if interp.Type == ModeCubehelix {
			pair = func(a, b color.RGBA, t float64) color.RGBA {
				return lerpCubehelix(a, b, t, gamma)
			}
		}
		switch {
		case len(stops) == 2:
			return &Continuous{Mode: interp.Type, fn: func(t float64) color.RGBA {
				return pair(stops[0], stops[1], clamp01(t))
			}}
		case interp.Piecewise || interp.Type == ModeCubehelix:
			return &Continuous{Mode: interp.Type, fn: piecewise(stops, pair)}
		default:
			return &Continuous{Mode: interp.Type, fn: basisRGB(stops)}
		}
	case ModeNamed:
		return Named(interp.Name)
	case "":
		if interp.Name != "" {
			return Named(interp.Name)
		}
		return Named(DefaultGradient)
	default:
		zap.L().Warn("palette: unknown interpolation type, using named default",
			zap.String("type", interp.Type),
		)
		return Named(DefaultGradient)
	}
}

// Ordinal maps categorical values to colors. The domain is the union of
// declared entries and observed category values, declared first.
type Ordinal struct {
	domain []string
	colors map[string]color.RGBA
}

// NewOrdinal assigns palette colors to categories by domain position,
// cycling when the palette is shorter than the domain. An empty palette
// degrades to a single gray swatch.
func NewOrdinal(palette []color.RGBA, declared []string, sum *stats.Summary) *Ordinal {
	if len(palette) == 0 {
		palette = []color.RGBA{Unknown}
	}
	seen := make(map[string]bool, len(declared))
	domain := make([]string, 0, len(declared))
	for _, v := range declared {
		if !seen[v] {
			seen[v] = true
			domain = append(domain, v)
		}
	}
	if sum != nil {
		for _, cat := range sum.Categories {
			if !seen[cat.Value] {
				seen[cat.Value] = true
				domain = append(domain, cat.Value)
			}
		}
	}

	colors := make(map[string]color.RGBA, len(domain))
	for i, v := range domain {
		colors[v] = palette[i%len(palette)]
	}
	return &Ordinal{domain: domain, colors: colors}
}

// At returns the category's color, or the Unknown gray for values
// outside the domain.
func (o *Ordinal) At(value string) color.RGBA {
	if c, ok := o.colors[value]; ok {
		return c
	}
	return Unknown
}

// Domain returns the category order (declared first, then discovered).
func (o *Ordinal) Domain() []string {
	return o.domain
}

// Grid is a 2D bivariate palette. Cells are stored top-down (row 0 is
// the highest Y bin) while the Y axis indexes bottom-up, so At applies
// a vertical flip.
type Grid struct {
	cols, rows int
	cells      [][]color.RGBA
}

// NewGrid parses a declared color grid. Returns nil for an empty or
// ragged declaration.
func NewGrid(hexRows [][]string) *Grid {
	if len(hexRows) == 0 || len(hexRows[0]) == 0 {
		return nil
	}
	cols := len(hexRows[0])
	cells := make([][]color.RGBA, len(hexRows))
	for i, row := range hexRows {
		if len(row) != cols {
			zap.L().Warn("palette: ragged bivariate grid",
				zap.Int("row", i),
				zap.Int("want_cols", cols),
				zap.Int("got_cols", len(row)),
			)
			return nil
		}
		cells[i] = ParseAll(row)
	}
	return &Grid{cols: cols, rows: len(hexRows), cells: cells}
}

// Dims returns (columns, rows) — the X and Y bin counts the grid
// supports. Grid dimensions are authoritative over any declared step
// counts.
func (g *Grid) Dims() (cols, rows int) {
	return g.cols, g.rows
}

// At returns the cell color for (xBin, yBin), clamping both indexes.
// yBin 0 is the lowest bin and maps to the bottom row.
func (g *Grid) At(xBin, yBin int) color.RGBA {
	if xBin < 0 {
		xBin = 0
	}
	if xBin >= g.cols {
		xBin = g.cols - 1
	}
	if yBin < 0 {
		yBin = 0
	}
	if yBin >= g.rows {
		yBin = g.rows - 1
	}
	return g.cells[g.rows-1-yBin][xBin]
}

// RowsBottomUp returns the grid rows ordered bottom-up for legend
// drawing, so the swatch layout and map encoding agree by construction.
func (g *Grid) RowsBottomUp() [][]color.RGBA {
	out := make([][]color.RGBA, g.rows)
	for y := 0; y < g.rows; y++ {
		out[y] = g.cells[g.rows-1-y]
	}
	return out
}

// ResolveDiscrete returns the explicit bin palette: the declared palette
// cycled to n entries, or nil when no palette was declared (continuous
// sampling applies instead).
func ResolveDiscrete(opts Options, n int) []color.RGBA {
	if len(opts.Palette) == 0 {
		return nil
	}
	return Cycle(ParseAll(opts.Palette), n)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
