package dataset

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/county-atlas/internal/binning"
	"github.com/sells-group/county-atlas/internal/composite"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/scale"
)

// Settings is the declarative display configuration of a metric. It
// fully determines scale, binner and interpolator construction — there
// is no implicit state.
type Settings struct {
	Scale           string                `yaml:"scale"`
	Domain          []float64             `yaml:"domain"`
	Exponent        string                `yaml:"exponent"`
	Constant        float64               `yaml:"constant"`
	Nice            bool                  `yaml:"nice"`
	Type            string                `yaml:"type"` // "categorical" shorthand
	Binning         binning.Options       `yaml:"binning"`
	Interpolation   palette.Interpolation `yaml:"interpolation"`
	Palette         []string              `yaml:"palette"`
	CategoryDomain  []string              `yaml:"category_domain"`
	LegendSteps     int                   `yaml:"legend_steps"`
	PaletteSteps    int                   `yaml:"palette_steps"`
	Format          string                `yaml:"format"`
	Percentage      bool                  `yaml:"percentage"`
	PercentageScale float64               `yaml:"percentage_scale"`
}

// Categorical reports whether the settings declare an ordinal encoding.
func (s Settings) Categorical() bool {
	return s.Type == "categorical" || s.Scale == "ordinal"
}

// ScaleOptions projects the scale-relevant settings.
func (s Settings) ScaleOptions() scale.Options {
	return scale.Options{
		Kind:     s.Scale,
		Domain:   s.Domain,
		Exponent: s.Exponent,
		Constant: s.Constant,
		Nice:     s.Nice,
	}
}

// PaletteOptions projects the palette-relevant settings.
func (s Settings) PaletteOptions() palette.Options {
	return palette.Options{
		Interpolation: s.Interpolation,
		Palette:       s.Palette,
		Ordinal:       s.Categorical(),
		Domain:        s.CategoryDomain,
		PaletteSteps:  s.PaletteSteps,
	}
}

// BivarMethod declares how a bivariate pair is combined.
type BivarMethod struct {
	Palette   [][]string `yaml:"palette"`
	BlendMode string     `yaml:"blend_mode"`
}

// AxisRef names one axis of a bivariate metric, with optional setting
// overrides.
type AxisRef struct {
	Category string    `yaml:"category"`
	Metric   string    `yaml:"metric"`
	Settings *Settings `yaml:"settings"`
}

// Metric declares how one column is sourced and displayed.
type Metric struct {
	Label       string                `yaml:"label"`
	Description string                `yaml:"description"`
	Field       string                `yaml:"field"`
	Composite   *composite.Definition `yaml:"composite"`
	Settings    Settings              `yaml:"settings"`

	// Bivariate entries.
	Kind   string       `yaml:"kind"` // "" or "bivar"
	X      *AxisRef     `yaml:"x"`
	Y      *AxisRef     `yaml:"y"`
	Method *BivarMethod `yaml:"method"`
}

// Bivariate reports whether the metric encodes two axes.
func (m *Metric) Bivariate() bool {
	return m.Kind == "bivar"
}

// FieldName returns the backing column name for a direct metric.
func (m *Metric) FieldName(metricID string) string {
	if m.Field != "" {
		return m.Field
	}
	return metricID
}

// CategoryConfig declares one category's metrics.
type CategoryConfig struct {
	Label        string             `yaml:"label"`
	Metrics      map[string]*Metric `yaml:"metrics"`
	MetricsOrder []string           `yaml:"metrics_order"`
}

// Order returns the declared metric ordering, defaulting to map
// iteration only when no order was declared.
func (c *CategoryConfig) Order() []string {
	if len(c.MetricsOrder) > 0 {
		return c.MetricsOrder
	}
	out := make([]string, 0, len(c.Metrics))
	for id := range c.Metrics {
		out = append(out, id)
	}
	return out
}

// Catalog is the full declarative metric configuration.
type Catalog struct {
	Categories map[string]*CategoryConfig `yaml:"categories"`
}

// LoadCatalog reads and validates the YAML metric catalog.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return ParseCatalog(raw)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Metric resolves a metric declaration, or nil when absent.
func (c *Catalog) Metric(category, metricID string) *Metric {
	cc, ok := c.Categories[category]
	if !ok {
		return nil
	}
	return cc.Metrics[metricID]
}

func (c *Catalog) validate() error {
	for catName, cc := range c.Categories {
		for id, m := range cc.Metrics {
			if m == nil {
				return eris.Errorf("catalog: %s/%s is empty", catName, id)
			}
			if m.Bivariate() {
				if m.X == nil || m.Y == nil {
					return eris.Errorf("catalog: bivariate %s/%s missing x or y axis", catName, id)
				}
				continue
			}
			if m.Composite != nil && len(m.Composite.Parts) == 0 {
				return eris.Errorf("catalog: composite %s/%s declares no parts", catName, id)
			}
			if d := m.Settings.Domain; len(d) != 0 && len(d) != 2 {
				return eris.Errorf("catalog: %s/%s domain must have 2 entries, got %d", catName, id, len(d))
			}
		}
		for _, id := range cc.MetricsOrder {
			if _, ok := cc.Metrics[id]; !ok {
				return eris.Errorf("catalog: %s orders unknown metric %s", catName, id)
			}
		}
	}
	return nil
}
