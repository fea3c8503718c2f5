package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
categories:
  counties:
    label: Counties
    metrics_order: [pop_density, land_use, spend_total, pop_vs_income]
    metrics:
      pop_density:
        label: Population density
        field: POP_DENSITY
        settings:
          scale: log
          binning:
            method: quantize
            bins: 5
          legend_steps: 5
      land_use:
        label: Land use
        settings:
          type: categorical
          palette: ["#1b9e77", "#d95f02", "#7570b3"]
      spend_total:
        label: Total spending
        composite:
          parts: [health, education, transport]
          default: [health, education]
        settings:
          scale: linear
          nice: true
      pop_vs_income:
        label: Population vs income
        kind: bivar
        x: {metric: pop_density}
        y: {metric: median_income}
        method:
          blend_mode: multiply
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	cc := cat.Categories["counties"]
	require.NotNil(t, cc)
	assert.Equal(t, "Counties", cc.Label)
	assert.Equal(t, []string{"pop_density", "land_use", "spend_total", "pop_vs_income"}, cc.Order())

	m := cat.Metric("counties", "pop_density")
	require.NotNil(t, m)
	assert.Equal(t, "POP_DENSITY", m.FieldName("pop_density"))
	assert.Equal(t, "log", m.Settings.Scale)
	assert.Equal(t, "quantize", m.Settings.Binning.Method)
	assert.Equal(t, 5, m.Settings.Binning.Bins)
	assert.False(t, m.Bivariate())

	cat2 := cat.Metric("counties", "land_use")
	require.NotNil(t, cat2)
	assert.True(t, cat2.Settings.Categorical())
	assert.Len(t, cat2.Settings.Palette, 3)

	comp := cat.Metric("counties", "spend_total")
	require.NotNil(t, comp)
	require.NotNil(t, comp.Composite)
	assert.Equal(t, []string{"health", "education", "transport"}, comp.Composite.Parts)
	assert.Equal(t, map[string]bool{"health": true, "education": true}, comp.Composite.DefaultSelection())

	bv := cat.Metric("counties", "pop_vs_income")
	require.NotNil(t, bv)
	assert.True(t, bv.Bivariate())
	assert.Equal(t, "pop_density", bv.X.Metric)
	assert.Equal(t, "multiply", bv.Method.BlendMode)
}

func TestParseCatalog_FieldDefaultsToMetricID(t *testing.T) {
	cat, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	m := cat.Metric("counties", "land_use")
	assert.Equal(t, "land_use", m.FieldName("land_use"))
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml": `categories: [`,
		"bivar missing axis": `
categories:
  c:
    metrics:
      m:
        kind: bivar
        x: {metric: a}
`,
		"composite no parts": `
categories:
  c:
    metrics:
      m:
        composite: {parts: []}
`,
		"bad domain": `
categories:
  c:
    metrics:
      m:
        settings: {domain: [1, 2, 3]}
`,
		"order names unknown metric": `
categories:
  c:
    metrics_order: [ghost]
    metrics:
      m: {label: ok}
`,
	}
	for name, src := range cases {
		_, err := ParseCatalog([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestSettingsProjections(t *testing.T) {
	s := Settings{
		Scale:    "pow",
		Domain:   []float64{0, 10},
		Exponent: "1/2",
		Palette:  []string{"#fff"},
	}
	so := s.ScaleOptions()
	assert.Equal(t, "pow", so.Kind)
	assert.Equal(t, "1/2", so.Exponent)

	po := s.PaletteOptions()
	assert.Equal(t, []string{"#fff"}, po.Palette)
	assert.False(t, po.Ordinal)
}

func TestMetricResolution_Missing(t *testing.T) {
	cat, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	assert.Nil(t, cat.Metric("nope", "x"))
	assert.Nil(t, cat.Metric("counties", "nope"))
}
