package pipeline

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/county-atlas/internal/dataset"
	"github.com/sells-group/county-atlas/internal/encoding"
	"github.com/sells-group/county-atlas/internal/pack"
	"github.com/sells-group/county-atlas/internal/stats"
)

// memFetcher serves pre-encoded packs by URL.
type memFetcher struct {
	packs map[string][]byte
}

func (f *memFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	data, ok := f.packs[url]
	if !ok {
		return nil, eris.Errorf("no pack at %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

const testCatalog = `
categories:
  income:
    label: Income
    metrics_order: [median_income, jobs_total, land_use, wealth_jobs]
    metrics:
      median_income:
        label: Median household income
        settings:
          scale: linear
          domain: [0, 100]
      jobs_total:
        label: Total jobs
        composite:
          parts: [jobs_farm, jobs_mfg]
          default: [jobs_farm]
      land_use:
        label: Land use
        settings:
          type: categorical
      wealth_jobs:
        label: Wealth vs housing
        kind: bivar
        x:
          metric: median_income
        y:
          category: housing
          metric: units
        method:
          blend_mode: multiply
  housing:
    label: Housing
    metrics:
      units:
        label: Housing units
        settings:
          scale: linear
          domain: [0, 4]
`

func encodePack(t *testing.T, f *pack.File) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pack.Encode(&buf, f))
	return buf.Bytes()
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	nan := float32(math.NaN())
	income := &pack.File{
		IDs: []string{"a", "b", "c", "d"},
		Numeric: map[string][]float32{
			"median_income": {10, 50, nan, 100},
			"jobs_farm":     {1, 2, 3, 4},
			"jobs_mfg":      {10, 20, 30, 40},
		},
		Strings: map[string]pack.StringColumn{
			"land_use": {Indexes: []uint32{0, 1, 0, 1}, Dict: []string{"rural", "urban"}},
		},
	}
	housing := &pack.File{
		IDs: []string{"a", "b", "c", "d"},
		Numeric: map[string][]float32{
			"units": {1, 2, 3, 4},
		},
	}

	fetcher := &memFetcher{packs: map[string][]byte{
		"https://packs.test/v1/income.pack.gz":  encodePack(t, income),
		"https://packs.test/v1/housing.pack.gz": encodePack(t, housing),
	}}

	cat, err := dataset.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	return New(cat, pack.NewLoader(fetcher, "https://packs.test/v1"), 5)
}

func TestRenderDirectMetric(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{Category: "income", Metric: "median_income"})
	require.NoError(t, err)
	require.NotNil(t, v.Layer)
	assert.Nil(t, v.Bivar)
	require.NotNil(t, v.Legend)
	require.NotNil(t, v.Summary)

	assert.Equal(t, 3, v.Summary.Count)
	assert.Equal(t, 10.0, v.Summary.Min)
	assert.Equal(t, 100.0, v.Summary.Max)

	colors := v.Colors()
	require.Len(t, colors, 4)
	// NaN row renders gray, finite rows opaque.
	assert.Equal(t, encoding.MissingGray, colors[2])
	assert.EqualValues(t, 255, colors[0][3])
	assert.NotEqual(t, encoding.MissingGray, colors[0])
}

func TestRenderUnknownMetric(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Render(context.Background(), Request{Category: "income", Metric: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric")
}

func TestRenderCompositeDefaultSelection(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{Category: "income", Metric: "jobs_total"})
	require.NoError(t, err)
	require.NotNil(t, v.Summary)

	// Default selection is jobs_farm only.
	assert.Equal(t, 1.0, v.Summary.Min)
	assert.Equal(t, 4.0, v.Summary.Max)
}

func TestRenderCompositePartSelection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	all, err := e.Render(ctx, Request{
		Category: "income",
		Metric:   "jobs_total",
		Parts:    map[string]bool{"jobs_farm": true, "jobs_mfg": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 11.0, all.Summary.Min)
	assert.Equal(t, 44.0, all.Summary.Max)

	// A different part subset is a different layer identity.
	def, err := e.Render(ctx, Request{Category: "income", Metric: "jobs_total"})
	require.NoError(t, err)
	assert.NotEqual(t, def.Triggers(), all.Triggers())
}

func TestRenderCategorical(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{Category: "income", Metric: "land_use"})
	require.NoError(t, err)
	require.NotNil(t, v.Layer)
	require.NotNil(t, v.Layer.Ord)
	assert.Equal(t, stats.KindCategorical, v.Summary.Kind)

	// Numeric filter control does not apply to categorical views.
	assert.Nil(t, v.RangeFilter(nil))

	ctl := v.CategoryFilter(nil)
	require.NotNil(t, ctl)
	assert.ElementsMatch(t, []string{"rural", "urban"}, ctl.Order())
}

func TestRenderCategoricalSelection(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{
		Category: "income",
		Metric:   "land_use",
		Selected: map[string]bool{"rural": true},
	})
	require.NoError(t, err)

	colors := v.Colors()
	// urban rows (1 and 3) are filtered out.
	assert.Equal(t, encoding.Transparent, colors[1])
	assert.Equal(t, encoding.Transparent, colors[3])
	assert.NotEqual(t, encoding.Transparent, colors[0])
}

func TestRenderNumericFilter(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{
		Category: "income",
		Metric:   "median_income",
		Filter:   &encoding.Range{Min: 20, Max: 90},
	})
	require.NoError(t, err)

	colors := v.Colors()
	assert.Equal(t, encoding.Transparent, colors[0]) // 10 < 20
	assert.NotEqual(t, encoding.Transparent, colors[1])
	assert.Equal(t, encoding.Transparent, colors[3]) // 100 > 90
}

func TestRangeFilterSpansDomain(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{Category: "income", Metric: "median_income"})
	require.NoError(t, err)

	ctl := v.RangeFilter(nil)
	require.NotNil(t, ctl)
	b := ctl.Bounds()
	assert.Equal(t, 0.0, b.Min)
	assert.Equal(t, 100.0, b.Max)
}

func TestRenderBivariate(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{Category: "income", Metric: "wealth_jobs"})
	require.NoError(t, err)
	require.NotNil(t, v.Bivar)
	assert.Nil(t, v.Layer)
	require.NotNil(t, v.Legend)
	assert.Equal(t, "bivariate", string(v.Legend.Mode))
	assert.Equal(t, "multiply", v.Bivar.Blend)

	colors := v.Colors()
	require.Len(t, colors, 4)
	// Row c has a missing x value.
	assert.Equal(t, encoding.MissingGray, colors[2])
	assert.EqualValues(t, 255, colors[0][3])

	assert.Contains(t, v.Triggers(), "x.metric=median_income")
	assert.Contains(t, v.Triggers(), "y.metric=units")
}

func TestRenderBivariateAxisFilter(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Render(context.Background(), Request{
		Category: "income",
		Metric:   "wealth_jobs",
		YFilter:  &encoding.Range{Min: 2, Max: 3},
	})
	require.NoError(t, err)

	colors := v.Colors()
	assert.Equal(t, encoding.Transparent, colors[0]) // units=1 below filter
	assert.NotEqual(t, encoding.Transparent, colors[1])
	assert.Equal(t, encoding.Transparent, colors[3]) // units=4 above filter
}
