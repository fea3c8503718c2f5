// Package pipeline orchestrates metric selection: it loads the backing
// datasets, resolves composite buffers, builds the visual encoding, and
// derives the legend and filter models for one map view.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/composite"
	"github.com/sells-group/county-atlas/internal/dataset"
	"github.com/sells-group/county-atlas/internal/encoding"
	"github.com/sells-group/county-atlas/internal/filterctl"
	"github.com/sells-group/county-atlas/internal/legend"
	"github.com/sells-group/county-atlas/internal/numfmt"
	"github.com/sells-group/county-atlas/internal/pack"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/stats"
)

// Engine wires the catalog, the pack loader, and the composite cache
// into one entry point for rendering requests. One engine serves the
// whole process; all of its state is safe for concurrent use.
type Engine struct {
	catalog     *dataset.Catalog
	loader      *pack.Loader
	composites  *composite.Cache
	legendSteps int
}

// New creates an engine. legendSteps is the default tick/bin count used
// when a metric's settings pin neither bins nor a palette.
func New(catalog *dataset.Catalog, loader *pack.Loader, legendSteps int) *Engine {
	if legendSteps <= 0 {
		legendSteps = legend.DefaultSteps
	}
	return &Engine{
		catalog:     catalog,
		loader:      loader,
		composites:  composite.NewCache(),
		legendSteps: legendSteps,
	}
}

// Catalog exposes the metric catalog for listing endpoints.
func (e *Engine) Catalog() *dataset.Catalog {
	return e.catalog
}

// Request selects one metric plus its interactive state.
type Request struct {
	Category string
	Metric   string

	// Numeric filter; nil means no filter.
	Filter *encoding.Range
	// Per-axis filters for bivariate metrics.
	XFilter *encoding.Range
	YFilter *encoding.Range

	// Composite part selection override; nil uses the declared default.
	Parts map[string]bool

	// Categorical selection; nil means all values are visible.
	Selected map[string]bool
}

// View is a fully-resolved rendering state: exactly one of Layer or
// Bivar is set. Views are immutable; interactive changes issue a new
// Request.
type View struct {
	Category string
	Metric   string
	Dataset  *dataset.Dataset

	Layer *encoding.Layer
	Bivar *encoding.BivariateLayer

	Legend    *legend.Model
	Formatter *numfmt.Formatter
	Summary   *stats.Summary
}

// Render resolves a request end to end. It fails only on missing
// declarations or unloadable packs; a metric with no usable data
// renders as an all-gray view rather than an error.
func (e *Engine) Render(ctx context.Context, req Request) (*View, error) {
	m := e.catalog.Metric(req.Category, req.Metric)
	if m == nil {
		return nil, eris.Errorf("pipeline: unknown metric %s/%s", req.Category, req.Metric)
	}
	if m.Bivariate() {
		return e.renderBivariate(ctx, req, m)
	}

	ds, err := e.loader.Load(ctx, req.Category)
	if err != nil {
		return nil, err
	}

	values, summary, metricID := e.resolveColumn(ds, req, m)

	cfg := encoding.Config{
		MetricID:    metricID,
		Settings:    m.Settings,
		Values:      values,
		Summary:     summary,
		Filter:      filterOrFull(req.Filter),
		Selected:    req.Selected,
		LegendSteps: e.legendSteps,
	}
	if summary != nil && summary.Kind == stats.KindCategorical {
		if col := ds.StringColumn(m.FieldName(req.Metric)); col != nil {
			cfg.CategoryValues = col.Values()
		}
	}

	f := formatterFor(m.Settings)
	v := &View{
		Category:  req.Category,
		Metric:    req.Metric,
		Dataset:   ds,
		Layer:     encoding.Build(cfg),
		Formatter: f,
		Summary:   summary,
	}
	v.Legend = legend.Build(v.Layer, f, e.legendSteps)
	return v, nil
}

// resolveColumn finds the values and summary backing a direct or
// composite metric. Composite buffers are cached by selection key, and
// their summaries are always rescanned from the buffer.
func (e *Engine) resolveColumn(ds *dataset.Dataset, req Request, m *dataset.Metric) ([]float32, *stats.Summary, string) {
	if m.Composite == nil {
		field := m.FieldName(req.Metric)
		return ds.Column(field), ds.Summary(field), req.Metric
	}

	parts := req.Parts
	if parts == nil {
		parts = m.Composite.DefaultSelection()
	}
	key := composite.Key(req.Category, req.Metric, *m.Composite, parts)
	buf := e.composites.Resolve(req.Category, req.Metric, *m.Composite, parts, ds.Column, ds.Count())
	return buf, dataset.SummaryOf(buf), key
}

func (e *Engine) renderBivariate(ctx context.Context, req Request, m *dataset.Metric) (*View, error) {
	if m.X == nil || m.Y == nil {
		return nil, eris.Errorf("pipeline: bivariate %s/%s missing an axis", req.Category, req.Metric)
	}
	xCat := axisCategory(m.X, req.Category)
	yCat := axisCategory(m.Y, req.Category)

	sets, err := e.loader.LoadAll(ctx, dedupe([]string{xCat, yCat}))
	if err != nil {
		return nil, err
	}

	x, fx, err := e.buildAxis(sets[xCat], xCat, m.X, filterOrFull(req.XFilter), palette.DefaultGradientX)
	if err != nil {
		return nil, err
	}
	y, fy, err := e.buildAxis(sets[yCat], yCat, m.Y, filterOrFull(req.YFilter), palette.DefaultGradientY)
	if err != nil {
		return nil, err
	}

	bl := encoding.BuildBivariate(x, y, m.Method)
	if bl == nil {
		zap.L().Warn("pipeline: bivariate layer failed to resolve",
			zap.String("category", req.Category),
			zap.String("metric", req.Metric),
		)
	}

	v := &View{
		Category:  req.Category,
		Metric:    req.Metric,
		Dataset:   sets[xCat],
		Bivar:     bl,
		Formatter: fx,
	}
	if bl != nil {
		v.Legend = legend.BuildBivariate(bl, fx, fy, e.legendSteps)
	}
	return v, nil
}

// buildAxis resolves one bivariate axis against its own category's
// dataset, applying any per-axis setting overrides.
func (e *Engine) buildAxis(ds *dataset.Dataset, category string, ref *dataset.AxisRef, filter encoding.Range, gradient string) (*encoding.Axis, *numfmt.Formatter, error) {
	decl := e.catalog.Metric(category, ref.Metric)
	if decl == nil {
		return nil, nil, eris.Errorf("pipeline: bivariate axis names unknown metric %s/%s", category, ref.Metric)
	}
	settings := decl.Settings
	if ref.Settings != nil {
		settings = *ref.Settings
	}
	field := decl.FieldName(ref.Metric)

	a := encoding.BuildAxis(encoding.AxisConfig{
		MetricID:        ref.Metric,
		Values:          ds.Column(field),
		Summary:         ds.Summary(field),
		Settings:        settings,
		Filter:          filter,
		DefaultGradient: gradient,
		LegendSteps:     e.legendSteps,
	})
	return a, formatterFor(settings), nil
}

func axisCategory(ref *dataset.AxisRef, fallback string) string {
	if ref.Category != "" {
		return ref.Category
	}
	return fallback
}

// Colors materializes the per-feature color slice, aligned with
// Dataset.IDs. An unresolvable view paints every feature gray.
func (v *View) Colors() []encoding.RGBA {
	n := v.Dataset.Count()
	out := make([]encoding.RGBA, n)

	var at func(row int) encoding.RGBA
	switch {
	case v.Bivar != nil:
		at = v.Bivar.ColorAt
	case v.Layer != nil:
		at = v.Layer.ColorAt
	default:
		for i := range out {
			out[i] = encoding.MissingGray
		}
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = at(i)
	}
	return out
}

// Triggers is the redraw dependency list for the view's active layer.
func (v *View) Triggers() []string {
	switch {
	case v.Bivar != nil:
		return v.Bivar.Triggers()
	case v.Layer != nil:
		return v.Layer.Triggers()
	}
	return nil
}

// RangeFilter builds the slider control bound to this view's scale.
// Returns nil for categorical and bivariate views.
func (v *View) RangeFilter(onChange func(encoding.Range)) *filterctl.RangeControl {
	if v.Layer == nil || v.Layer.Scale == nil {
		return nil
	}
	return filterctl.NewRange(v.Layer.Scale, v.Summary, v.Formatter, onChange)
}

// CategoryFilter builds the category toggle control. Returns nil for
// numeric views.
func (v *View) CategoryFilter(onChange func(map[string]bool)) *filterctl.CategoryControl {
	if v.Layer == nil || v.Layer.Ord == nil {
		return nil
	}
	return filterctl.NewCategory(v.Summary, onChange)
}

func filterOrFull(r *encoding.Range) encoding.Range {
	if r == nil {
		return encoding.FullRange()
	}
	return *r
}

func formatterFor(s dataset.Settings) *numfmt.Formatter {
	return numfmt.New(s.Format, s.Percentage, s.PercentageScale)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
