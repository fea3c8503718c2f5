// Package dataset holds feature-aligned tabular metric data and the
// declarative metric catalog.
package dataset

import (
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/composite"
	"github.com/sells-group/county-atlas/internal/stats"
)

// NormalizeID canonicalizes a feature/row identifier: surrounding
// whitespace and zero-width characters are stripped so ids join cleanly
// across boundary and tabular sources.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		return r
	}, id)
}

// StringColumn is a dictionary-encoded categorical column.
type StringColumn struct {
	Indexes []uint32 `json:"indexes"`
	Dict    []string `json:"dict"`
}

// Values materializes the column as one string per row.
func (c *StringColumn) Values() []string {
	out := make([]string, len(c.Indexes))
	for i, idx := range c.Indexes {
		if int(idx) < len(c.Dict) {
			out[i] = c.Dict[idx]
		}
	}
	return out
}

// NumericMeta is per-metric pack metadata: dtype, pack location, and an
// optional precomputed summary.
type NumericMeta struct {
	Dtype      string  `json:"dtype"`
	Pack       string  `json:"pack,omitempty"`
	HasSummary bool    `json:"has_summary"`
	Min        float64 `json:"min,omitempty"`
	Max        float64 `json:"max,omitempty"`
	Mean       float64 `json:"mean,omitempty"`
	Median     float64 `json:"median,omitempty"`
	Count      int     `json:"count,omitempty"`
}

// Dataset is a named collection of feature-aligned rows for one
// category. Created on first selection and cached for the process
// lifetime; mutated only by append-only column hydration.
type Dataset struct {
	Name string
	IDs  []string

	mu      sync.RWMutex
	index   map[string]int
	columns map[string][]float32
	strings map[string]*StringColumn
	meta    map[string]NumericMeta
}

// New builds a dataset over normalized row ids. Duplicate ids are an
// error: identity must be unique within a dataset.
func New(name string, ids []string) (*Dataset, error) {
	index := make(map[string]int, len(ids))
	normalized := make([]string, len(ids))
	for i, id := range ids {
		nid := NormalizeID(id)
		if _, dup := index[nid]; dup {
			return nil, eris.Errorf("dataset: duplicate id %q in category %s", nid, name)
		}
		index[nid] = i
		normalized[i] = nid
	}
	return &Dataset{
		Name:    name,
		IDs:     normalized,
		index:   index,
		columns: make(map[string][]float32),
		strings: make(map[string]*StringColumn),
		meta:    make(map[string]NumericMeta),
	}, nil
}

// Count returns the row count.
func (d *Dataset) Count() int {
	return len(d.IDs)
}

// Row returns the row index for a (raw or normalized) feature id.
func (d *Dataset) Row(id string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[NormalizeID(id)]
	return i, ok
}

// SetColumn hydrates a numeric column. Columns are append-only: a
// loaded column is never replaced, because its buffer may already back
// a rendered legend or filter.
func (d *Dataset) SetColumn(metricID string, values []float32, meta NumericMeta) error {
	if len(values) != len(d.IDs) {
		return eris.Errorf("dataset: column %s has %d rows, want %d", metricID, len(values), len(d.IDs))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.columns[metricID]; exists {
		zap.L().Warn("dataset: refusing to overwrite loaded column",
			zap.String("category", d.Name),
			zap.String("metric", metricID),
		)
		return nil
	}
	d.columns[metricID] = values
	d.meta[metricID] = meta
	return nil
}

// SetStringColumn hydrates a categorical column, append-only like
// SetColumn.
func (d *Dataset) SetStringColumn(metricID string, col *StringColumn) error {
	if len(col.Indexes) != len(d.IDs) {
		return eris.Errorf("dataset: column %s has %d rows, want %d", metricID, len(col.Indexes), len(d.IDs))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.strings[metricID]; exists {
		zap.L().Warn("dataset: refusing to overwrite loaded column",
			zap.String("category", d.Name),
			zap.String("metric", metricID),
		)
		return nil
	}
	d.strings[metricID] = col
	return nil
}

// Column returns a numeric column, or nil when not hydrated.
func (d *Dataset) Column(metricID string) []float32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.columns[metricID]
}

// StringColumn returns a categorical column, or nil.
func (d *Dataset) StringColumn(metricID string) *StringColumn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.strings[metricID]
}

// HasColumn reports whether a metric is hydrated, numeric or string.
func (d *Dataset) HasColumn(metricID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, n := d.columns[metricID]
	_, s := d.strings[metricID]
	return n || s
}

// Meta returns pack metadata for a metric.
func (d *Dataset) Meta(metricID string) (NumericMeta, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.meta[metricID]
	return m, ok
}

// Summary computes (or short-circuits to precomputed) statistics for a
// metric. The precomputed summary is trusted verbatim only for the
// canonical field, never for composite buffers — a composite's values
// depend on the active part selection. Returns nil when the metric has
// no backing data: callers treat nil as "cannot render this metric".
func (d *Dataset) Summary(metricID string) *stats.Summary {
	d.mu.RLock()
	if col, ok := d.strings[metricID]; ok {
		d.mu.RUnlock()
		return stats.Categorical(col.Values())
	}
	col, hasCol := d.columns[metricID]
	meta, hasMeta := d.meta[metricID]
	d.mu.RUnlock()

	if !hasCol {
		zap.L().Warn("dataset: summary requested for missing metric",
			zap.String("category", d.Name),
			zap.String("metric", metricID),
		)
		return nil
	}
	if hasMeta && meta.HasSummary && !composite.IsKey(metricID) {
		return stats.Precomputed(meta.Min, meta.Max, meta.Mean, meta.Median, meta.Count)
	}
	return stats.Numeric(col)
}

// SummaryOf computes statistics over an explicit buffer (composite
// selections), never consulting precomputed metadata.
func SummaryOf(values []float32) *stats.Summary {
	return stats.Numeric(values)
}
