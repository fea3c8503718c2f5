// Package composite derives summed metric columns from user-selected
// constituent parts.
package composite

import (
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// KeyPrefix marks synthetic composite metric identifiers.
const KeyPrefix = "COMPOSITE__"

// Definition declares a composite metric: the fixed universe of part
// ids and the default active subset.
type Definition struct {
	Parts      []string          `yaml:"parts" mapstructure:"parts"`
	Default    []string          `yaml:"default" mapstructure:"default"`
	PartLabels map[string]string `yaml:"part_labels" mapstructure:"part_labels"`
}

// DefaultSelection returns the default active subset, or all parts when
// no default is declared.
func (d Definition) DefaultSelection() map[string]bool {
	parts := d.Default
	if len(parts) == 0 {
		parts = d.Parts
	}
	sel := make(map[string]bool, len(parts))
	for _, p := range parts {
		sel[p] = true
	}
	return sel
}

// Key builds the deterministic cache key for a selection. Parts are
// emitted in declaration order filtered by the selection set, never in
// toggle order, so the same subset always produces the same key.
func Key(category, metricID string, def Definition, selected map[string]bool) string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteString(category)
	b.WriteString("__")
	b.WriteString(metricID)
	for _, p := range def.Parts {
		if selected[p] {
			b.WriteString("__")
			b.WriteString(p)
		}
	}
	return b.String()
}

// IsKey reports whether a metric identifier names a composite buffer.
func IsKey(metricID string) bool {
	return strings.HasPrefix(metricID, KeyPrefix)
}

// Cache holds computed composite buffers for the life of the process.
// Append-only: an entry's buffer is never overwritten or mutated in
// place, because cached buffers are shared with legends and filters
// already rendered from them.
type Cache struct {
	mu      sync.Mutex
	buffers map[string][]float32
}

// NewCache creates an empty composite buffer cache. The orchestrator
// owns one cache and injects it; tests create their own.
func NewCache() *Cache {
	return &Cache{buffers: make(map[string][]float32)}
}

// Get returns a cached buffer, or nil.
func (c *Cache) Get(key string) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffers[key]
}

// Len returns the number of cached buffers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}

// Resolve returns the summed buffer for the selection, computing and
// caching it on first use. columns provides each part's backing column
// (nil for parts with no data — those contribute 0). Missing values
// (NaN) within a part also contribute 0.
func (c *Cache) Resolve(category, metricID string, def Definition, selected map[string]bool, columns func(part string) []float32, count int) []float32 {
	key := Key(category, metricID, def, selected)

	c.mu.Lock()
	if buf, ok := c.buffers[key]; ok {
		c.mu.Unlock()
		return buf
	}
	c.mu.Unlock()

	buf := make([]float32, count)
	parts := 0
	for _, p := range def.Parts {
		if !selected[p] {
			continue
		}
		parts++
		col := columns(p)
		if col == nil {
			zap.L().Warn("composite: part has no backing column",
				zap.String("metric", metricID),
				zap.String("part", p),
			)
			continue
		}
		n := count
		if len(col) < n {
			n = len(col)
		}
		for i := 0; i < n; i++ {
			v := col[i]
			if !math.IsNaN(float64(v)) {
				buf[i] += v
			}
		}
	}

	c.mu.Lock()
	// A concurrent load may have won the race; keep the existing buffer
	// so shared references stay stable.
	if existing, ok := c.buffers[key]; ok {
		c.mu.Unlock()
		return existing
	}
	c.buffers[key] = buf
	c.mu.Unlock()

	zap.L().Debug("composite: buffer computed",
		zap.String("key", key),
		zap.Int("parts", parts),
		zap.Int("rows", count),
	)
	return buf
}
