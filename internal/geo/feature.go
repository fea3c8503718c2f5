// Package geo loads boundary shapefiles into feature collections with
// stable, normalized identifiers ready to join against tabular data.
package geo

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/dataset"
)

// idFields are the property names tried, in order, when deriving a
// feature identifier.
var idFields = []string{"CODE", "code", "GEOID", "geoid"}

// Feature is one geographic region.
type Feature struct {
	ID         string
	Geometry   geom.T
	Properties map[string]string
}

// Centroid is the arithmetic mean of the geometry's coordinates. Cheap
// and stable, good enough for label anchoring.
func (f *Feature) Centroid() (x, y float64) {
	if f.Geometry == nil {
		return 0, 0
	}
	flat := f.Geometry.FlatCoords()
	stride := f.Geometry.Stride()
	if len(flat) == 0 || stride < 2 {
		return 0, 0
	}
	n := 0
	for i := 0; i+1 < len(flat); i += stride {
		x += flat[i]
		y += flat[i+1]
		n++
	}
	return x / float64(n), y / float64(n)
}

// BBox returns the geometry bounds as (minX, minY, maxX, maxY).
func (f *Feature) BBox() (minX, minY, maxX, maxY float64) {
	if f.Geometry == nil {
		return 0, 0, 0, 0
	}
	b := f.Geometry.Bounds()
	return b.Min(0), b.Min(1), b.Max(0), b.Max(1)
}

// Collection holds the features of one boundary set, with an id index
// matching the dataset row join.
type Collection struct {
	Features []*Feature
	index    map[string]int
}

// NewCollection indexes features by id. Duplicate ids are an error:
// joins against tabular rows require uniqueness.
func NewCollection(features []*Feature) (*Collection, error) {
	c := &Collection{
		Features: features,
		index:    make(map[string]int, len(features)),
	}
	for i, f := range features {
		if _, dup := c.index[f.ID]; dup {
			return nil, eris.Errorf("geo: duplicate feature id %q", f.ID)
		}
		c.index[f.ID] = i
	}
	return c, nil
}

// Lookup resolves a feature by id, or nil.
func (c *Collection) Lookup(id string) *Feature {
	i, ok := c.index[id]
	if !ok {
		return nil
	}
	return c.Features[i]
}

// Len returns the feature count.
func (c *Collection) Len() int {
	return len(c.Features)
}

// IDs returns feature ids in load order, aligned with Features.
func (c *Collection) IDs() []string {
	out := make([]string, len(c.Features))
	for i, f := range c.Features {
		out[i] = f.ID
	}
	return out
}

// deriveID picks the feature identifier: the first non-empty id
// property wins, else the record's position. Ids are normalized the
// same way dataset row ids are, so the join never misses on invisible
// characters.
func deriveID(props map[string]string, position int) string {
	for _, field := range idFields {
		if v := dataset.NormalizeID(props[field]); v != "" {
			return v
		}
	}
	zap.L().Debug("geo: feature has no id property, using position",
		zap.Int("position", position),
	)
	return strconv.Itoa(position)
}
