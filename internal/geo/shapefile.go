package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadShapefile reads every record of a shapefile into a feature
// collection. Records with no usable geometry are skipped, not fatal.
func LoadShapefile(path string) (*Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []*Feature
	var skipped int
	pos := 0

	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				props[name] = val
			}
		}

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			pos++
			continue
		}

		features = append(features, &Feature{
			ID:         deriveID(props, pos),
			Geometry:   g,
			Properties: props,
		})
		pos++
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	return NewCollection(features)
}

// shapeGeometry converts a shapefile shape to a go-geom geometry.
// Returns nil for unsupported or empty shapes.
func shapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i := int32(0); i < pl.NumParts; i++ {
		start, end := partRange(pl.Parts, i, pl.NumParts, len(pl.Points))
		ls := geom.NewLineStringFlat(geom.XY, flatPart(pl.Points, start, end))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geo: skipping malformed linestring part",
				zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start, end := partRange(p.Parts, i, p.NumParts, len(p.Points))
		ring := geom.NewLinearRingFlat(geom.XY, flatPart(p.Points, start, end))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geo: skipping malformed polygon ring",
				zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part",
				zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func partRange(parts []int32, i, numParts int32, total int) (start, end int32) {
	start = parts[i]
	if i+1 < numParts {
		return start, parts[i+1]
	}
	return start, int32(total)
}

func flatPart(points []shp.Point, start, end int32) []float64 {
	flat := make([]float64, 0, (end-start)*2)
	for j := start; j < end; j++ {
		flat = append(flat, points[j].X, points[j].Y)
	}
	return flat
}
