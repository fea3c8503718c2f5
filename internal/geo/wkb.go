package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeWKB serializes a geometry as EWKB with SRID 4326, the form the
// boundary store persists. Nil geometries encode as nil.
func EncodeWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode wkb")
	}
	return data, nil
}

// DecodeWKB reads an EWKB geometry back.
func DecodeWKB(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode wkb")
	}
	return g, nil
}
