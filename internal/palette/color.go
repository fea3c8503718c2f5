// Package palette resolves colors for continuous positions, discrete
// bins, categories, and bivariate grids.
package palette

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Unknown is the fallback for categorical values with no assigned color.
var Unknown = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// ParseHex parses "#rgb", "#rrggbb" or "#rrggbbaa". Unparseable input
// returns the Unknown gray so a bad catalog entry degrades instead of
// failing the render.
func ParseHex(s string) color.RGBA {
	c, err := parseHex(s)
	if err != nil {
		zap.L().Warn("palette: bad color", zap.String("color", s))
		return Unknown
	}
	return c
}

func parseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return color.RGBA{}, err
		}
		r := uint8(v >> 8 & 0xf)
		g := uint8(v >> 4 & 0xf)
		b := uint8(v & 0xf)
		return color.RGBA{R: r*16 + r, G: g*16 + g, B: b*16 + b, A: 0xff}, nil
	case 6:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	case 8:
		v, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return color.RGBA{}, err
		}
		return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
	default:
		return color.RGBA{}, fmt.Errorf("palette: hex length %d", len(s))
	}
}

// Hex formats a color as "#rrggbb" (alpha omitted when opaque).
func Hex(c color.RGBA) string {
	if c.A != 0xff {
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseAll parses a list of hex colors.
func ParseAll(hexes []string) []color.RGBA {
	out := make([]color.RGBA, len(hexes))
	for i, h := range hexes {
		out[i] = ParseHex(h)
	}
	return out
}

// Cycle expands an explicit palette to n entries by repetition
// (palette[i % len]). Author-declared colors are preserved, never
// re-interpolated.
func Cycle(palette []color.RGBA, n int) []color.RGBA {
	if len(palette) == 0 || n <= 0 {
		return nil
	}
	out := make([]color.RGBA, n)
	for i := range out {
		out[i] = palette[i%len(palette)]
	}
	return out
}
