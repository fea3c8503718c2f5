package palette

import "image/color"

// Named gradients, stored as evenly-spaced stops sampled with
// piecewise-linear RGB interpolation. Stop tables follow the matplotlib
// and ColorBrewer references.
var gradients = map[string][]color.RGBA{
	"viridis": {
		{68, 1, 84, 255}, {72, 35, 116, 255}, {64, 67, 135, 255},
		{52, 94, 141, 255}, {41, 120, 142, 255}, {32, 144, 140, 255},
		{34, 167, 132, 255}, {68, 190, 112, 255}, {121, 209, 81, 255},
		{189, 222, 38, 255}, {253, 231, 36, 255},
	},
	"plasma": {
		{13, 8, 135, 255}, {84, 2, 163, 255}, {139, 10, 165, 255},
		{185, 50, 137, 255}, {219, 92, 104, 255}, {244, 136, 73, 255},
		{254, 188, 43, 255}, {240, 249, 33, 255},
	},
	"inferno": {
		{0, 0, 3, 255}, {31, 12, 72, 255}, {85, 15, 109, 255},
		{136, 34, 106, 255}, {186, 54, 85, 255}, {227, 89, 51, 255},
		{249, 140, 10, 255}, {249, 201, 50, 255}, {252, 254, 164, 255},
	},
	"magma": {
		{0, 0, 3, 255}, {28, 16, 68, 255}, {79, 18, 123, 255},
		{129, 37, 129, 255}, {181, 54, 121, 255}, {229, 80, 100, 255},
		{251, 135, 97, 255}, {254, 194, 135, 255}, {251, 252, 191, 255},
	},
	"cividis": {
		{0, 32, 76, 255}, {0, 42, 102, 255}, {37, 64, 108, 255},
		{87, 93, 109, 255}, {124, 123, 120, 255}, {165, 156, 116, 255},
		{210, 194, 93, 255}, {255, 233, 69, 255},
	},
	// ColorBrewer sequential, 9-class.
	"blues": {
		{247, 251, 255, 255}, {222, 235, 247, 255}, {198, 219, 239, 255},
		{158, 202, 225, 255}, {107, 174, 214, 255}, {66, 146, 198, 255},
		{33, 113, 181, 255}, {8, 81, 156, 255}, {8, 48, 107, 255},
	},
	"oranges": {
		{255, 245, 235, 255}, {254, 230, 206, 255}, {253, 208, 162, 255},
		{253, 174, 107, 255}, {253, 141, 60, 255}, {241, 105, 19, 255},
		{217, 72, 1, 255}, {166, 54, 3, 255}, {127, 39, 4, 255},
	},
	"greens": {
		{247, 252, 245, 255}, {229, 245, 224, 255}, {199, 233, 192, 255},
		{161, 217, 155, 255}, {116, 196, 118, 255}, {65, 171, 93, 255},
		{35, 139, 69, 255}, {0, 109, 44, 255}, {0, 68, 27, 255},
	},
	"purples": {
		{252, 251, 253, 255}, {239, 237, 245, 255}, {218, 218, 235, 255},
		{188, 189, 220, 255}, {158, 154, 200, 255}, {128, 125, 186, 255},
		{106, 81, 163, 255}, {84, 39, 143, 255}, {63, 0, 125, 255},
	},
	"ylorrd": {
		{255, 255, 204, 255}, {255, 237, 160, 255}, {254, 217, 118, 255},
		{254, 178, 76, 255}, {253, 141, 60, 255}, {252, 78, 42, 255},
		{227, 26, 28, 255}, {189, 0, 38, 255}, {128, 0, 38, 255},
	},
	// ColorBrewer diverging, 9-class.
	"rdbu": {
		{178, 24, 43, 255}, {214, 96, 77, 255}, {244, 165, 130, 255},
		{253, 219, 199, 255}, {247, 247, 247, 255}, {209, 229, 240, 255},
		{146, 197, 222, 255}, {67, 147, 195, 255}, {33, 102, 172, 255},
	},
}

// DefaultGradient is used when no interpolation resolves.
const DefaultGradient = "viridis"

// Bivariate axis defaults when the metric pair declares nothing.
const (
	DefaultGradientX = "blues"
	DefaultGradientY = "oranges"
)

// Gradient looks up a named gradient's stops; unknown names fall back to
// the default.
func Gradient(name string) []color.RGBA {
	if stops, ok := gradients[normalizeName(name)]; ok {
		return stops
	}
	return gradients[DefaultGradient]
}

// HasGradient reports whether a gradient name is known.
func HasGradient(name string) bool {
	_, ok := gradients[normalizeName(name)]
	return ok
}

func normalizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		case c == '-' || c == '_' || c == ' ':
			// dropped
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
