package palette

import (
	"image/color"
	"math"
)

// rampAt samples a stop list at t with piecewise-linear RGB blending.
func rampAt(stops []color.RGBA, t float64) color.RGBA {
	n := len(stops)
	if n == 0 {
		return Unknown
	}
	if n == 1 || t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[n-1]
	}
	pos := t * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return stops[n-1]
	}
	return lerpRGB(stops[lo], stops[hi], pos-float64(lo), 1)
}

// lerpRGB blends a→b at fraction t with gamma correction
// (channel' = ((1-t)·a^γ + t·b^γ)^(1/γ)).
func lerpRGB(a, b color.RGBA, t, gamma float64) color.RGBA {
	if gamma <= 0 {
		gamma = 1
	}
	ch := func(x, y uint8) uint8 {
		xf := math.Pow(float64(x)/255, gamma)
		yf := math.Pow(float64(y)/255, gamma)
		return clampByte(255 * math.Pow(xf*(1-t)+yf*t, 1/gamma))
	}
	return color.RGBA{
		R: ch(a.R, b.R),
		G: ch(a.G, b.G),
		B: ch(a.B, b.B),
		A: clampByte(float64(a.A)*(1-t) + float64(b.A)*t),
	}
}

// piecewise chains pairwise interpolation across the stop list.
func piecewise(stops []color.RGBA, interp func(a, b color.RGBA, t float64) color.RGBA) func(float64) color.RGBA {
	n := len(stops)
	return func(t float64) color.RGBA {
		if n == 1 || t <= 0 {
			return stops[0]
		}
		if t >= 1 {
			return stops[n-1]
		}
		pos := t * float64(n-1)
		lo := int(math.Floor(pos))
		return interp(stops[lo], stops[lo+1], pos-float64(lo))
	}
}

// basisRGB interpolates through the stops with a uniform cubic B-spline
// per channel, giving a smooth curve that passes near (not through)
// interior stops.
func basisRGB(stops []color.RGBA) func(float64) color.RGBA {
	rs := channelValues(stops, func(c color.RGBA) uint8 { return c.R })
	gs := channelValues(stops, func(c color.RGBA) uint8 { return c.G })
	bs := channelValues(stops, func(c color.RGBA) uint8 { return c.B })
	return func(t float64) color.RGBA {
		return color.RGBA{
			R: clampByte(basis(rs, t)),
			G: clampByte(basis(gs, t)),
			B: clampByte(basis(bs, t)),
			A: 255,
		}
	}
}

func channelValues(stops []color.RGBA, get func(color.RGBA) uint8) []float64 {
	out := make([]float64, len(stops))
	for i, s := range stops {
		out[i] = float64(get(s))
	}
	return out
}

// basis evaluates the uniform B-spline basis over the control values.
func basis(values []float64, t float64) float64 {
	n := len(values) - 1
	if t <= 0 {
		t = 0
	}
	if t >= 1 {
		t = 1
	}
	i := int(t * float64(n))
	if i >= n {
		i = n - 1
	}
	t1 := (t - float64(i)/float64(n)) * float64(n)
	v1 := values[i]
	v2 := values[i+1]
	v0 := v1
	if i > 0 {
		v0 = values[i-1]
	} else {
		v0 = 2*v1 - v2
	}
	v3 := v2
	if i < n-1 {
		v3 = values[i+2]
	} else {
		v3 = 2*v2 - v1
	}
	t2 := t1 * t1
	t3 := t2 * t1
	return ((1-3*t1+3*t2-t3)*v0 +
		(4-6*t2+3*t3)*v1 +
		(1+3*t1+3*t2-3*t3)*v2 +
		t3*v3) / 6
}

// Cubehelix color space (Green 2011), as used for perceptually smooth
// ramps.
const (
	chA = -0.14861
	chB = +1.78277
	chC = -0.29227
	chD = -0.90649
	chE = +1.97294
)

type cubehelix struct {
	h, s, l float64
}

func rgbToCubehelix(c color.RGBA) cubehelix {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255
	bcDA := chB*chC - chD*chA
	ed := chE * chD
	eb := chE * chB
	l := (bcDA*b + ed*r - eb*g) / (bcDA + ed - eb)
	bl := b - l
	k := (chE*(g-l) - chC*bl) / chD
	denom := chE * l * (1 - l)
	var s float64
	if denom != 0 {
		s = math.Sqrt(k*k+bl*bl) / denom
	}
	var h float64
	if s != 0 && !math.IsNaN(s) {
		h = math.Atan2(k, bl)*(180/math.Pi) - 120
		if h < 0 {
			h += 360
		}
	} else {
		h = math.NaN()
	}
	return cubehelix{h: h, s: s, l: l}
}

func (c cubehelix) rgb() color.RGBA {
	h := 0.0
	if !math.IsNaN(c.h) {
		h = (c.h + 120) * (math.Pi / 180)
	}
	a := c.s * c.l * (1 - c.l)
	if math.IsNaN(a) {
		a = 0
	}
	cosh := math.Cos(h)
	sinh := math.Sin(h)
	return color.RGBA{
		R: clampByte(255 * (c.l + a*(chA*cosh+chB*sinh))),
		G: clampByte(255 * (c.l + a*(chC*cosh+chD*sinh))),
		B: clampByte(255 * (c.l + a*(chE*cosh))),
		A: 255,
	}
}

// lerpCubehelix blends a→b at t in cubehelix space, applying gamma to
// lightness.
func lerpCubehelix(a, b color.RGBA, t, gamma float64) color.RGBA {
	if gamma <= 0 {
		gamma = 1
	}
	ca := rgbToCubehelix(a)
	cb := rgbToCubehelix(b)

	h := lerpHue(ca.h, cb.h, t)
	s := ca.s + (cb.s-ca.s)*t
	tl := math.Pow(t, gamma)
	l := ca.l + (cb.l-ca.l)*tl
	return cubehelix{h: h, s: s, l: l}.rgb()
}

// lerpHue interpolates hue along the short arc; an achromatic end (NaN
// hue) adopts the other end's hue.
func lerpHue(a, b, t float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	d := b - a
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return a + d*t
}

func clampByte(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
