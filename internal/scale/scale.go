// Package scale maps raw metric values onto a normalized [0,1] position.
package scale

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/stats"
)

// Kind selects the transform applied before normalization.
type Kind string

const (
	Linear Kind = "linear"
	Log    Kind = "log"
	Sqrt   Kind = "sqrt"
	Pow    Kind = "pow"
	Symlog Kind = "symlog"
)

// Float64 machine epsilon, used as the floor for log domains.
const epsilon = 2.220446049250313e-16

// Options declares how a scale is built. Zero values pick safe defaults.
type Options struct {
	Kind     string    `yaml:"scale" mapstructure:"scale"`
	Domain   []float64 `yaml:"domain" mapstructure:"domain"`
	Exponent string    `yaml:"exponent" mapstructure:"exponent"`
	Constant float64   `yaml:"constant" mapstructure:"constant"`
	Nice     bool      `yaml:"nice" mapstructure:"nice"`
}

// Scale is a pure value→[0,1] mapping with enough metadata for the legend
// and filter control to derive identical tick positions and labels.
// Built fresh per (summary, options) pair; never mutated after New.
type Scale struct {
	Kind     Kind
	Exponent float64 // retained for legend badge text on pow scales
	Constant float64

	d0, d1 float64 // effective domain, d0 <= d1
	f0, f1 float64 // transformed domain ends
}

// New builds a scale from a column summary and declared options.
// Returns nil for categorical summaries: binning and continuous logic
// never apply to categorical data.
func New(sum *stats.Summary, opts Options) *Scale {
	if sum == nil || sum.Kind != stats.KindNumeric {
		return nil
	}

	kind := parseKind(opts.Kind)
	d0, d1 := sum.Min, sum.Max
	if len(opts.Domain) == 2 {
		d0, d1 = opts.Domain[0], opts.Domain[1]
	}
	if d0 > d1 {
		d0, d1 = d1, d0
	}

	s := &Scale{
		Kind:     kind,
		Exponent: ParseExponent(opts.Exponent),
		Constant: opts.Constant,
	}
	if s.Constant <= 0 {
		s.Constant = 1
	}

	switch kind {
	case Log:
		// log of a non-positive value is undefined.
		if d0 <= 0 {
			d0 = epsilon
		}
		if d1 <= d0 {
			d1 = d0 + epsilon
		}
	case Sqrt, Pow:
		if d0 < 0 {
			d0 = 0
		}
		if d1 < d0 {
			d1 = d0
		}
	}

	s.d0, s.d1 = d0, d1
	if opts.Nice {
		s.d0, s.d1 = niceDomain(s.d0, s.d1)
		if kind == Log && s.d0 <= 0 {
			s.d0 = epsilon
		}
	}
	s.f0 = s.forward(s.d0)
	s.f1 = s.forward(s.d1)
	return s
}

func parseKind(k string) Kind {
	switch Kind(k) {
	case Log, Sqrt, Pow, Symlog:
		return Kind(k)
	case Linear, "":
		return Linear
	default:
		zap.L().Warn("scale: unknown kind, using linear", zap.String("kind", k))
		return Linear
	}
}

// ParseExponent parses a pow exponent from a decimal ("0.5") or fraction
// ("1/3") string. Unparseable input falls back to 2.
func ParseExponent(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 2
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v != 0 {
		return v
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN == nil && errD == nil && d != 0 && n != 0 {
			return n / d
		}
	}
	zap.L().Warn("scale: unparseable exponent, using 2", zap.String("exponent", s))
	return 2
}

// Domain returns the effective domain bounds, d0 <= d1.
func (s *Scale) Domain() (float64, float64) {
	return s.d0, s.d1
}

func (s *Scale) forward(v float64) float64 {
	switch s.Kind {
	case Log:
		if v < epsilon {
			v = epsilon
		}
		return math.Log(v)
	case Sqrt:
		if v < 0 {
			return 0
		}
		return math.Sqrt(v)
	case Pow:
		if v < 0 {
			return 0
		}
		return math.Pow(v, s.Exponent)
	case Symlog:
		// Linear-ish near zero, log-like beyond the constant.
		return sign(v) * math.Log1p(math.Abs(v)/s.Constant)
	default:
		return v
	}
}

func (s *Scale) backward(f float64) float64 {
	switch s.Kind {
	case Log:
		return math.Exp(f)
	case Sqrt:
		return f * f
	case Pow:
		return math.Pow(f, 1/s.Exponent)
	case Symlog:
		return sign(f) * s.Constant * math.Expm1(math.Abs(f))
	default:
		return f
	}
}

// Normalize maps a raw value to its position in [0,1]. Out-of-domain input
// saturates at 0 or 1; it never extrapolates.
func (s *Scale) Normalize(v float64) float64 {
	span := s.f1 - s.f0
	if span == 0 || math.IsNaN(v) {
		return 0
	}
	t := (s.forward(v) - s.f0) / span
	return clamp01(t)
}

// Invert maps a normalized position back to a raw value. The filter
// control and legend axis both use this, never a separately-derived map.
func (s *Scale) Invert(t float64) float64 {
	t = clamp01(t)
	// Snap to exact domain ends so slider/tick extremes equal min/max
	// even under floating rounding.
	if t == 0 {
		return s.d0
	}
	if t == 1 {
		return s.d1
	}
	return s.backward(s.f0 + t*(s.f1-s.f0))
}

// Ticks returns n evenly-spaced axis ticks in position space. The first
// and last ticks are exactly the domain ends.
func (s *Scale) Ticks(n int) []float64 {
	if n < 2 {
		n = 2
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Invert(float64(i) / float64(n-1))
	}
	return out
}

// OutOfDomain reports whether observed data extends below/above the
// declared domain. Computed once here and shared by legend, filter
// control and bivariate legend so the UI never disagrees with itself.
func (s *Scale) OutOfDomain(sum *stats.Summary) (below, above bool) {
	if s == nil || sum == nil || sum.Kind != stats.KindNumeric {
		return false, false
	}
	return sum.Min < s.d0, sum.Max > s.d1
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func clamp01(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// niceDomain expands [lo,hi] to human-friendly round bounds.
func niceDomain(lo, hi float64) (float64, float64) {
	if hi <= lo {
		return lo, hi
	}
	step := niceNum((hi-lo)/10, true)
	return math.Floor(lo/step) * step, math.Ceil(hi/step) * step
}

// niceNum rounds x to a 1/2/5 multiple of a power of ten.
func niceNum(x float64, round bool) float64 {
	exp := math.Floor(math.Log10(x))
	frac := x / math.Pow(10, exp)
	var nice float64
	if round {
		switch {
		case frac < 1.5:
			nice = 1
		case frac < 3:
			nice = 2
		case frac < 7:
			nice = 5
		default:
			nice = 10
		}
	} else {
		switch {
		case frac <= 1:
			nice = 1
		case frac <= 2:
			nice = 2
		case frac <= 5:
			nice = 5
		default:
			nice = 10
		}
	}
	return nice * math.Pow(10, exp)
}
