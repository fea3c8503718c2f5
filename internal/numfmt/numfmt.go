// Package numfmt formats and parses the numbers shown in legends and
// filter controls. Both surfaces share one formatter so labels and
// typed-in bounds always agree.
package numfmt

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// SI suffixes for compact display, thousands upward.
var suffixes = []struct {
	factor float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "k"},
}

// Formatter renders metric values for display.
type Formatter struct {
	printer    *message.Printer
	format     string // "compact" (default) or "plain"
	percentage bool
	pctScale   float64
}

// New builds a formatter from a metric's display settings. A zero
// percentage scale defaults to 100 (fractions shown as percent).
func New(format string, percentage bool, percentageScale float64) *Formatter {
	if percentage && percentageScale == 0 {
		percentageScale = 100
	}
	return &Formatter{
		printer:    message.NewPrinter(language.English),
		format:     format,
		percentage: percentage,
		pctScale:   percentageScale,
	}
}

// Format renders a value. Infinities render as unbounded markers for
// filter edges.
func (f *Formatter) Format(v float64) string {
	switch {
	case math.IsNaN(v):
		return "—"
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	}
	if f.percentage {
		return trimZeros(strconv.FormatFloat(v*f.pctScale, 'f', decimalsFor(v*f.pctScale), 64)) + "%"
	}
	if f.format == "plain" {
		return f.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(2)))
	}
	return f.compact(v)
}

func (f *Formatter) compact(v float64) string {
	abs := math.Abs(v)
	for _, s := range suffixes {
		if abs >= s.factor {
			return trimZeros(strconv.FormatFloat(v/s.factor, 'f', 1, 64)) + s.suffix
		}
	}
	return trimZeros(strconv.FormatFloat(v, 'f', decimalsFor(v), 64))
}

func decimalsFor(v float64) int {
	abs := math.Abs(v)
	switch {
	case abs == 0 || abs >= 100:
		return 0
	case abs >= 1:
		return 1
	default:
		return 2
	}
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Parse reads human shorthand: plain numbers, "1.5k"/"2M"/"3B"/"1T"
// (case-insensitive), percent suffix, and grouping commas.
func (f *Formatter) Parse(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, eris.New("numfmt: empty input")
	}

	pct := strings.HasSuffix(s, "%")
	if pct {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	mult := 1.0
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'k', 'K':
			mult = 1e3
			s = s[:len(s)-1]
		case 'm', 'M':
			mult = 1e6
			s = s[:len(s)-1]
		case 'b', 'B':
			mult = 1e9
			s = s[:len(s)-1]
		case 't', 'T':
			mult = 1e12
			s = s[:len(s)-1]
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "numfmt: parse %q", s)
	}
	v *= mult
	if pct {
		scale := f.pctScale
		if scale == 0 {
			scale = 100
		}
		v /= scale
	}
	return v, nil
}
