// Package timing describes requested video modes and the timings that
// realise them: VESA CVT synthesis and the 18-byte detailed timing
// descriptor encoding.
package timing

import (
	"fmt"
	"math"
)

// Mode is a requested resolution and refresh rate.
type Mode struct {
	Width   int `json:"width" yaml:"width"`
	Height  int `json:"height" yaml:"height"`
	Refresh int `json:"refresh" yaml:"refresh"`
}

// Key is the identity of a mode; two modes are duplicates iff keys match.
func (m Mode) Key() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.Refresh)
}

// String formats the mode for summaries, e.g. "1920x1080 @ 60Hz".
func (m Mode) String() string {
	return fmt.Sprintf("%dx%d @ %dHz", m.Width, m.Height, m.Refresh)
}

// Valid reports whether every dimension is positive.
func (m Mode) Valid() bool {
	return m.Width > 0 && m.Height > 0 && m.Refresh > 0
}

// Aspect returns the approximate aspect label of the mode.
func (m Mode) Aspect() string {
	return ApproximateAspect(m.Width, m.Height)
}

var knownAspects = []struct {
	label string
	ratio float64
}{
	{"4:3", 4.0 / 3},
	{"5:4", 5.0 / 4},
	{"16:10", 16.0 / 10},
	{"16:9", 16.0 / 9},
	{"21:9", 21.0 / 9},
	{"64:27", 64.0 / 27},
}

// ApproximateAspect snaps width/height to the closest common aspect label
// within 0.02, falling back to the reduced fraction.
func ApproximateAspect(width, height int) string {
	if width <= 0 || height <= 0 {
		return "0:0"
	}
	ratio := float64(width) / float64(height)
	best := ""
	bestDelta := 0.0
	for _, k := range knownAspects {
		delta := math.Abs(ratio - k.ratio)
		if delta < 0.02 && (best == "" || delta < bestDelta) {
			best = k.label
			bestDelta = delta
		}
	}
	if best != "" {
		return best
	}
	div := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/div, height/div)
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// UseReducedBlanking selects CVT-RB for large or fast modes.
func UseReducedBlanking(m Mode) bool {
	return m.Width >= 1920 || m.Height >= 1080 || m.Refresh > 60
}

// Dedupe removes repeated keys, keeping the first occurrence. The returned
// keys are the duplicates in the order they were seen.
func Dedupe(modes []Mode) ([]Mode, []string) {
	seen := make(map[string]bool, len(modes))
	out := make([]Mode, 0, len(modes))
	var dups []string
	for _, m := range modes {
		k := m.Key()
		if seen[k] {
			dups = append(dups, k)
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out, dups
}
