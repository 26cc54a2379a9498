// Package anchors generates the default events (anchors) laid over an
// analysis window.
//
// For every configured duration d the window is covered by intervals of
// length d placed at a stride of d/overlapFactor, starting at the window
// origin and continuing while the interval still fits inside the window.
// Anchors are returned duration-major, then position-ascending, and the same
// inputs always produce the same anchors, so the set can be computed once per
// configuration and shared read-only by every window and worker.
package anchors

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfig is returned for non-positive window sizes, durations or
	// an overlap factor below 1.
	ErrInvalidConfig = errors.New("anchors: invalid configuration")

	// ErrNoAnchors is returned when no configured duration fits the window.
	ErrNoAnchors = errors.New("anchors: configuration yields no anchors")
)

// Anchor is a default event in window-relative sample coordinates.
type Anchor struct {
	Center   float64
	Duration float64
}

// Start returns the first sample covered by the anchor.
func (a Anchor) Start() float64 { return a.Center - a.Duration/2 }

// End returns the exclusive end of the anchor.
func (a Anchor) End() float64 { return a.Center + a.Duration/2 }

// ForDuration returns the anchors of a single duration d. A duration larger
// than the window yields no anchors.
func ForDuration(windowSize, d, overlapFactor int) []Anchor {
	if windowSize <= 0 || d <= 0 || overlapFactor < 1 || d > windowSize {
		return nil
	}
	n := Count(windowSize, d, overlapFactor)
	out := make([]Anchor, 0, n)
	for i := 0; i < n; i++ {
		// i*d/k in one division so whole-sample starts are exact
		start := float64(i*d) / float64(overlapFactor)
		out = append(out, Anchor{Center: start + float64(d)/2, Duration: float64(d)})
	}
	return out
}

// Count returns the number of anchors of duration d that fit a window of
// windowSize samples: floor((windowSize-d)/(d/overlapFactor)) + 1, or 0 when
// d does not fit.
func Count(windowSize, d, overlapFactor int) int {
	if windowSize <= 0 || d <= 0 || overlapFactor < 1 || d > windowSize {
		return 0
	}
	// (W-d)/(d/k) == k*(W-d)/d, kept in integers to avoid float truncation.
	return overlapFactor*(windowSize-d)/d + 1
}

// Generate builds the full anchor set for a window of windowSize samples.
func Generate(windowSize int, durations []int, overlapFactor int) ([]Anchor, error) {
	if windowSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "window size %d", windowSize)
	}
	if overlapFactor < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "overlap factor %d", overlapFactor)
	}
	if len(durations) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "no default durations")
	}
	total := 0
	for _, d := range durations {
		if d <= 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "duration %d", d)
		}
		total += Count(windowSize, d, overlapFactor)
	}
	if total == 0 {
		return nil, errors.Wrapf(ErrNoAnchors, "window size %d, durations %v", windowSize, durations)
	}

	out := make([]Anchor, 0, total)
	for _, d := range durations {
		out = append(out, ForDuration(windowSize, d, overlapFactor)...)
	}
	return out, nil
}

// Seconds converts durations in seconds to whole samples at fs.
func Seconds(durations []float64, fs float64) []int {
	out := make([]int, len(durations))
	for i, d := range durations {
		out[i] = int(math.Round(d * fs))
	}
	return out
}
