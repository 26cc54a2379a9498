// Package matching assigns ground-truth events to anchors.
//
// Every anchor is compared against every event of its window with the 1-D
// intersection-over-union. The anchor takes the class of its best event when
// that overlap reaches MatchingOverlap, is marked Ignore when it only reaches
// MinimumOverlap, and is Background otherwise. Afterwards each event claims
// the anchor that overlaps it most, so no event is left without a positive
// anchor even when none clears the matching threshold. When two events want
// the same anchor the larger overlap keeps it and the other event takes its
// best remaining overlapping anchor.
package matching

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/records"
)

const (
	// Background marks an anchor matched to no event.
	Background = 0
	// Ignore marks an anchor whose best overlap lies between the minimum and
	// the matching overlap; it contributes to neither loss term.
	Ignore = -1
)

var (
	// ErrUnknownEvent is returned when an event label has no configured class.
	ErrUnknownEvent = errors.New("matching: unknown event label")

	// ErrInvalidThreshold is returned for overlaps outside [0,1] or a minimum
	// overlap above the matching overlap.
	ErrInvalidThreshold = errors.New("matching: invalid overlap threshold")
)

// Match is the assignment of one anchor. Target is only set for positive
// classes.
type Match struct {
	Class  int
	Target [2]float32
}

// Positive reports whether the anchor is matched to an event.
func (m Match) Positive() bool { return m.Class > Background }

// Interval is a half-open [Start, End) span in samples.
type Interval struct {
	Start, End float64
}

// Overlap returns the intersection-over-union of a and b. It is symmetric,
// 1 for identical intervals and 0 for disjoint or empty ones.
func Overlap(a, b Interval) float64 {
	inter := math.Min(a.End, b.End) - math.Max(a.Start, b.Start)
	if inter <= 0 {
		return 0
	}
	union := math.Max(a.End, b.End) - math.Min(a.Start, b.Start)
	if union <= 0 {
		return 0
	}
	return math.Min(1, inter/union)
}

// Encode returns the regression target that moves anchor a onto event e:
// the center offset in anchor durations and the log duration ratio.
func Encode(a anchors.Anchor, e records.Event) [2]float32 {
	center := e.Start + e.Duration/2
	return [2]float32{
		float32((center - a.Center) / a.Duration),
		float32(math.Log(e.Duration / a.Duration)),
	}
}

// Decode inverts Encode and returns the event interval in samples.
func Decode(a anchors.Anchor, target [2]float32) Interval {
	center := a.Center + float64(target[0])*a.Duration
	duration := a.Duration * math.Exp(float64(target[1]))
	return Interval{Start: center - duration/2, End: center + duration/2}
}

// Matcher holds the overlap thresholds and the label to class id mapping.
// Class ids are shifted by one in Match.Class so that Background stays 0.
type Matcher struct {
	MatchingOverlap float64
	MinimumOverlap  float64
	Classes         map[string]int
}

// NewMatcher validates the thresholds and returns a Matcher.
func NewMatcher(matchingOverlap, minimumOverlap float64, classes map[string]int) (*Matcher, error) {
	if matchingOverlap < 0 || matchingOverlap > 1 || minimumOverlap < 0 || minimumOverlap > 1 {
		return nil, errors.Wrapf(ErrInvalidThreshold, "matching=%v minimum=%v", matchingOverlap, minimumOverlap)
	}
	if minimumOverlap > matchingOverlap {
		return nil, errors.Wrapf(ErrInvalidThreshold, "minimum %v above matching %v", minimumOverlap, matchingOverlap)
	}
	if len(classes) == 0 {
		return nil, errors.New("matching: no event classes configured")
	}
	for name, id := range classes {
		if id < 0 {
			return nil, errors.Errorf("matching: class id %d for %q is negative", id, name)
		}
	}
	return &Matcher{MatchingOverlap: matchingOverlap, MinimumOverlap: minimumOverlap, Classes: classes}, nil
}

// Labels returns the configured event labels ordered by class id.
func (m *Matcher) Labels() []string {
	out := make([]string, 0, len(m.Classes))
	for name := range m.Classes {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if m.Classes[out[i]] != m.Classes[out[j]] {
			return m.Classes[out[i]] < m.Classes[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Class returns the Match class for an event label.
func (m *Matcher) Class(label string) (int, error) {
	id, ok := m.Classes[label]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownEvent, "%q", label)
	}
	return id + 1, nil
}

// Match returns one Match per anchor, in anchor order. Events are in
// window-relative samples. A window without events is all Background.
func (m *Matcher) Match(anchorSet []anchors.Anchor, events []records.Event) ([]Match, error) {
	out := make([]Match, len(anchorSet))
	if len(events) == 0 {
		return out, nil
	}

	classes := make([]int, len(events))
	spans := make([]Interval, len(events))
	for j, e := range events {
		c, err := m.Class(e.Label)
		if err != nil {
			return nil, err
		}
		classes[j] = c
		spans[j] = Interval{Start: e.Start, End: e.End()}
	}

	overlaps := make([][]float64, len(anchorSet))
	for i, a := range anchorSet {
		row := make([]float64, len(events))
		span := Interval{Start: a.Start(), End: a.End()}
		best, bestScore := -1, 0.0
		for j := range events {
			row[j] = Overlap(span, spans[j])
			if best < 0 || row[j] > bestScore {
				best, bestScore = j, row[j]
			}
		}
		overlaps[i] = row

		switch {
		case bestScore >= m.MatchingOverlap && bestScore > 0:
			out[i] = Match{Class: classes[best], Target: Encode(a, events[best])}
		case bestScore >= m.MinimumOverlap && bestScore > 0:
			out[i] = Match{Class: Ignore}
		}
	}

	// forced assignment: pairs are taken by decreasing overlap, ties going to
	// the earlier event and then the earlier anchor. An event whose best
	// anchor went to a stronger event falls back to its best free anchor.
	type pair struct {
		anchor, event int
		score         float64
	}
	var pairs []pair
	for i := range anchorSet {
		for j := range events {
			if overlaps[i][j] > 0 {
				pairs = append(pairs, pair{anchor: i, event: j, score: overlaps[i][j]})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if pa.score != pb.score {
			return pa.score > pb.score
		}
		if pa.event != pb.event {
			return pa.event < pb.event
		}
		return pa.anchor < pb.anchor
	})
	owner := make(map[int]int, len(events))
	claimed := make([]bool, len(events))
	for _, p := range pairs {
		if claimed[p.event] {
			continue
		}
		if _, taken := owner[p.anchor]; taken {
			continue
		}
		owner[p.anchor] = p.event
		claimed[p.event] = true
	}
	for i, j := range owner {
		out[i] = Match{Class: classes[j], Target: Encode(anchorSet[i], events[j])}
	}
	return out, nil
}

// Summary counts anchors per outcome.
type Summary struct {
	Positive, Ignored, Background int
}

// Summarize counts the outcomes of a Match sequence.
func Summarize(ms []Match) Summary {
	var s Summary
	for _, m := range ms {
		switch {
		case m.Positive():
			s.Positive++
		case m.Class == Ignore:
			s.Ignored++
		default:
			s.Background++
		}
	}
	return s
}
