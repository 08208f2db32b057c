// Package timeline merges detected and manual exclusions into one sorted,
// non-overlapping timeline and cuts it out of the chunk schedule.
package timeline

import (
	"slices"

	"github.com/JustinTDCT/cinescript/internal/interval"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// TiePolicy picks the method of a merged group when its two highest
// non-manual confidences are exactly equal.
type TiePolicy int

const (
	// VisualFirst resolves ties to visual darkness.
	VisualFirst TiePolicy = iota
	// AudioFirst resolves ties to audio silence.
	AudioFirst
)

func (p TiePolicy) String() string {
	if p == AudioFirst {
		return "audio_first"
	}
	return "visual_first"
}

// ParseTiePolicy accepts the names returned by String.
func ParseTiePolicy(s string) (TiePolicy, bool) {
	switch s {
	case "visual_first", "":
		return VisualFirst, true
	case "audio_first":
		return AudioFirst, true
	}
	return VisualFirst, false
}

// Builder builds exclusion timelines. The zero value is ready to use.
type Builder struct {
	TiePolicy TiePolicy
	// MinSegment drops kept pieces shorter than this many seconds in Apply.
	MinSegment float64
}

// Build merges with the default policy.
func Build(detected []models.CandidateExclusion, manual []*models.SkipRange) models.ExclusionTimeline {
	return Builder{}.Build(detected, manual)
}

// Build converts manual ranges to candidates, sorts everything by (start,
// end) and folds each candidate into the previous entry when they overlap.
// Touching entries stay separate. Inputs are not modified.
func (b Builder) Build(detected []models.CandidateExclusion, manual []*models.SkipRange) models.ExclusionTimeline {
	all := make([]models.CandidateExclusion, 0, len(detected)+len(manual))
	all = append(all, detected...)
	for _, m := range manual {
		all = append(all, m.ToCandidate())
	}
	slices.SortStableFunc(all, func(x, y models.CandidateExclusion) int {
		return interval.Compare(x.Interval, y.Interval)
	})

	entries := make([]models.CandidateExclusion, 0, len(all))
	for _, c := range all {
		if n := len(entries); n > 0 && interval.Overlaps(entries[n-1].Interval, c.Interval) {
			entries[n-1] = b.merge(entries[n-1], c)
			continue
		}
		entries = append(entries, c)
	}
	return models.ExclusionTimeline{Entries: entries}
}

func (b Builder) merge(acc, c models.CandidateExclusion) models.CandidateExclusion {
	out := models.CandidateExclusion{Interval: interval.Merge(acc.Interval, c.Interval)}

	accManual := acc.Method == models.MethodManual
	cManual := c.Method == models.MethodManual
	switch {
	case accManual && cManual:
		out.Method, out.Confidence = models.MethodManual, models.ManualConfidence
		out.Note = joinNotes(acc.Note, c.Note)
	case accManual:
		out.Method, out.Confidence, out.Note = models.MethodManual, models.ManualConfidence, acc.Note
	case cManual:
		out.Method, out.Confidence, out.Note = models.MethodManual, models.ManualConfidence, c.Note
	case acc.Confidence > c.Confidence:
		out.Method, out.Confidence, out.Note = acc.Method, acc.Confidence, acc.Note
	case c.Confidence > acc.Confidence:
		out.Method, out.Confidence, out.Note = c.Method, c.Confidence, c.Note
	default:
		out.Confidence = acc.Confidence
		if b.tieWinner(acc.Method, c.Method) == acc.Method {
			out.Method, out.Note = acc.Method, acc.Note
		} else {
			out.Method, out.Note = c.Method, c.Note
		}
	}
	return out
}

func (b Builder) tieWinner(x, y models.DetectionMethod) models.DetectionMethod {
	if x == y {
		return x
	}
	preferred := models.MethodVisualDarkness
	if b.TiePolicy == AudioFirst {
		preferred = models.MethodAudioSilence
	}
	if x == preferred || y == preferred {
		return preferred
	}
	if x.Rank() >= y.Rank() {
		return x
	}
	return y
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	}
	return a + "; " + b
}

// Apply returns the parts of each window that fall outside the timeline.
func Apply(windows []models.ChunkWindow, tl models.ExclusionTimeline) []models.ChunkSegment {
	return Builder{}.Apply(windows, tl)
}

// Apply cuts every timeline entry out of each window, keeping pieces of at
// least MinSegment seconds in window order.
func (b Builder) Apply(windows []models.ChunkWindow, tl models.ExclusionTimeline) []models.ChunkSegment {
	cuts := tl.Intervals()
	var out []models.ChunkSegment
	for _, w := range windows {
		for _, piece := range interval.Subtract(w.Interval(), cuts) {
			if piece.Duration() < b.MinSegment {
				continue
			}
			out = append(out, models.ChunkSegment{Window: w.Index, Interval: piece})
		}
	}
	return out
}
