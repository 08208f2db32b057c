// Package interval implements arithmetic on half-open time intervals.
package interval

import (
	"slices"

	"github.com/JustinTDCT/cinescript/internal/models"
)

// Overlaps reports whether a and b share any instant. Intervals that only
// touch at an endpoint do not overlap.
func Overlaps(a, b models.TimeInterval) bool {
	return a.Start < b.End && a.End > b.Start
}

// Merge returns the smallest interval covering both a and b.
func Merge(a, b models.TimeInterval) models.TimeInterval {
	return models.TimeInterval{
		Start: min(a.Start, b.Start),
		End:   max(a.End, b.End),
	}
}

// Compare orders intervals by start, then by end.
func Compare(a, b models.TimeInterval) int {
	switch {
	case a.Start < b.Start:
		return -1
	case a.Start > b.Start:
		return 1
	case a.End < b.End:
		return -1
	case a.End > b.End:
		return 1
	}
	return 0
}

// SortByStart returns a sorted copy of list. Equal intervals keep their input order.
func SortByStart(list []models.TimeInterval) []models.TimeInterval {
	out := slices.Clone(list)
	slices.SortStableFunc(out, Compare)
	return out
}

// Subtract returns the pieces of base not covered by any cut, in ascending
// order. Cuts need not be sorted or disjoint.
func Subtract(base models.TimeInterval, cuts []models.TimeInterval) []models.TimeInterval {
	if base.End <= base.Start {
		return nil
	}
	sorted := SortByStart(cuts)

	var out []models.TimeInterval
	cursor := base.Start
	for _, c := range sorted {
		if c.End <= cursor {
			continue
		}
		if c.Start >= base.End {
			break
		}
		if c.Start > cursor {
			out = append(out, models.TimeInterval{Start: cursor, End: c.Start})
		}
		cursor = max(cursor, c.End)
		if cursor >= base.End {
			return out
		}
	}
	if cursor < base.End {
		out = append(out, models.TimeInterval{Start: cursor, End: base.End})
	}
	return out
}
