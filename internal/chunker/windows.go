// Package chunker splits media into fixed-length overlapping processing
// windows and reports scene changes. Window boundaries depend on duration
// alone; scene changes are informational.
package chunker

import (
	"math"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// ComputeWindows tiles [0, totalDuration) with windows of chunkLength seconds,
// each starting chunkLength-overlapLength after the previous one. The last
// window is clipped to the media end.
func ComputeWindows(totalDuration, chunkLength, overlapLength float64) ([]models.ChunkWindow, error) {
	if !finite(totalDuration) || !finite(chunkLength) || !finite(overlapLength) {
		return nil, apperrors.Configuration("chunk parameters must be finite")
	}
	if totalDuration <= 0 {
		return nil, apperrors.Configuration("total duration must be positive, got %g", totalDuration)
	}
	if chunkLength <= 0 || overlapLength <= 0 {
		return nil, apperrors.Configuration("chunk (%g) and overlap (%g) must be positive", chunkLength, overlapLength)
	}
	if overlapLength >= chunkLength {
		return nil, apperrors.Configuration("overlap %g must be shorter than chunk %g", overlapLength, chunkLength)
	}

	step := chunkLength - overlapLength
	count := int(math.Ceil(totalDuration / step))
	windows := make([]models.ChunkWindow, 0, count)
	for i := 0; ; i++ {
		// Derived from i rather than summed so long files do not drift.
		start := float64(i) * step
		if start >= totalDuration {
			break
		}
		windows = append(windows, models.ChunkWindow{
			Index: i,
			Start: start,
			End:   math.Min(start+chunkLength, totalDuration),
		})
	}
	return windows, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
