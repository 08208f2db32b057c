package detection

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/media"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// rmsFloor keeps log10 finite for digital silence; it maps to -200 dB.
const rmsFloor = 1e-10

// silenceFullConfidence is the run length at which confidence saturates.
const silenceFullConfidence = 5.0

// durationTolerance absorbs float error in lengths derived from clipped ends.
const durationTolerance = 1e-9

// shorterThan reports whether length falls below min by more than rounding.
func shorterThan(length, minimum float64) bool {
	return length+durationTolerance < minimum
}

// LevelDB returns the RMS level of mono samples in dBFS. An empty window
// reads as the floor.
func LevelDB(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	var rms float64
	if len(samples) > 0 {
		rms = math.Sqrt(sum / float64(len(samples)))
	}
	return 20 * math.Log10(math.Max(rms, rmsFloor))
}

// ScanSilence walks the audio track in fixed windows and reports runs of
// windows quieter than SilenceDB. Media without audio yields no candidates.
func (d *Detector) ScanSilence(ctx context.Context, src media.AudioSource) ([]models.CandidateExclusion, error) {
	if src == nil || !src.HasAudio() {
		d.log.Debug().Msg("no audio track, skipping silence scan")
		return nil, nil
	}
	format := src.Format()
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, apperrors.MediaRead("audio stream reports %d Hz, %d channels", format.SampleRate, format.Channels)
	}

	started := time.Now()
	total := src.Duration()
	win := d.cfg.AudioWindow.Seconds()

	var (
		out      []models.CandidateExclusion
		inRun    bool
		runFirst int
		runStart float64
		runLevel float64
		windows  int
	)
	// emit closes the run before window next; end is where that window starts
	// or the media end. The length comes from the window count unless the
	// last window was clipped.
	emit := func(next int, end float64) {
		dur := float64(next-runFirst) * win
		if end < runStart+dur {
			dur = end - runStart
		}
		if shorterThan(dur, d.cfg.SilenceMinDuration) {
			return
		}
		out = append(out, models.CandidateExclusion{
			Interval:   models.TimeInterval{Start: runStart, End: end},
			Method:     models.MethodAudioSilence,
			Confidence: math.Min(MaxConfidence, dur/silenceFullConfidence),
			Note:       fmt.Sprintf("silent at %.1f dB", runLevel),
		})
	}

	for i := 0; ; i++ {
		start := float64(i) * win
		if start >= total {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := math.Min(start+win, total)
		w, err := src.Extract(ctx, start, end)
		if err != nil {
			return nil, mediaReadError(err, fmt.Sprintf("extract audio [%.3f, %.3f)", start, end))
		}
		windows++

		level := LevelDB(w.Mono())
		if level < d.cfg.SilenceDB {
			if !inRun {
				inRun, runFirst, runStart, runLevel = true, i, start, level
			} else {
				runLevel = math.Max(runLevel, level)
			}
			continue
		}
		if inRun {
			emit(i, start)
			inRun = false
		}
	}
	if inRun {
		emit(windows, total)
	}

	d.log.Debug().
		Int("windows", windows).
		Int("candidates", len(out)).
		Dur("elapsed", time.Since(started)).
		Msg("silence scan finished")
	return out, nil
}
