package detection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/media"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// darkRun tracks a stretch of dark sampled frames.
type darkRun struct {
	first, last int
	dark        int
	frames      int
	// bright frames seen since last; folded into frames if the run resumes
	pendingBright int
}

// ScanDarkness finds stretches of sampled frames whose mean luma is strictly
// below the brightness threshold. Up to MaxBrightGap consecutive non-dark
// frames inside a stretch do not end it.
func (d *Detector) ScanDarkness(ctx context.Context, src media.FrameSource) ([]models.CandidateExclusion, error) {
	started := time.Now()
	info := src.Info()
	if info.FPS <= 0 || math.IsNaN(info.FPS) {
		return nil, apperrors.MediaRead("video stream reports no frame rate")
	}

	every := d.cfg.FrameSampleEvery
	it, err := src.Frames(ctx, every)
	if err != nil {
		return nil, mediaReadError(err, "open video frames")
	}
	defer it.Close()

	threshold := float64(d.cfg.BrightnessThreshold)
	var (
		out     []models.CandidateExclusion
		run     *darkRun
		sampled int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, mediaReadError(err, fmt.Sprintf("decode frame after %d sampled", sampled))
		}
		sampled++

		if media.MeanLuma(f.Image) < threshold {
			if run == nil {
				run = &darkRun{first: f.Index}
			} else {
				run.frames += run.pendingBright
				run.pendingBright = 0
			}
			run.last = f.Index
			run.dark++
			run.frames++
			continue
		}
		if run != nil {
			run.pendingBright++
			if run.pendingBright > d.cfg.MaxBrightGap {
				out = d.appendDarkRun(out, run, info, every)
				run = nil
			}
		}
	}
	if run != nil {
		out = d.appendDarkRun(out, run, info, every)
	}

	d.log.Debug().
		Int("sampled_frames", sampled).
		Int("candidates", len(out)).
		Dur("elapsed", time.Since(started)).
		Msg("darkness scan finished")
	return out, nil
}

// appendDarkRun emits the run if it lasts at least BlackMinDuration. The run
// ends where the next sampled frame would begin, clipped to the media end.
// The length is taken from the frame count so a run of exactly the minimum
// is not lost to rounding in end-start.
func (d *Detector) appendDarkRun(out []models.CandidateExclusion, run *darkRun, info media.VideoInfo, every int) []models.CandidateExclusion {
	start := float64(run.first) / info.FPS
	end := float64(run.last+every) / info.FPS
	length := float64(run.last+every-run.first) / info.FPS
	if info.Duration > 0 && end > info.Duration {
		end = info.Duration
		length = end - start
	}
	if shorterThan(length, d.cfg.BlackMinDuration) {
		return out
	}
	return append(out, models.CandidateExclusion{
		Interval:   models.TimeInterval{Start: start, End: end},
		Method:     models.MethodVisualDarkness,
		Confidence: math.Min(MaxConfidence, float64(run.dark)/float64(run.frames)),
		Note:       fmt.Sprintf("%d dark frames", run.dark),
	})
}
