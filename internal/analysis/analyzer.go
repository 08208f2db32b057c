// Package analysis turns one media file into an analysis plan: processing
// windows, scene changes, the merged exclusion timeline and the audio that
// remains to be transcribed.
package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/JustinTDCT/cinescript/internal/chunker"
	"github.com/JustinTDCT/cinescript/internal/detection"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/metrics"
	"github.com/JustinTDCT/cinescript/internal/models"
	"github.com/JustinTDCT/cinescript/internal/timeline"
)

const (
	StageWindows = "windows"
	StageScenes  = "scenes"
)

// concurrent stages reported through the progress callback
const stageCount = 3

// SkipRangeLister is satisfied by the skip range store.
type SkipRangeLister interface {
	List(ctx context.Context, jobID uuid.UUID) ([]*models.SkipRange, error)
}

type Options struct {
	ChunkDuration    float64
	ChunkOverlap     float64
	SceneSampleEvery int
	SceneThreshold   float64
	Timeline         timeline.Builder
}

type Analyzer struct {
	opener   Opener
	detector *detection.Detector
	scenes   *chunker.SceneDetector
	ranges   SkipRangeLister
	opts     Options
	log      zerolog.Logger
	progress func(jobID uuid.UUID, pct int)
}

type Option func(*Analyzer)

// WithProgress reports completion percentages while a job runs.
func WithProgress(fn func(jobID uuid.UUID, pct int)) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// New checks every tunable up front so Run only fails on media or storage.
func New(opener Opener, detector *detection.Detector, ranges SkipRangeLister, opts Options, logger zerolog.Logger, options ...Option) (*Analyzer, error) {
	if _, err := chunker.ComputeWindows(opts.ChunkDuration, opts.ChunkDuration, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	scenes, err := chunker.NewSceneDetector(opts.SceneSampleEvery, opts.SceneThreshold)
	if err != nil {
		return nil, err
	}
	if opts.Timeline.MinSegment < 0 {
		return nil, apperrors.Configuration("minimum segment must not be negative, got %g", opts.Timeline.MinSegment)
	}
	a := &Analyzer{
		opener:   opener,
		detector: detector,
		scenes:   scenes,
		ranges:   ranges,
		opts:     opts,
		log:      logger,
		progress: func(uuid.UUID, int) {},
	}
	for _, o := range options {
		o(a)
	}
	return a, nil
}

// Run analyses job's file. Scan failures are recorded on the plan; Run only
// fails when the file cannot be opened, the skip ranges cannot be read, the
// context is cancelled, or nothing at all could be computed.
func (a *Analyzer) Run(ctx context.Context, job *models.Job) (*models.AnalysisPlan, error) {
	log := a.log.With().Str("job_id", job.ID.String()).Str("file", job.FilePath).Logger()

	src, err := a.opener.Open(ctx, job.FilePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing media source")
		}
	}()

	plan := &models.AnalysisPlan{
		JobID:    job.ID,
		FilePath: job.FilePath,
		Duration: src.Duration,
	}

	var (
		mu        sync.Mutex
		done      atomic.Int32
		windowErr error
		sceneErr  error
		detected  *detection.Result
	)
	stageDone := func(stage string, started time.Time) {
		metrics.ScanDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
		a.progress(job.ID, int(done.Add(1))*90/stageCount)
	}

	// Stage failures are recorded on the plan; only cancellation reaches Wait.
	var g errgroup.Group
	g.Go(func() error {
		started := time.Now()
		windows, err := chunker.ComputeWindows(src.Duration, a.opts.ChunkDuration, a.opts.ChunkOverlap)
		mu.Lock()
		plan.Windows, windowErr = windows, err
		mu.Unlock()
		stageDone(StageWindows, started)
		return nil
	})
	g.Go(func() error {
		started := time.Now()
		changes, err := a.scenes.Collect(ctx, src.Frames)
		mu.Lock()
		plan.SceneChanges, sceneErr = changes, err
		mu.Unlock()
		stageDone(StageScenes, started)
		return cancellation(err)
	})
	g.Go(func() error {
		res := a.detector.Detect(ctx, src.Frames, src.Audio)
		for scan, d := range res.Elapsed {
			metrics.ScanDuration.WithLabelValues(scan).Observe(d.Seconds())
		}
		mu.Lock()
		detected = res
		mu.Unlock()
		a.progress(job.ID, int(done.Add(1))*90/stageCount)
		return ctx.Err()
	})
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	// Partial scan output is discarded once cancelled.
	if err != nil {
		log.Info().Err(err).Msg("analysis cancelled")
		return nil, err
	}

	if windowErr != nil {
		plan.ScanFailures = append(plan.ScanFailures, failure(StageWindows, windowErr))
	}
	if sceneErr != nil {
		plan.ScanFailures = append(plan.ScanFailures, failure(StageScenes, sceneErr))
		plan.SceneChanges = nil
	}
	plan.ScanFailures = append(plan.ScanFailures, detected.Failures...)
	for _, f := range plan.ScanFailures {
		metrics.ScanFailuresTotal.WithLabelValues(f.Scan, f.Code).Inc()
		log.Warn().Str("scan", f.Scan).Str("code", f.Code).Msg(f.Message)
	}
	if windowErr != nil && len(detected.Failures) == 2 {
		return nil, apperrors.Internal("no analysis stage succeeded for "+job.FilePath, errors.New(plan.FailureDetail())).
			WithDetails(plan.ScanFailures)
	}

	manual, err := a.ranges.List(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	plan.Timeline = a.opts.Timeline.Build(detected.Candidates, manual)
	plan.Keep = a.opts.Timeline.Apply(plan.Windows, plan.Timeline)

	for _, e := range plan.Timeline.Entries {
		metrics.ExclusionsFoundTotal.WithLabelValues(string(e.Method)).Inc()
	}
	excluded := plan.Timeline.TotalDuration()
	metrics.ExcludedSeconds.Add(excluded)

	log.Info().
		Int("windows", len(plan.Windows)).
		Int("scene_changes", len(plan.SceneChanges)).
		Int("detected", len(detected.Candidates)).
		Int("manual", len(manual)).
		Int("exclusions", len(plan.Timeline.Entries)).
		Float64("excluded_seconds", excluded).
		Int("scan_failures", len(plan.ScanFailures)).
		Msg("analysis complete")
	return plan, nil
}

// cancellation passes through context errors and drops everything else.
func cancellation(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func failure(scan string, err error) models.ScanFailure {
	return models.ScanFailure{Scan: scan, Code: string(apperrors.CodeOf(err)), Message: err.Error()}
}
