package detection

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/interval"
	"github.com/JustinTDCT/cinescript/internal/media"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// Scan names used in results, logs and metrics.
const (
	ScanDarknessName = "darkness"
	ScanSilenceName  = "silence"
)

// MaxConfidence bounds detector output below the confidence of manual ranges.
const MaxConfidence = 0.99

// Config holds the thresholds for both content scans.
type Config struct {
	// Mean luma (0-255) below which a frame counts as dark.
	BrightnessThreshold int     `validate:"min=1,max=255"`
	BlackMinDuration    float64 `validate:"gt=0"`
	// Consecutive non-dark sampled frames tolerated inside a dark run.
	MaxBrightGap       int           `validate:"min=0"`
	SilenceDB          float64       `validate:"lt=0"`
	SilenceMinDuration float64       `validate:"gt=0"`
	AudioWindow        time.Duration `validate:"gt=0"`
	FrameSampleEvery   int           `validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		BrightnessThreshold: 20,
		BlackMinDuration:    1.0,
		MaxBrightGap:        2,
		SilenceDB:           -40,
		SilenceMinDuration:  1.0,
		AudioWindow:         500 * time.Millisecond,
		FrameSampleEvery:    1,
	}
}

var validate = validator.New()

// Validate returns a CONFIGURATION error describing the first bad field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.Configuration("detector %s fails %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return apperrors.Configuration("detector config: %v", err)
	}
	return nil
}

// Detector finds dark and silent stretches of a media file.
type Detector struct {
	cfg Config
	log zerolog.Logger
}

// New validates cfg before any scan can run.
func New(cfg Config, logger zerolog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg: cfg,
		log: logger.With().Str("component", "detector").Logger(),
	}, nil
}

func (d *Detector) Config() Config { return d.cfg }

// ──────────────────── Combined Detection ────────────────────

// Result holds the candidates of every scan that completed and one failure
// entry per scan that did not.
type Result struct {
	Candidates []models.CandidateExclusion
	Failures   []models.ScanFailure
	Elapsed    map[string]time.Duration
}

// Detect runs the darkness and silence scans concurrently. A failing scan is
// recorded and never stops the other one.
func (d *Detector) Detect(ctx context.Context, frames media.FrameSource, audio media.AudioSource) *Result {
	res := &Result{Elapsed: make(map[string]time.Duration, 2)}
	var mu sync.Mutex

	record := func(scan string, started time.Time, found []models.CandidateExclusion, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.Elapsed[scan] = time.Since(started)
		if err != nil {
			res.Failures = append(res.Failures, models.ScanFailure{
				Scan:    scan,
				Code:    string(apperrors.CodeOf(err)),
				Message: err.Error(),
			})
			return
		}
		res.Candidates = append(res.Candidates, found...)
	}

	// No group context: one scan failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		started := time.Now()
		found, err := d.ScanDarkness(ctx, frames)
		record(ScanDarknessName, started, found, err)
		return err
	})
	g.Go(func() error {
		started := time.Now()
		found, err := d.ScanSilence(ctx, audio)
		record(ScanSilenceName, started, found, err)
		return err
	})
	if err := g.Wait(); err != nil {
		d.log.Debug().Err(err).Int("failed_scans", len(res.Failures)).Msg("detection finished with scan failures")
	}

	slices.SortStableFunc(res.Candidates, func(a, b models.CandidateExclusion) int {
		return interval.Compare(a.Interval, b.Interval)
	})
	slices.SortFunc(res.Failures, func(a, b models.ScanFailure) int {
		switch {
		case a.Scan < b.Scan:
			return -1
		case a.Scan > b.Scan:
			return 1
		}
		return 0
	})
	return res
}

func mediaReadError(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperrors.Is(err, apperrors.ErrMediaRead) {
		return err
	}
	return apperrors.MediaRead("%s", op).WithCause(err)
}
