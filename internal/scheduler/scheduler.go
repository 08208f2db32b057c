// Package scheduler periodically re-enqueues jobs that are still pending,
// covering enqueues lost to a Redis outage or a restart, and jobs left running
// by a worker that died.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/jobs"
	"github.com/JustinTDCT/cinescript/internal/models"
)

const sweepBatch = 500

type PendingLister interface {
	ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)
}

// Scheduler runs the pending-job sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	lister  PendingLister
	queue   jobs.Enqueuer
	limiter *rate.Limiter
	log     zerolog.Logger
	cancel  context.CancelFunc

	staleAfter time.Duration
	now        func() time.Time
}

type Option func(*Scheduler)

// WithStaleAfter also re-enqueues running jobs whose last update is older
// than d. A job still held by a live worker is left alone by the queue's
// unique task ID.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Scheduler) { s.staleAfter = d }
}

// New validates schedule (standard cron or a descriptor such as "@every 5m")
// and limits the sweep to perSecond enqueues.
func New(schedule string, perSecond float64, pending PendingLister, queue jobs.Enqueuer, logger zerolog.Logger, opts ...Option) (*Scheduler, error) {
	if perSecond <= 0 {
		return nil, apperrors.Configuration("sweep rate must be positive, got %g", perSecond)
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		lister:  pending,
		queue:   queue,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		log:     logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("pending sweep failed")
		}
	}); err != nil {
		cancel()
		return nil, apperrors.Configuration("invalid sweep schedule %q", schedule).WithCause(err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("pending-job sweep started")
}

// Stop cancels a running sweep and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("pending-job sweep stopped")
}

// Sweep enqueues every pending job, plus stale running jobs when enabled, and
// returns how many were enqueued.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.lister.ListByStatus(ctx, models.JobPending, sweepBatch)
	if err != nil {
		return 0, err
	}
	pending := len(due)
	if s.staleAfter > 0 {
		stale, err := s.staleRunning(ctx)
		if err != nil {
			return 0, err
		}
		due = append(due, stale...)
	}

	enqueued := 0
	for _, job := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return enqueued, err
		}
		if err := s.queue.EnqueueAnalyze(ctx, job.ID, jobs.OriginSweep); err != nil {
			s.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("sweep enqueue failed")
			continue
		}
		enqueued++
	}
	if len(due) > 0 {
		s.log.Info().
			Int("pending", pending).
			Int("stale", len(due)-pending).
			Int("enqueued", enqueued).
			Msg("pending sweep finished")
	}
	return enqueued, nil
}

func (s *Scheduler) staleRunning(ctx context.Context) ([]*models.Job, error) {
	running, err := s.lister.ListByStatus(ctx, models.JobRunning, sweepBatch)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.staleAfter)
	var stale []*models.Job
	for _, job := range running {
		if job.UpdatedAt.Before(cutoff) {
			stale = append(stale, job)
		}
	}
	return stale, nil
}
