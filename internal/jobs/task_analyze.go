package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/metrics"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// JobStore is the subset of the job repository the handler needs.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Save(ctx context.Context, job *models.Job) error
	SavePlan(ctx context.Context, id uuid.UUID, planJSON []byte) error
}

// ErrAborted is the cancellation cause for a job the user stopped. Any other
// cancellation, such as a worker shutting down, returns the job to pending.
var ErrAborted = errors.New("job aborted")

type Runner interface {
	Run(ctx context.Context, job *models.Job) (*models.AnalysisPlan, error)
}

// ──────── Analyze Handler ────────

type AnalyzeHandler struct {
	jobs   JobStore
	runner Runner
	log    zerolog.Logger
}

func NewAnalyzeHandler(jobs JobStore, runner Runner, logger zerolog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{jobs: jobs, runner: runner, log: logger}
}

func (h *AnalyzeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AnalyzePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %v: %w", err, asynq.SkipRetry)
	}
	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		return fmt.Errorf("job id %q: %v: %w", p.JobID, err, asynq.SkipRetry)
	}

	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	_, err = h.Analyze(ctx, job)
	return err
}

// Analyze runs one job to completion and persists every state change. It is
// shared by the queue worker and the one-shot CLI command.
func (h *AnalyzeHandler) Analyze(ctx context.Context, job *models.Job) (*models.AnalysisPlan, error) {
	log := h.log.With().Str("job_id", job.ID.String()).Str("file", job.FilePath).Logger()
	if job.Status == models.JobCompleted || job.Status == models.JobCancelled {
		log.Info().Str("status", string(job.Status)).Msg("job already finished, skipping")
		return nil, nil
	}

	job.MarkRunning()
	if err := h.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	started := time.Now()
	plan, err := h.runner.Run(ctx, job)
	if err != nil {
		return nil, h.fail(ctx, log, job, err)
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return nil, h.fail(ctx, log, job, apperrors.Internal("encode plan", err))
	}
	if err := h.jobs.SavePlan(ctx, job.ID, data); err != nil {
		return nil, err
	}
	job.MarkCompleted(plan.FailureDetail())
	if err := h.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(models.JobCompleted)).Inc()
	log.Info().
		Dur("elapsed", time.Since(started)).
		Int("exclusions", len(plan.Timeline.Entries)).
		Int("keep_segments", len(plan.Keep)).
		Msg("job completed")
	return plan, nil
}

// fail records err on the job. A user abort leaves the job cancelled and any
// other cancellation returns it to pending; errors that cannot succeed on
// retry are wrapped with asynq.SkipRetry.
func (h *AnalyzeHandler) fail(ctx context.Context, log zerolog.Logger, job *models.Job, runErr error) error {
	// ctx may already be done; the final state still has to be written.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		if !errors.Is(context.Cause(ctx), ErrAborted) {
			job.MarkRequeued()
			if err := h.jobs.Save(saveCtx, job); err != nil {
				log.Error().Err(err).Msg("saving interrupted job")
			}
			log.Info().Msg("job interrupted, returned to pending")
			return runErr
		}
		job.MarkCancelled()
		if err := h.jobs.Save(saveCtx, job); err != nil {
			log.Error().Err(err).Msg("saving cancelled job")
		}
		metrics.JobsProcessedTotal.WithLabelValues(string(models.JobCancelled)).Inc()
		log.Info().Msg("job cancelled")
		return runErr
	}

	code := apperrors.CodeOf(runErr)
	job.MarkFailed(fmt.Sprintf("%s: %s", code, runErr.Error()), failureDetail(runErr))
	if err := h.jobs.Save(saveCtx, job); err != nil {
		log.Error().Err(err).Msg("saving failed job")
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(models.JobFailed)).Inc()
	log.Error().Err(runErr).Str("code", string(code)).Msg("job failed")

	if code == apperrors.CodeConfiguration || code == apperrors.CodeMediaRead {
		return fmt.Errorf("%w: %w", runErr, asynq.SkipRetry)
	}
	return runErr
}

// failureDetail returns the per-scan failures carried by err, if any.
func failureDetail(err error) string {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return ""
	}
	failures, _ := appErr.Details.([]models.ScanFailure)
	return models.JoinScanFailures(failures)
}
