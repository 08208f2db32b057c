package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JustinTDCT/cinescript/internal/models"
)

type Enqueuer interface {
	EnqueueAnalyze(ctx context.Context, jobID uuid.UUID, origin string) error
}

type JobCreator interface {
	Create(ctx context.Context, job *models.Job) error
	GetLatestByFilePath(ctx context.Context, path string) (*models.Job, error)
}

// Intake turns file paths into queued analysis jobs.
type Intake struct {
	jobs  JobCreator
	queue Enqueuer
	log   zerolog.Logger
}

func NewIntake(jobs JobCreator, queue Enqueuer, logger zerolog.Logger) *Intake {
	return &Intake{jobs: jobs, queue: queue, log: logger}
}

// Submit creates a pending job for path and enqueues it. A file whose latest
// job is pending, running or completed is not submitted again unless force is
// set; the existing job is returned instead.
func (i *Intake) Submit(ctx context.Context, path, origin string, force bool) (*models.Job, bool, error) {
	existing, err := i.jobs.GetLatestByFilePath(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !force {
		switch existing.Status {
		case models.JobPending, models.JobRunning, models.JobCompleted:
			i.log.Debug().Str("file", path).Str("job_id", existing.ID.String()).
				Str("status", string(existing.Status)).Msg("file already has a job")
			return existing, false, nil
		}
	}

	job := models.NewJob(path)
	if err := i.jobs.Create(ctx, job); err != nil {
		return nil, false, err
	}
	// A pending job whose enqueue failed is picked up by the next sweep.
	if err := i.queue.EnqueueAnalyze(ctx, job.ID, origin); err != nil {
		i.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("enqueue failed, leaving job pending")
		return job, true, nil
	}
	i.log.Info().Str("file", path).Str("job_id", job.ID.String()).Str("origin", origin).Msg("job submitted")
	return job, true, nil
}
