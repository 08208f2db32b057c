package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JustinTDCT/cinescript/internal/db"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

type JobRepository struct {
	db *db.DB
}

func NewJobRepository(d *db.DB) *JobRepository {
	return &JobRepository{db: d}
}

const jobColumns = `id, file_path, status, progress, error_message, failure_detail,
	created_at, started_at, completed_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	job := &models.Job{}
	var errMsg, detail sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(&job.ID, &job.FilePath, &job.Status, &job.Progress, &errMsg, &detail,
		&job.CreatedAt, &started, &completed, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if detail.Valid {
		job.FailureDetail = &detail.String
	}
	if started.Valid {
		job.StartedAt = &started.Time
	}
	if completed.Valid {
		job.CompletedAt = &completed.Time
	}
	return job, nil
}

func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (id, file_path, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		job.ID, job.FilePath, job.Status, job.Progress, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Save persists the job's status fields after a Mark* transition.
func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	query := `UPDATE jobs SET status = $1, progress = $2, error_message = $3, failure_detail = $4,
		started_at = $5, completed_at = $6, updated_at = $7
		WHERE id = $8`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), job.Status, job.Progress,
		job.ErrorMessage, job.FailureDetail, job.StartedAt, job.CompletedAt, job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("job %s not found", job.ID)
	}
	return nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE jobs SET progress = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`), progress, id)
	if err != nil {
		return fmt.Errorf("update job %s progress: %w", id, err)
	}
	return nil
}

// SavePlan stores a JSON snapshot of the job's last analysis.
func (r *JobRepository) SavePlan(ctx context.Context, id uuid.UUID, planJSON []byte) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE jobs SET plan_json = $1 WHERE id = $2`), string(planJSON), id)
	if err != nil {
		return fmt.Errorf("save plan for job %s: %w", id, err)
	}
	return nil
}

// GetPlan returns the stored plan snapshot, or nil if none was saved.
func (r *JobRepository) GetPlan(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var plan sql.NullString
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT plan_json FROM jobs WHERE id = $1`), id).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan for job %s: %w", id, err)
	}
	if !plan.Valid {
		return nil, nil
	}
	return []byte(plan.String), nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, r.db.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// GetLatestByFilePath returns the newest job for the file, or nil.
func (r *JobRepository) GetLatestByFilePath(ctx context.Context, path string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE file_path = $1 ORDER BY created_at DESC LIMIT 1`
	job, err := scanJob(r.db.QueryRowContext(ctx, r.db.Rebind(query), path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job for %s: %w", path, err)
	}
	return job, nil
}

func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

// ListByStatus returns the oldest jobs in the given status first.
func (r *JobRepository) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at LIMIT $2`
	return r.list(ctx, query, status, limit)
}

func (r *JobRepository) list(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete removes the job; its skip ranges go with it.
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM jobs WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("job %s not found", id)
	}
	return nil
}
