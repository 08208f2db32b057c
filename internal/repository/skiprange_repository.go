package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JustinTDCT/cinescript/internal/db"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

type SkipRangeRepository struct {
	db *db.DB
	q  db.Querier
}

func NewSkipRangeRepository(d *db.DB) *SkipRangeRepository {
	return &SkipRangeRepository{db: d, q: d.DB}
}

// InJobTx runs fn in a transaction holding the job's write lock. The
// repository passed to fn is bound to that transaction.
func (r *SkipRangeRepository) InJobTx(ctx context.Context, jobID uuid.UUID, fn func(tx *SkipRangeRepository) error) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if r.db.Dialect == db.Postgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(jobID)); err != nil {
				return fmt.Errorf("lock job %s: %w", jobID, err)
			}
		}
		return fn(&SkipRangeRepository{db: r.db, q: tx})
	})
}

// lockKey folds a job id into the bigint keyspace of advisory locks.
func lockKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
}

const skipRangeColumns = `id, job_id, start_seconds, end_seconds, reason, created_at, updated_at`

func scanSkipRange(row interface{ Scan(...any) error }) (*models.SkipRange, error) {
	sr := &models.SkipRange{}
	var reason sql.NullString
	if err := row.Scan(&sr.ID, &sr.JobID, &sr.Interval.Start, &sr.Interval.End,
		&reason, &sr.CreatedAt, &sr.UpdatedAt); err != nil {
		return nil, err
	}
	if reason.Valid {
		sr.Reason = &reason.String
	}
	return sr, nil
}

// JobExists reports whether the job row is present.
func (r *SkipRangeRepository) JobExists(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx, r.db.Rebind(`SELECT 1 FROM jobs WHERE id = $1`), jobID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check job %s: %w", jobID, err)
	}
	return true, nil
}

// GetByID returns a NOT_FOUND error when no range has the id.
func (r *SkipRangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SkipRange, error) {
	query := `SELECT ` + skipRangeColumns + ` FROM skip_ranges WHERE id = $1`
	sr, err := scanSkipRange(r.q.QueryRowContext(ctx, r.db.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("skip range %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get skip range %s: %w", id, err)
	}
	return sr, nil
}

// ListByJob returns a job's ranges ordered by start, then end.
func (r *SkipRangeRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.SkipRange, error) {
	query := `SELECT ` + skipRangeColumns + `
		FROM skip_ranges
		WHERE job_id = $1
		ORDER BY start_seconds, end_seconds`
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), jobID)
	if err != nil {
		return nil, fmt.Errorf("list skip ranges for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var ranges []*models.SkipRange
	for rows.Next() {
		sr, err := scanSkipRange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skip range: %w", err)
		}
		ranges = append(ranges, sr)
	}
	return ranges, rows.Err()
}

// FindOverlapping returns the first range of the job that overlaps iv,
// ignoring excludeID, or nil.
func (r *SkipRangeRepository) FindOverlapping(ctx context.Context, jobID uuid.UUID, iv models.TimeInterval, excludeID uuid.UUID) (*models.SkipRange, error) {
	query := `SELECT ` + skipRangeColumns + `
		FROM skip_ranges
		WHERE job_id = $1 AND id <> $2
		  AND start_seconds < $3 AND end_seconds > $4
		ORDER BY start_seconds, end_seconds
		LIMIT 1`
	sr, err := scanSkipRange(r.q.QueryRowContext(ctx, r.db.Rebind(query), jobID, excludeID, iv.End, iv.Start))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find overlapping skip range: %w", err)
	}
	return sr, nil
}

func (r *SkipRangeRepository) Insert(ctx context.Context, sr *models.SkipRange) error {
	if sr.ID == uuid.Nil {
		sr.ID = uuid.New()
	}
	now := time.Now().UTC()
	sr.CreatedAt, sr.UpdatedAt = now, now

	query := `INSERT INTO skip_ranges (` + skipRangeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query), sr.ID, sr.JobID,
		sr.Interval.Start, sr.Interval.End, sr.Reason, sr.CreatedAt, sr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert skip range: %w", err)
	}
	return nil
}

func (r *SkipRangeRepository) Update(ctx context.Context, sr *models.SkipRange) error {
	sr.UpdatedAt = time.Now().UTC()
	query := `UPDATE skip_ranges
		SET start_seconds = $1, end_seconds = $2, reason = $3, updated_at = $4
		WHERE id = $5`
	res, err := r.q.ExecContext(ctx, r.db.Rebind(query),
		sr.Interval.Start, sr.Interval.End, sr.Reason, sr.UpdatedAt, sr.ID)
	if err != nil {
		return fmt.Errorf("update skip range %s: %w", sr.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("skip range %s not found", sr.ID)
	}
	return nil
}

// Delete reports whether a row was removed.
func (r *SkipRangeRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM skip_ranges WHERE id = $1`), id)
	if err != nil {
		return false, fmt.Errorf("delete skip range %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByJob removes every range of the job and returns how many went.
func (r *SkipRangeRepository) DeleteByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM skip_ranges WHERE job_id = $1`), jobID)
	if err != nil {
		return 0, fmt.Errorf("clear skip ranges for job %s: %w", jobID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TotalDuration sums end-start over the job's ranges.
func (r *SkipRangeRepository) TotalDuration(ctx context.Context, jobID uuid.UUID) (float64, error) {
	var total sql.NullFloat64
	err := r.q.QueryRowContext(ctx,
		r.db.Rebind(`SELECT SUM(end_seconds - start_seconds) FROM skip_ranges WHERE job_id = $1`), jobID).
		Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum skip ranges for job %s: %w", jobID, err)
	}
	return total.Float64, nil
}
