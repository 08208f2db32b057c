// Package skiprange manages user-declared skip ranges for a job. Every write
// for a job is serialized so overlap validation and the write it guards are
// atomic.
package skiprange

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
	"github.com/JustinTDCT/cinescript/internal/repository"
)

// MaxReasonLength is the longest reason accepted, in characters.
const MaxReasonLength = 100

var validate = validator.New()

type Store struct {
	ranges *repository.SkipRangeRepository
	locks  *jobLocks
	log    zerolog.Logger
}

func NewStore(ranges *repository.SkipRangeRepository, logger zerolog.Logger) *Store {
	return &Store{
		ranges: ranges,
		locks:  newJobLocks(),
		log:    logger.With().Str("component", "skiprange").Logger(),
	}
}

// ValidateInterval rejects non-finite, negative or empty ranges.
func ValidateInterval(iv models.TimeInterval) error {
	if math.IsNaN(iv.Start) || math.IsNaN(iv.End) || math.IsInf(iv.Start, 0) || math.IsInf(iv.End, 0) {
		return apperrors.InvalidRange("range bounds must be finite, got %v", iv)
	}
	if iv.Start < 0 {
		return apperrors.InvalidRange("start %g must not be negative", iv.Start)
	}
	if iv.Start >= iv.End {
		return apperrors.InvalidRange("start %g must be before end %g", iv.Start, iv.End)
	}
	return nil
}

// ValidateReason enforces the reason length limit.
func ValidateReason(reason *string) error {
	if reason == nil {
		return nil
	}
	if err := validate.Var(*reason, "max=100"); err != nil {
		return apperrors.InvalidRange("reason must be at most %d characters", MaxReasonLength)
	}
	return nil
}

func overlapError(iv models.TimeInterval, conflict *models.SkipRange) error {
	return apperrors.Overlap("range %v overlaps existing range %v (%s)", iv, conflict.Interval, conflict.ID).
		WithDetails(conflict)
}

// Add stores a new range for the job.
func (s *Store) Add(ctx context.Context, jobID uuid.UUID, iv models.TimeInterval, reason *string) (*models.SkipRange, error) {
	if err := ValidateInterval(iv); err != nil {
		return nil, err
	}
	if err := ValidateReason(reason); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(jobID)
	defer unlock()

	sr := &models.SkipRange{JobID: jobID, Interval: iv, Reason: normalizeReason(reason)}
	err := s.ranges.InJobTx(ctx, jobID, func(tx *repository.SkipRangeRepository) error {
		exists, err := tx.JobExists(ctx, jobID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("job %s not found", jobID)
		}
		conflict, err := tx.FindOverlapping(ctx, jobID, iv, uuid.Nil)
		if err != nil {
			return err
		}
		if conflict != nil {
			return overlapError(iv, conflict)
		}
		return tx.Insert(ctx, sr)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("job_id", jobID.String()).Str("range_id", sr.ID.String()).
		Float64("start", iv.Start).Float64("end", iv.End).Msg("skip range added")
	return sr, nil
}

// Update changes the interval, the reason, or both. Only the supplied fields
// are validated; an empty reason clears it.
func (s *Store) Update(ctx context.Context, id uuid.UUID, iv *models.TimeInterval, reason *string) (*models.SkipRange, error) {
	if iv != nil {
		if err := ValidateInterval(*iv); err != nil {
			return nil, err
		}
	}
	if err := ValidateReason(reason); err != nil {
		return nil, err
	}

	current, err := s.ranges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(current.JobID)
	defer unlock()

	var updated *models.SkipRange
	err = s.ranges.InJobTx(ctx, current.JobID, func(tx *repository.SkipRangeRepository) error {
		sr, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if iv != nil {
			conflict, err := tx.FindOverlapping(ctx, sr.JobID, *iv, sr.ID)
			if err != nil {
				return err
			}
			if conflict != nil {
				return overlapError(*iv, conflict)
			}
			sr.Interval = *iv
		}
		if reason != nil {
			sr.Reason = normalizeReason(reason)
		}
		if err := tx.Update(ctx, sr); err != nil {
			return err
		}
		updated = sr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("job_id", updated.JobID.String()).Str("range_id", id.String()).
		Float64("start", updated.Interval.Start).Float64("end", updated.Interval.End).Msg("skip range updated")
	return updated, nil
}

// Delete reports whether a range was removed.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	removed, err := s.ranges.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info().Str("range_id", id.String()).Msg("skip range deleted")
	}
	return removed, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.SkipRange, error) {
	return s.ranges.GetByID(ctx, id)
}

// List returns the job's ranges ordered by start.
func (s *Store) List(ctx context.Context, jobID uuid.UUID) ([]*models.SkipRange, error) {
	return s.ranges.ListByJob(ctx, jobID)
}

// TotalDuration sums the lengths of the job's ranges.
func (s *Store) TotalDuration(ctx context.Context, jobID uuid.UUID) (float64, error) {
	return s.ranges.TotalDuration(ctx, jobID)
}

// Clear removes all ranges of the job and returns how many were removed.
func (s *Store) Clear(ctx context.Context, jobID uuid.UUID) (int, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	var n int
	err := s.ranges.InJobTx(ctx, jobID, func(tx *repository.SkipRangeRepository) error {
		var err error
		n, err = tx.DeleteByJob(ctx, jobID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("job_id", jobID.String()).Int("removed", n).Msg("skip ranges cleared")
	return n, nil
}

func normalizeReason(reason *string) *string {
	if reason == nil || *reason == "" {
		return nil
	}
	r := *reason
	return &r
}
