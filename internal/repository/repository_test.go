package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/cinescript/internal/db"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// forEachDialect runs fn against SQLite, and against Postgres when
// CINESCRIPT_TEST_POSTGRES_URL is set outside -short mode.
func forEachDialect(t *testing.T, fn func(t *testing.T, d *db.DB)) {
	t.Run("sqlite", func(t *testing.T) {
		ctx := context.Background()
		d, err := db.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "repo.db"))
		require.NoError(t, err)
		t.Cleanup(func() { d.Close() })
		require.NoError(t, d.Migrate(ctx))
		fn(t, d)
	})
	t.Run("postgres", func(t *testing.T) {
		url := os.Getenv("CINESCRIPT_TEST_POSTGRES_URL")
		if testing.Short() || url == "" {
			t.Skip("set CINESCRIPT_TEST_POSTGRES_URL to run postgres repository tests")
		}
		ctx := context.Background()
		d, err := db.Open(ctx, "postgres", url)
		require.NoError(t, err)
		t.Cleanup(func() { d.Close() })
		require.NoError(t, d.Migrate(ctx))
		fn(t, d)
	})
}

func createJob(t *testing.T, d *db.DB) *models.Job {
	t.Helper()
	job := models.NewJob("/videos/" + uuid.NewString() + ".mp4")
	require.NoError(t, NewJobRepository(d).Create(context.Background(), job))
	t.Cleanup(func() { _ = NewJobRepository(d).Delete(context.Background(), job.ID) })
	return job
}

func TestJobRepository_Lifecycle(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewJobRepository(d)
		job := createJob(t, d)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.FilePath, got.FilePath)
		assert.Equal(t, models.JobPending, got.Status)
		assert.Nil(t, got.StartedAt)

		job.MarkRunning()
		require.NoError(t, repo.Save(ctx, job))
		require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40))
		job.MarkFailed("probe failed", "darkness: decode frame 3")
		require.NoError(t, repo.Save(ctx, job))

		got, err = repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "probe failed", *got.ErrorMessage)
		require.NotNil(t, got.FailureDetail)
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.CompletedAt)

		latest, err := repo.GetLatestByFilePath(ctx, job.FilePath)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, job.ID, latest.ID)

		failed, err := repo.ListByStatus(ctx, models.JobFailed, 100)
		require.NoError(t, err)
		assert.NotEmpty(t, failed)
	})
}

func TestJobRepository_NotFound(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewJobRepository(d)

		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		job := models.NewJob("/nowhere.mp4")
		assert.ErrorIs(t, repo.Save(ctx, job), apperrors.ErrNotFound)

		none, err := repo.GetLatestByFilePath(ctx, "/nowhere.mp4")
		require.NoError(t, err)
		assert.Nil(t, none)
	})
}

func TestJobRepository_Plan(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewJobRepository(d)
		job := createJob(t, d)

		plan, err := repo.GetPlan(ctx, job.ID)
		require.NoError(t, err)
		assert.Nil(t, plan)

		require.NoError(t, repo.SavePlan(ctx, job.ID, []byte(`{"duration_seconds": 75}`)))
		plan, err = repo.GetPlan(ctx, job.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"duration_seconds": 75}`, string(plan))
	})
}

func TestSkipRangeRepository_CRUD(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewSkipRangeRepository(d)
		job := createJob(t, d)

		ok, err := repo.JobExists(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.JobExists(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)

		reason := "sponsor read"
		late := &models.SkipRange{JobID: job.ID, Interval: models.TimeInterval{Start: 40, End: 50}}
		early := &models.SkipRange{JobID: job.ID, Interval: models.TimeInterval{Start: 0, End: 12.5}, Reason: &reason}
		require.NoError(t, repo.Insert(ctx, late))
		require.NoError(t, repo.Insert(ctx, early))

		list, err := repo.ListByJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, early.ID, list[0].ID)
		require.NotNil(t, list[0].Reason)
		assert.Equal(t, "sponsor read", *list[0].Reason)
		assert.Nil(t, list[1].Reason)

		total, err := repo.TotalDuration(ctx, job.ID)
		require.NoError(t, err)
		assert.InDelta(t, 22.5, total, 1e-9)

		hit, err := repo.FindOverlapping(ctx, job.ID, models.TimeInterval{Start: 45, End: 60}, uuid.Nil)
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, late.ID, hit.ID)

		hit, err = repo.FindOverlapping(ctx, job.ID, models.TimeInterval{Start: 50, End: 60}, uuid.Nil)
		require.NoError(t, err)
		assert.Nil(t, hit, "touching ranges do not overlap")

		hit, err = repo.FindOverlapping(ctx, job.ID, models.TimeInterval{Start: 41, End: 42}, late.ID)
		require.NoError(t, err)
		assert.Nil(t, hit)

		late.Interval.End = 55
		require.NoError(t, repo.Update(ctx, late))
		got, err := repo.GetByID(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, 55.0, got.Interval.End)

		removed, err := repo.Delete(ctx, late.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = repo.Delete(ctx, late.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = repo.GetByID(ctx, late.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestSkipRangeRepository_CascadeAndClear(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewSkipRangeRepository(d)
		jobs := NewJobRepository(d)
		job := createJob(t, d)

		for i := 0; i < 3; i++ {
			sr := &models.SkipRange{JobID: job.ID, Interval: models.TimeInterval{Start: float64(i * 10), End: float64(i*10 + 5)}}
			require.NoError(t, repo.Insert(ctx, sr))
		}

		err := repo.InJobTx(ctx, job.ID, func(tx *SkipRangeRepository) error {
			n, err := tx.DeleteByJob(ctx, job.ID)
			assert.Equal(t, 3, n)
			return err
		})
		require.NoError(t, err)

		sr := &models.SkipRange{JobID: job.ID, Interval: models.TimeInterval{Start: 1, End: 2}}
		require.NoError(t, repo.Insert(ctx, sr))
		require.NoError(t, jobs.Delete(ctx, job.ID))

		_, err = repo.GetByID(ctx, sr.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound, "ranges are removed with their job")
	})
}

func TestSkipRangeRepository_InJobTxRollsBack(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewSkipRangeRepository(d)
		job := createJob(t, d)

		err := repo.InJobTx(ctx, job.ID, func(tx *SkipRangeRepository) error {
			sr := &models.SkipRange{JobID: job.ID, Interval: models.TimeInterval{Start: 1, End: 2}}
			require.NoError(t, tx.Insert(ctx, sr))
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		list, err := repo.ListByJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestSettingsRepository(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d *db.DB) {
		ctx := context.Background()
		repo := NewSettingsRepository(d)
		t.Cleanup(func() {
			_ = repo.Delete(ctx, "scene_threshold")
			_ = repo.Delete(ctx, "chunk_duration_seconds")
		})

		v, err := repo.Get(ctx, "scene_threshold")
		require.NoError(t, err)
		assert.Empty(t, v)

		require.NoError(t, repo.Set(ctx, "scene_threshold", "0.4"))
		require.NoError(t, repo.Set(ctx, "scene_threshold", "0.45"))
		require.NoError(t, repo.Set(ctx, "chunk_duration_seconds", "45"))

		v, err = repo.Get(ctx, "scene_threshold")
		require.NoError(t, err)
		assert.Equal(t, "0.45", v)

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, "45", all["chunk_duration_seconds"])

		require.NoError(t, repo.Delete(ctx, "scene_threshold"))
		v, err = repo.Get(ctx, "scene_threshold")
		require.NoError(t, err)
		assert.Empty(t, v)
	})
}
