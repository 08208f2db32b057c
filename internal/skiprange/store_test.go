package skiprange

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/cinescript/internal/db"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
	"github.com/JustinTDCT/cinescript/internal/repository"
)

type fixture struct {
	store *Store
	jobs  *repository.JobRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	d, err := db.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "skip.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(ctx))

	return &fixture{
		store: NewStore(repository.NewSkipRangeRepository(d), zerolog.Nop()),
		jobs:  repository.NewJobRepository(d),
	}
}

func (f *fixture) job(t *testing.T) uuid.UUID {
	t.Helper()
	job := models.NewJob("/videos/episode.mkv")
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job.ID
}

func iv(start, end float64) models.TimeInterval {
	return models.TimeInterval{Start: start, End: end}
}

func ptr(s string) *string { return &s }

func TestAdd_ValidatesInterval(t *testing.T) {
	f := setup(t)
	jobID := f.job(t)

	tests := []struct {
		name string
		in   models.TimeInterval
	}{
		{"negative start", iv(-1, 5)},
		{"empty", iv(5, 5)},
		{"reversed", iv(10, 5)},
		{"nan", iv(math.NaN(), 5)},
		{"infinite end", iv(0, math.Inf(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Add(context.Background(), jobID, tt.in, nil)
			assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
		})
	}

	_, err := f.store.Add(context.Background(), jobID, iv(0, 5), ptr(strings.Repeat("x", 101)))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)

	sr, err := f.store.Add(context.Background(), jobID, iv(0, 5), ptr(strings.Repeat("é", 100)))
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(*sr.Reason)))
}

func TestAdd_OverlapAndAdjacency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	jobID := f.job(t)

	first, err := f.store.Add(ctx, jobID, iv(10, 20), ptr("intro"))
	require.NoError(t, err)

	_, err = f.store.Add(ctx, jobID, iv(15, 25), nil)
	require.ErrorIs(t, err, apperrors.ErrOverlap)
	assert.Contains(t, err.Error(), first.ID.String())

	var domainErr *apperrors.Error
	require.ErrorAs(t, err, &domainErr)
	conflict, ok := domainErr.Details.(*models.SkipRange)
	require.True(t, ok)
	assert.Equal(t, first.ID, conflict.ID)

	_, err = f.store.Add(ctx, jobID, iv(20, 30), nil)
	assert.NoError(t, err, "touching ranges are allowed")
	_, err = f.store.Add(ctx, jobID, iv(0, 10), nil)
	assert.NoError(t, err)

	list, err := f.store.List(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 0.0, list[0].Interval.Start)
	assert.Equal(t, 10.0, list[1].Interval.Start)
	assert.Equal(t, 20.0, list[2].Interval.Start)
}

func TestAdd_SameIntervalDifferentJobs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Add(ctx, f.job(t), iv(10, 20), nil)
	require.NoError(t, err)
	_, err = f.store.Add(ctx, f.job(t), iv(10, 20), nil)
	assert.NoError(t, err)
}

func TestAdd_UnknownJob(t *testing.T) {
	f := setup(t)

	_, err := f.store.Add(context.Background(), uuid.New(), iv(0, 1), nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAdd_ConcurrentOverlappingWrites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	jobID := f.job(t)

	const writers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		overlaps int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.store.Add(ctx, jobID, iv(float64(i)*0.1, 10+float64(i)*0.1), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperrors.Is(err, apperrors.ErrOverlap):
				overlaps++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, overlaps)

	list, err := f.store.List(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Zero(t, f.store.locks.size(), "job locks are released")
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	jobID := f.job(t)

	a, err := f.store.Add(ctx, jobID, iv(0, 10), ptr("cold open"))
	require.NoError(t, err)
	b, err := f.store.Add(ctx, jobID, iv(20, 30), nil)
	require.NoError(t, err)

	t.Run("overlapping itself is allowed", func(t *testing.T) {
		got, err := f.store.Update(ctx, a.ID, &models.TimeInterval{Start: 2, End: 12}, nil)
		require.NoError(t, err)
		assert.Equal(t, iv(2, 12), got.Interval)
		require.NotNil(t, got.Reason)
		assert.Equal(t, "cold open", *got.Reason)
	})

	t.Run("overlapping another range is rejected", func(t *testing.T) {
		_, err := f.store.Update(ctx, a.ID, &models.TimeInterval{Start: 5, End: 21}, nil)
		assert.ErrorIs(t, err, apperrors.ErrOverlap)

		got, err := f.store.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, iv(2, 12), got.Interval, "failed update leaves the range unchanged")
	})

	t.Run("reason only", func(t *testing.T) {
		got, err := f.store.Update(ctx, b.ID, nil, ptr("recap"))
		require.NoError(t, err)
		assert.Equal(t, iv(20, 30), got.Interval)
		require.NotNil(t, got.Reason)
		assert.Equal(t, "recap", *got.Reason)

		got, err = f.store.Update(ctx, b.ID, nil, ptr(""))
		require.NoError(t, err)
		assert.Nil(t, got.Reason)
	})

	t.Run("invalid interval", func(t *testing.T) {
		_, err := f.store.Update(ctx, b.ID, &models.TimeInterval{Start: 30, End: 20}, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := f.store.Update(ctx, uuid.New(), &models.TimeInterval{Start: 40, End: 50}, nil)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestDeleteGetTotalClear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	jobID := f.job(t)

	a, err := f.store.Add(ctx, jobID, iv(0, 10), nil)
	require.NoError(t, err)
	_, err = f.store.Add(ctx, jobID, iv(20, 25.5), nil)
	require.NoError(t, err)

	total, err := f.store.TotalDuration(ctx, jobID)
	require.NoError(t, err)
	assert.InDelta(t, 15.5, total, 1e-9)

	removed, err := f.store.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = f.store.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	n, err := f.store.Clear(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err = f.store.TotalDuration(ctx, jobID)
	require.NoError(t, err)
	assert.Zero(t, total)

	list, err := f.store.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, list)
}
