package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/cinescript/internal/models"
)

type fakeCreator struct {
	latest  map[string]*models.Job
	created []*models.Job
}

func (f *fakeCreator) Create(_ context.Context, job *models.Job) error {
	f.created = append(f.created, job)
	f.latest[job.FilePath] = job
	return nil
}

func (f *fakeCreator) GetLatestByFilePath(_ context.Context, path string) (*models.Job, error) {
	return f.latest[path], nil
}

type fakeEnqueuer struct {
	ids     []uuid.UUID
	origins []string
	err     error
}

func (f *fakeEnqueuer) EnqueueAnalyze(_ context.Context, id uuid.UUID, origin string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	f.origins = append(f.origins, origin)
	return nil
}

func TestIntake_Submit(t *testing.T) {
	ctx := context.Background()
	creator := &fakeCreator{latest: map[string]*models.Job{}}
	queue := &fakeEnqueuer{}
	in := NewIntake(creator, queue, zerolog.Nop())

	job, created, err := in.Submit(ctx, "/videos/a.mkv", OriginWatcher, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, []uuid.UUID{job.ID}, queue.ids)
	assert.Equal(t, []string{OriginWatcher}, queue.origins)

	again, created, err := in.Submit(ctx, "/videos/a.mkv", OriginWatcher, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, again.ID)
	assert.Len(t, creator.created, 1)

	forced, created, err := in.Submit(ctx, "/videos/a.mkv", OriginCLI, true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, job.ID, forced.ID)
}

func TestIntake_ResubmitsFailedJobs(t *testing.T) {
	failed := models.NewJob("/videos/b.mkv")
	failed.MarkFailed("decode error", "")
	creator := &fakeCreator{latest: map[string]*models.Job{failed.FilePath: failed}}
	in := NewIntake(creator, &fakeEnqueuer{}, zerolog.Nop())

	job, created, err := in.Submit(context.Background(), failed.FilePath, OriginSweep, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, failed.ID, job.ID)
}

func TestIntake_EnqueueFailureLeavesJobPending(t *testing.T) {
	creator := &fakeCreator{latest: map[string]*models.Job{}}
	in := NewIntake(creator, &fakeEnqueuer{err: errors.New("redis down")}, zerolog.Nop())

	job, created, err := in.Submit(context.Background(), "/videos/c.mkv", OriginCLI, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Len(t, creator.created, 1)
}
