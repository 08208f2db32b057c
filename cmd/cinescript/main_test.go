package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/cinescript/internal/db"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
	"github.com/JustinTDCT/cinescript/internal/repository"
)

// seedJob creates a SQLite database with one job and points the CLI at it.
func seedJob(t *testing.T) *models.Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cinescript.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("CINESCRIPT_CONFIG", "")

	ctx := context.Background()
	d, err := db.Open(ctx, "sqlite", path)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate(ctx))

	job := models.NewJob("/videos/movie.mkv")
	require.NoError(t, repository.NewJobRepository(d).Create(ctx, job))
	return job
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	resetFlags(rootCmd)
	app = nil
	err := rootCmd.ExecuteContext(context.Background())
	if app != nil {
		_ = app.db.Close()
	}
	return out.String(), err
}

// resetFlags undoes flag values and Changed marks left by a previous run.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestSkipCommands(t *testing.T) {
	job := seedJob(t)
	jobID := job.ID.String()

	out, err := run(t, "skip", "add", jobID, "10", "20", "--reason", "opening credits")
	require.NoError(t, err)
	rangeID := strings.TrimSpace(out)
	require.NotEmpty(t, rangeID)

	_, err = run(t, "skip", "add", jobID, "15", "25")
	assert.ErrorIs(t, err, apperrors.ErrOverlap)

	_, err = run(t, "skip", "add", jobID, "30", "30")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)

	_, err = run(t, "skip", "add", jobID, "20", "25")
	require.NoError(t, err, "adjacent ranges do not overlap")

	out, err = run(t, "skip", "total", jobID)
	require.NoError(t, err)
	assert.Equal(t, "15.000\n", out)

	out, err = run(t, "skip", "list", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "opening credits")
	assert.Less(t, strings.Index(out, "10.000"), strings.Index(out, "20.000\t25.000"))

	out, err = run(t, "skip", "update", rangeID, "--start", "5", "--end", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "5.000\t12.000")

	_, err = run(t, "skip", "update", rangeID, "--start", "5")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)

	_, err = run(t, "skip", "delete", rangeID)
	require.NoError(t, err)
	_, err = run(t, "skip", "delete", rangeID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	out, err = run(t, "skip", "clear", jobID)
	require.NoError(t, err)
	assert.Equal(t, "removed 1 ranges\n", out)
}

func TestJobsCommands(t *testing.T) {
	job := seedJob(t)

	out, err := run(t, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, job.ID.String())
	assert.Contains(t, out, "pending")

	out, err = run(t, "jobs", "show", job.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, `"file_path": "/videos/movie.mkv"`)

	_, err = run(t, "jobs", "show", "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestSettingsCommands(t *testing.T) {
	seedJob(t)

	_, err := run(t, "settings", "set", "chunk_duration_seconds", "45")
	require.NoError(t, err)
	_, err = run(t, "settings", "set", "scene_threshold", "0.5")
	require.NoError(t, err)

	out, err := run(t, "settings", "get", "chunk_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, "45\n", out)

	_, err = run(t, "settings", "set", "chunk_overlap_seconds", "60")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	_, err = run(t, "settings", "set", "database_url", "elsewhere")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	out, err = run(t, "settings", "list")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "chunk_duration_seconds"), strings.Index(out, "scene_threshold"))

	_, err = run(t, "settings", "delete", "chunk_duration_seconds")
	require.NoError(t, err)
	_, err = run(t, "settings", "get", "chunk_duration_seconds")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
