package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	dc := cfg.DetectionConfig()
	assert.Equal(t, 20, dc.BrightnessThreshold)
	assert.Equal(t, 500*time.Millisecond, dc.AudioWindow)
	assert.Equal(t, -40.0, dc.SilenceDB)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinescript.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_driver: sqlite
database_url: /var/lib/cinescript/db.sqlite
chunk_duration_seconds: 45
chunk_overlap_seconds: 10
scene_threshold: 0.5
`), 0o644))

	t.Setenv("CHUNK_OVERLAP_SECONDS", "7.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 45.0, cfg.ChunkDurationSeconds)
	assert.Equal(t, 7.5, cfg.ChunkOverlapSeconds, "environment wins over the file")
	assert.Equal(t, 0.5, cfg.SceneThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath, "untouched keys keep defaults")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.ChunkDurationSeconds)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"overlap not shorter than chunk", "CHUNK_OVERLAP_SECONDS", "30"},
		{"scene threshold above one", "SCENE_THRESHOLD", "1.2"},
		{"brightness out of range", "BLACK_FRAME_THRESHOLD", "0"},
		{"non-negative silence threshold", "SILENCE_THRESHOLD", "0"},
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"unparsable number", "CHUNK_DURATION_SECONDS", "thirty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

type stubSettings map[string]string

func (s stubSettings) GetAll(context.Context) (map[string]string, error) { return s, nil }

func TestMergeFromDB(t *testing.T) {
	cfg := Defaults()
	err := cfg.MergeFromDB(context.Background(), stubSettings{
		"chunk_duration_seconds": "60",
		"scene_sample_every":     "10",
		"hw_accel":               "true",
		"silence_threshold":      "not-a-number",
		"unrelated_key":          "x",
	})
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.ChunkDurationSeconds)
	assert.Equal(t, 10, cfg.SceneSampleEvery)
	assert.True(t, cfg.HWAccel)
	assert.Equal(t, -40.0, cfg.SilenceThreshold, "unparsable values are skipped")
}

func TestMergeFromDB_InvalidResultLeavesConfigUnchanged(t *testing.T) {
	cfg := Defaults()
	err := cfg.MergeFromDB(context.Background(), stubSettings{
		"chunk_duration_seconds": "4",
	})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Equal(t, 30.0, cfg.ChunkDurationSeconds)
}

func TestCheckSetting(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, cfg.CheckSetting("chunk_duration_seconds", "45"))
	assert.Equal(t, 30.0, cfg.ChunkDurationSeconds, "checking does not apply")

	assert.ErrorIs(t, cfg.CheckSetting("log_level", "debug"), apperrors.ErrConfiguration, "not a tunable")
	assert.ErrorIs(t, cfg.CheckSetting("scene_sample_every", "often"), apperrors.ErrConfiguration)
	assert.ErrorIs(t, cfg.CheckSetting("chunk_overlap_seconds", "30"), apperrors.ErrConfiguration)
	assert.Contains(t, SettingKeys(), "stale_job_minutes")
}
