package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/JustinTDCT/cinescript/internal/detection"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
)

// Config is resolved from defaults, then an optional YAML file, then the
// environment, then the settings table.
type Config struct {
	DatabaseDriver string `yaml:"database_driver" env:"DATABASE_DRIVER" validate:"oneof=postgres sqlite"`
	DatabaseURL    string `yaml:"database_url" env:"DATABASE_URL" validate:"required"`
	RedisAddr      string `yaml:"redis_addr" env:"REDIS_ADDR" validate:"required"`

	FFmpegPath  string `yaml:"ffmpeg_path" env:"FFMPEG_PATH" validate:"required"`
	FFprobePath string `yaml:"ffprobe_path" env:"FFPROBE_PATH" validate:"required"`
	HWAccel     bool   `yaml:"hw_accel" env:"HW_ACCEL"`

	VideoDir     string `yaml:"video_dir" env:"VIDEO_DIR"`
	WatchEnabled bool   `yaml:"watch_enabled" env:"WATCH_ENABLED"`

	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	LogPretty   bool   `yaml:"log_pretty" env:"LOG_PRETTY"`
	MetricsPort int    `yaml:"metrics_port" env:"METRICS_PORT" validate:"min=0,max=65535"`

	WorkerConcurrency int     `yaml:"worker_concurrency" env:"WORKER_CONCURRENCY" validate:"min=1"`
	SweepSchedule     string  `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE" validate:"required"`
	SweepRate         float64 `yaml:"sweep_rate" env:"SWEEP_RATE" validate:"gt=0"`
	StaleJobMinutes   int     `yaml:"stale_job_minutes" env:"STALE_JOB_MINUTES" validate:"min=0"`

	ChunkDurationSeconds float64 `yaml:"chunk_duration_seconds" env:"CHUNK_DURATION_SECONDS" validate:"gt=0"`
	ChunkOverlapSeconds  float64 `yaml:"chunk_overlap_seconds" env:"CHUNK_OVERLAP_SECONDS" validate:"gt=0,ltfield=ChunkDurationSeconds"`
	MinSegmentSeconds    float64 `yaml:"min_segment_seconds" env:"MIN_SEGMENT_SECONDS" validate:"min=0"`
	TiePolicy            string  `yaml:"tie_policy" env:"TIE_POLICY" validate:"oneof=visual_first audio_first"`

	SceneThreshold   float64 `yaml:"scene_threshold" env:"SCENE_THRESHOLD" validate:"min=0,max=1"`
	SceneSampleEvery int     `yaml:"scene_sample_every" env:"SCENE_SAMPLE_EVERY" validate:"min=1"`

	BlackFrameThreshold   int     `yaml:"black_frame_threshold" env:"BLACK_FRAME_THRESHOLD" validate:"min=1,max=255"`
	BlackFrameMinDuration float64 `yaml:"black_frame_min_duration" env:"BLACK_FRAME_MIN_DURATION" validate:"gt=0"`
	BlackFrameMaxGap      int     `yaml:"black_frame_max_gap" env:"BLACK_FRAME_MAX_GAP" validate:"min=0"`
	FrameSampleEvery      int     `yaml:"frame_sample_every" env:"FRAME_SAMPLE_EVERY" validate:"min=1"`

	SilenceThreshold   float64 `yaml:"silence_threshold" env:"SILENCE_THRESHOLD" validate:"lt=0"`
	SilenceMinDuration float64 `yaml:"silence_min_duration" env:"SILENCE_MIN_DURATION" validate:"gt=0"`
	AudioWindowMS      int     `yaml:"audio_window_ms" env:"AUDIO_WINDOW_MS" validate:"min=1"`
	AudioSampleRate    int     `yaml:"audio_sample_rate" env:"AUDIO_SAMPLE_RATE" validate:"min=1000"`
}

func Defaults() *Config {
	return &Config{
		DatabaseDriver: "postgres",
		DatabaseURL:    "postgres://cinescript:cinescript@db:5432/cinescript?sslmode=disable",
		RedisAddr:      "redis:6379",

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		VideoDir: "/videos",

		LogLevel:    "info",
		MetricsPort: 9090,

		WorkerConcurrency: 2,
		SweepSchedule:     "@every 5m",
		SweepRate:         2,
		StaleJobMinutes:   120,

		ChunkDurationSeconds: 30,
		ChunkOverlapSeconds:  5,
		TiePolicy:            "visual_first",

		SceneThreshold:   0.3,
		SceneSampleEvery: 5,

		BlackFrameThreshold:   20,
		BlackFrameMinDuration: 1.0,
		BlackFrameMaxGap:      2,
		FrameSampleEvery:      1,

		SilenceThreshold:   -40,
		SilenceMinDuration: 1.0,
		AudioWindowMS:      500,
		AudioSampleRate:    16000,
	}
}

// Load resolves configuration. path may be empty; CINESCRIPT_CONFIG is
// consulted in that case, and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("CINESCRIPT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
		case err != nil:
			return nil, apperrors.Configuration("read config %s", path).WithCause(err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Configuration("parse config %s", path).WithCause(err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Configuration("parse environment").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate returns a CONFIGURATION error naming every invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Configuration("validate config").WithCause(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return apperrors.Configuration("invalid config: %s", strings.Join(msgs, "; ")).WithDetails(msgs)
}

// SettingsReader is satisfied by the settings repository.
type SettingsReader interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

type setter func(c *Config, v string) error

// dbKeys lists the settings that may override file and environment values.
var dbKeys = map[string]setter{
	"chunk_duration_seconds":   floatSetter(func(c *Config) *float64 { return &c.ChunkDurationSeconds }),
	"chunk_overlap_seconds":    floatSetter(func(c *Config) *float64 { return &c.ChunkOverlapSeconds }),
	"min_segment_seconds":      floatSetter(func(c *Config) *float64 { return &c.MinSegmentSeconds }),
	"scene_threshold":          floatSetter(func(c *Config) *float64 { return &c.SceneThreshold }),
	"scene_sample_every":       intSetter(func(c *Config) *int { return &c.SceneSampleEvery }),
	"black_frame_threshold":    intSetter(func(c *Config) *int { return &c.BlackFrameThreshold }),
	"black_frame_min_duration": floatSetter(func(c *Config) *float64 { return &c.BlackFrameMinDuration }),
	"black_frame_max_gap":      intSetter(func(c *Config) *int { return &c.BlackFrameMaxGap }),
	"frame_sample_every":       intSetter(func(c *Config) *int { return &c.FrameSampleEvery }),
	"silence_threshold":        floatSetter(func(c *Config) *float64 { return &c.SilenceThreshold }),
	"silence_min_duration":     floatSetter(func(c *Config) *float64 { return &c.SilenceMinDuration }),
	"audio_window_ms":          intSetter(func(c *Config) *int { return &c.AudioWindowMS }),
	"worker_concurrency":       intSetter(func(c *Config) *int { return &c.WorkerConcurrency }),
	"sweep_rate":               floatSetter(func(c *Config) *float64 { return &c.SweepRate }),
	"hw_accel":                 boolSetter(func(c *Config) *bool { return &c.HWAccel }),
	"tie_policy": func(c *Config, v string) error {
		c.TiePolicy = v
		return nil
	},
}

func floatSetter(field func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func intSetter(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		i, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		*field(c) = i
		return nil
	}
}

func boolSetter(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// SettingKeys lists the keys the settings table may override, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(dbKeys))
	for k := range dbKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CheckSetting reports whether storing key=value would leave c valid.
func (c *Config) CheckSetting(key, value string) error {
	set, ok := dbKeys[key]
	if !ok {
		return apperrors.Configuration("unknown setting %q", key).WithDetails(SettingKeys())
	}
	merged := *c
	if err := set(&merged, value); err != nil {
		return apperrors.Configuration("setting %s: cannot parse %q", key, value).WithCause(err)
	}
	return merged.Validate()
}

// MergeFromDB applies tunables stored in the settings table. Unknown keys
// and values that do not parse are logged and skipped. The merged result is
// validated as a whole; on failure c is left unchanged.
func (c *Config) MergeFromDB(ctx context.Context, settings SettingsReader) error {
	values, err := settings.GetAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("config: skipping DB merge")
		return nil
	}

	merged := *c
	for key, value := range values {
		set, ok := dbKeys[key]
		if !ok {
			continue
		}
		if err := set(&merged, value); err != nil {
			log.Warn().Err(err).Str("key", key).Str("value", value).Msg("config: ignoring unparsable setting")
		}
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	*c = merged
	return nil
}

// DetectionConfig maps the scan tunables onto the detector's config.
func (c *Config) DetectionConfig() detection.Config {
	return detection.Config{
		BrightnessThreshold: c.BlackFrameThreshold,
		BlackMinDuration:    c.BlackFrameMinDuration,
		MaxBrightGap:        c.BlackFrameMaxGap,
		SilenceDB:           c.SilenceThreshold,
		SilenceMinDuration:  c.SilenceMinDuration,
		AudioWindow:         time.Duration(c.AudioWindowMS) * time.Millisecond,
		FrameSampleEvery:    c.FrameSampleEvery,
	}
}
