package analysis

import (
	"context"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/ffmpeg"
	"github.com/JustinTDCT/cinescript/internal/media"
)

// Source is an opened media file ready for analysis.
type Source struct {
	Duration float64
	Frames   media.FrameSource
	Audio    media.AudioSource

	close func() error
}

func NewSource(duration float64, frames media.FrameSource, audio media.AudioSource) *Source {
	return &Source{Duration: duration, Frames: frames, Audio: audio}
}

func (s *Source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Opener turns a file path into analysable sources.
type Opener interface {
	Open(ctx context.Context, filePath string) (*Source, error)
}

type OpenerFunc func(ctx context.Context, filePath string) (*Source, error)

func (f OpenerFunc) Open(ctx context.Context, filePath string) (*Source, error) {
	return f(ctx, filePath)
}

// FFmpegOpener probes files with ffprobe and decodes them through ffmpeg pipes.
type FFmpegOpener struct {
	FFmpegPath  string
	FFprobePath string
	HWAccel     bool
	SampleRate  int
}

func (o *FFmpegOpener) Open(ctx context.Context, filePath string) (*Source, error) {
	probe, err := ffmpeg.NewFFprobe(o.FFprobePath).Probe(ctx, filePath)
	if err != nil {
		return nil, err
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return nil, apperrors.MediaRead("%s: unknown duration", filePath)
	}

	var opts []ffmpeg.FrameReaderOption
	if o.HWAccel {
		if method := ffmpeg.DetectHWAccel(ctx, o.FFmpegPath); method != "" {
			opts = append(opts, ffmpeg.WithHWAccel(method))
		}
	}
	frames := ffmpeg.NewFrameReader(o.FFmpegPath, filePath, probe.VideoInfo(), opts...)
	audio := ffmpeg.NewAudioReader(o.FFmpegPath, filePath, probe, o.SampleRate)

	src := NewSource(duration, frames, audio)
	src.close = audio.Close
	return src, nil
}
