package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/media"
)

// DefaultAnalysisSampleRate is the rate audio is resampled to for analysis.
const DefaultAnalysisSampleRate = 16000

const bytesPerSample = 4

// AudioReader streams an audio track as f32le PCM through ffmpeg. Ranges
// requested in ascending order share one decoder; a backwards request
// restarts it at the new position. It implements media.AudioSource.
type AudioReader struct {
	ffmpegPath string
	filePath   string
	hasAudio   bool
	format     media.AudioFormat
	duration   float64

	mu     sync.Mutex
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *bytes.Buffer
	pos    int // sample frames consumed
	eof    bool
}

// NewAudioReader builds a reader from probe results. Channels are capped at
// two; the detectors average them anyway.
func NewAudioReader(ffmpegPath, filePath string, probe *ProbeResult, sampleRate int) *AudioReader {
	if sampleRate <= 0 {
		sampleRate = DefaultAnalysisSampleRate
	}
	src := probe.AudioFormat()
	return &AudioReader{
		ffmpegPath: ffmpegPath,
		filePath:   filePath,
		hasAudio:   probe.HasAudio(),
		format:     media.AudioFormat{SampleRate: sampleRate, Channels: min(max(src.Channels, 1), 2)},
		duration:   probe.DurationSeconds(),
	}
}

func (a *AudioReader) HasAudio() bool            { return a.hasAudio }
func (a *AudioReader) Format() media.AudioFormat { return a.format }
func (a *AudioReader) Duration() float64         { return a.duration }

func (a *AudioReader) frameBytes() int { return a.format.Channels * bytesPerSample }

func (a *AudioReader) start(ctx context.Context, at int) error {
	a.stopLocked()

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if at > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.6f", float64(at)/float64(a.format.SampleRate)))
	}
	args = append(args,
		"-i", a.filePath,
		"-vn", "-sn",
		"-ac", fmt.Sprint(a.format.Channels),
		"-ar", fmt.Sprint(a.format.SampleRate),
		"-f", "f32le", "-acodec", "pcm_f32le",
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	a.stderr = &bytes.Buffer{}
	cmd.Stderr = a.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.MediaRead("ffmpeg pipe").WithCause(err)
	}
	if err := cmd.Start(); err != nil {
		return apperrors.MediaRead("start ffmpeg for %s", a.filePath).WithCause(err)
	}
	a.cmd = cmd
	a.out = bufio.NewReaderSize(stdout, 64*1024)
	a.pos = at
	a.eof = false
	return nil
}

// Extract returns the samples in [start, end). A track shorter than the
// probed duration yields a short or empty waveform rather than an error.
func (a *AudioReader) Extract(ctx context.Context, start, end float64) (media.Waveform, error) {
	if !a.hasAudio {
		return media.Waveform{}, apperrors.MediaRead("%s has no audio stream", a.filePath)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rate := float64(a.format.SampleRate)
	from := int(math.Round(start * rate))
	to := int(math.Round(end * rate))
	if to <= from {
		return media.Waveform{Format: a.format}, nil
	}

	if a.cmd == nil || from < a.pos {
		if err := a.start(ctx, from); err != nil {
			return media.Waveform{}, err
		}
	}
	if from > a.pos && !a.eof {
		skip := int64(from-a.pos) * int64(a.frameBytes())
		n, err := io.CopyN(io.Discard, a.out, skip)
		a.pos += int(n) / a.frameBytes()
		if err != nil {
			if rerr := a.readErr(ctx, err); rerr != nil {
				return media.Waveform{}, rerr
			}
		}
	}
	if a.eof {
		return media.Waveform{Format: a.format}, nil
	}

	buf := make([]byte, (to-from)*a.frameBytes())
	n, err := io.ReadFull(a.out, buf)
	n -= n % a.frameBytes()
	a.pos += n / a.frameBytes()
	if err != nil {
		if rerr := a.readErr(ctx, err); rerr != nil {
			return media.Waveform{}, rerr
		}
	}
	return media.Waveform{Format: a.format, Samples: decodeF32LE(buf[:n])}, nil
}

// readErr marks end of stream and reports whether ffmpeg failed.
func (a *AudioReader) readErr(ctx context.Context, err error) error {
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		a.stopLocked()
		return apperrors.MediaRead("read audio of %s", a.filePath).WithCause(err)
	}
	a.eof = true
	if werr := a.cmd.Wait(); werr != nil {
		a.cmd = nil
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.MediaRead("ffmpeg audio decode of %s failed: %s", a.filePath, lastLines(a.stderr.String(), 5)).WithCause(werr)
	}
	return nil
}

func decodeF32LE(b []byte) []float32 {
	out := make([]float32, len(b)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*bytesPerSample:]))
	}
	return out
}

func (a *AudioReader) stopLocked() {
	if a.cmd == nil {
		return
	}
	if !a.eof && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
		_ = a.cmd.Wait()
	}
	a.cmd = nil
}

// Close stops any running decoder.
func (a *AudioReader) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	return nil
}
