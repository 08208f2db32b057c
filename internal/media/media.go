// Package media defines the frame and audio contracts the detectors read
// from, plus in-memory sources used by fixtures and tests.
package media

import (
	"context"
	"image"
)

// VideoInfo describes the decoded video stream.
type VideoInfo struct {
	Width      int
	Height     int
	FPS        float64
	Duration   float64
	FrameCount int
}

// Frame is one decoded, grayscale video frame. Index counts frames of the
// source stream, not sampled frames.
type Frame struct {
	Index     int
	Timestamp float64
	Image     *image.Gray
}

// FrameIterator yields frames in presentation order. Next returns io.EOF
// once the stream is exhausted.
type FrameIterator interface {
	Next() (Frame, error)
	Close() error
}

// FrameSource opens a fresh pass over the video each time Frames is called,
// yielding every n-th frame.
type FrameSource interface {
	Info() VideoInfo
	Frames(ctx context.Context, every int) (FrameIterator, error)
}

// AudioFormat describes decoded PCM.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// Waveform holds interleaved float samples in [-1, 1].
type Waveform struct {
	Format  AudioFormat
	Samples []float32
}

// Frames returns the number of sample frames (one sample per channel).
func (w Waveform) Frames() int {
	if w.Format.Channels <= 0 {
		return 0
	}
	return len(w.Samples) / w.Format.Channels
}

// Mono averages the channels of each sample frame.
func (w Waveform) Mono() []float64 {
	ch := w.Format.Channels
	n := w.Frames()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(w.Samples[i*ch+c])
		}
		out[i] = sum / float64(ch)
	}
	return out
}

// AudioSource provides random access to a decoded audio track.
type AudioSource interface {
	HasAudio() bool
	Format() AudioFormat
	Duration() float64
	Extract(ctx context.Context, start, end float64) (Waveform, error)
}

// MeanLuma returns the average pixel value of a grayscale image.
func MeanLuma(img *image.Gray) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum uint64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, p := range row {
			sum += uint64(p)
		}
	}
	return float64(sum) / float64(w*h)
}
