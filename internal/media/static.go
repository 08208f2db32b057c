package media

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"sync/atomic"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
)

// SolidFrame returns a w×h frame filled with a single luma value.
func SolidFrame(w, h int, luma uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = luma
	}
	return img
}

// GradientFrame returns a frame whose luma rises left to right, offset by shift.
func GradientFrame(w, h int, shift uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*255/max(w-1, 1)) + shift})
		}
	}
	return img
}

// StaticFrames is an in-memory FrameSource.
type StaticFrames struct {
	FPS    float64
	Images []*image.Gray
	// FailAt makes the iterator return a decode error at that source index.
	// Negative disables it.
	FailAt int
	// OpenErr is returned from Frames when set.
	OpenErr error

	opens atomic.Int32
}

func NewStaticFrames(fps float64, images []*image.Gray) *StaticFrames {
	return &StaticFrames{FPS: fps, Images: images, FailAt: -1}
}

func (s *StaticFrames) Info() VideoInfo {
	info := VideoInfo{FPS: s.FPS, FrameCount: len(s.Images)}
	if s.FPS > 0 {
		info.Duration = float64(len(s.Images)) / s.FPS
	}
	if len(s.Images) > 0 {
		b := s.Images[0].Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	return info
}

// Opens reports how many passes were started.
func (s *StaticFrames) Opens() int {
	return int(s.opens.Load())
}

func (s *StaticFrames) Frames(ctx context.Context, every int) (FrameIterator, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if every < 1 {
		every = 1
	}
	s.opens.Add(1)
	return &staticIter{src: s, ctx: ctx, every: every}, nil
}

type staticIter struct {
	src   *StaticFrames
	ctx   context.Context
	every int
	next  int
}

func (it *staticIter) Next() (Frame, error) {
	if err := it.ctx.Err(); err != nil {
		return Frame{}, err
	}
	if it.next >= len(it.src.Images) {
		return Frame{}, io.EOF
	}
	idx := it.next
	it.next += it.every
	if idx == it.src.FailAt {
		return Frame{}, apperrors.MediaRead("decode frame %d", idx)
	}
	return Frame{
		Index:     idx,
		Timestamp: float64(idx) / it.src.FPS,
		Image:     it.src.Images[idx],
	}, nil
}

func (it *staticIter) Close() error { return nil }

// StaticAudio is an in-memory AudioSource over interleaved samples.
type StaticAudio struct {
	AudioFormat AudioFormat
	Samples     []float32
	NoTrack     bool
	ExtractErr  error
}

// NoAudio is an AudioSource for media without an audio stream.
var NoAudio AudioSource = &StaticAudio{NoTrack: true}

func (s *StaticAudio) HasAudio() bool      { return !s.NoTrack }
func (s *StaticAudio) Format() AudioFormat { return s.AudioFormat }

func (s *StaticAudio) Duration() float64 {
	if s.AudioFormat.SampleRate <= 0 || s.AudioFormat.Channels <= 0 {
		return 0
	}
	return float64(len(s.Samples)/s.AudioFormat.Channels) / float64(s.AudioFormat.SampleRate)
}

func (s *StaticAudio) Extract(ctx context.Context, start, end float64) (Waveform, error) {
	if err := ctx.Err(); err != nil {
		return Waveform{}, err
	}
	if s.ExtractErr != nil {
		return Waveform{}, s.ExtractErr
	}
	return SliceWaveform(Waveform{Format: s.AudioFormat, Samples: s.Samples}, start, end), nil
}

// SliceWaveform returns the sample frames of w between start and end seconds.
func SliceWaveform(w Waveform, start, end float64) Waveform {
	rate := float64(w.Format.SampleRate)
	n := w.Frames()
	from := clampIndex(int(math.Round(start*rate)), n)
	to := clampIndex(int(math.Round(end*rate)), n)
	if to < from {
		to = from
	}
	ch := w.Format.Channels
	return Waveform{Format: w.Format, Samples: w.Samples[from*ch : to*ch]}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// Tone appends seconds of a constant-amplitude square wave to samples.
func Tone(samples []float32, f AudioFormat, seconds float64, amplitude float32) []float32 {
	frames := int(math.Round(seconds * float64(f.SampleRate)))
	for i := 0; i < frames; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		for c := 0; c < f.Channels; c++ {
			samples = append(samples, v)
		}
	}
	return samples
}
