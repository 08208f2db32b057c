package chunker

import (
	"context"
	"errors"
	"image"
	"io"
	"iter"
	"math"

	"golang.org/x/image/draw"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/media"
	"github.com/JustinTDCT/cinescript/internal/models"
)

// Thumbnail size frames are reduced to before histogram comparison.
const (
	thumbWidth  = 64
	thumbHeight = 36
)

// SceneDetector scores consecutive sampled frames by histogram dissimilarity.
type SceneDetector struct {
	SampleEvery int
	Threshold   float64
}

// NewSceneDetector checks the sampling parameters up front so iteration never
// fails on configuration.
func NewSceneDetector(sampleEvery int, threshold float64) (*SceneDetector, error) {
	if sampleEvery < 1 {
		return nil, apperrors.Configuration("scene sample interval must be at least 1, got %d", sampleEvery)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, apperrors.Configuration("scene threshold must be within [0, 1], got %g", threshold)
	}
	return &SceneDetector{SampleEvery: sampleEvery, Threshold: threshold}, nil
}

// DetectSceneChanges lazily yields scene changes in timestamp order. Each
// range over the sequence starts a new pass over src. A decode failure is
// yielded once as a MEDIA_READ error and ends the sequence.
func (d *SceneDetector) DetectSceneChanges(ctx context.Context, src media.FrameSource) iter.Seq2[models.SceneChange, error] {
	return func(yield func(models.SceneChange, error) bool) {
		it, err := src.Frames(ctx, d.SampleEvery)
		if err != nil {
			yield(models.SceneChange{}, asMediaRead(err, "open frames"))
			return
		}
		defer it.Close()

		var prev []float64
		for {
			f, err := it.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(models.SceneChange{}, asMediaRead(err, "decode frame"))
				return
			}

			hist := histogram(thumbnail(f.Image))
			if prev != nil {
				score := 1 - math.Max(0, pearson(prev, hist))
				if score > d.Threshold {
					if !yield(models.SceneChange{Timestamp: f.Timestamp, Score: score}, nil) {
						return
					}
				}
			}
			prev = hist
		}
	}
}

// Collect drains the sequence, stopping at the first error.
func (d *SceneDetector) Collect(ctx context.Context, src media.FrameSource) ([]models.SceneChange, error) {
	var out []models.SceneChange
	for sc, err := range d.DetectSceneChanges(ctx, src) {
		if err != nil {
			return out, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func asMediaRead(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperrors.Is(err, apperrors.ErrMediaRead) {
		return err
	}
	return apperrors.MediaRead("%s", op).WithCause(err)
}

func thumbnail(src *image.Gray) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, thumbWidth, thumbHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func histogram(img *image.Gray) []float64 {
	h := make([]float64, 256)
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for _, p := range img.Pix[y*img.Stride : y*img.Stride+b.Dx()] {
			h[p]++
		}
	}
	return h
}

// pearson returns the correlation coefficient of a and b. Constant inputs
// have no variance; they correlate fully only with an identical input.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	var sa, sb float64
	for i := range a {
		sa += a[i]
		sb += b[i]
	}
	ma, mb := sa/n, sb/n

	var cov, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		for i := range a {
			if a[i] != b[i] {
				return 0
			}
		}
		return 1
	}
	return cov / math.Sqrt(va*vb)
}
