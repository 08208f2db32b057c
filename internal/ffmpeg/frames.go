package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/media"
)

// DefaultAnalysisWidth is the width frames are scaled to before analysis.
const DefaultAnalysisWidth = 160

// FrameReader decodes a video file into grayscale frames through an ffmpeg
// rawvideo pipe. It implements media.FrameSource.
type FrameReader struct {
	ffmpegPath string
	filePath   string
	info       media.VideoInfo
	width      int
	height     int
	hwaccel    string
}

type FrameReaderOption func(*FrameReader)

// WithHWAccel decodes with the given ffmpeg -hwaccel method.
func WithHWAccel(method string) FrameReaderOption {
	return func(r *FrameReader) { r.hwaccel = method }
}

// WithAnalysisWidth overrides the scaled frame width.
func WithAnalysisWidth(w int) FrameReaderOption {
	return func(r *FrameReader) { r.width = w }
}

func NewFrameReader(ffmpegPath, filePath string, info media.VideoInfo, opts ...FrameReaderOption) *FrameReader {
	r := &FrameReader{
		ffmpegPath: ffmpegPath,
		filePath:   filePath,
		info:       info,
		width:      DefaultAnalysisWidth,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.width, r.height = scaledSize(info.Width, info.Height, r.width)
	return r
}

// scaledSize keeps the aspect ratio and rounds both sides to even numbers.
func scaledSize(srcW, srcH, targetW int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return targetW &^ 1, (targetW * 9 / 16) &^ 1
	}
	if targetW > srcW {
		targetW = srcW
	}
	h := targetW * srcH / srcW
	return max(targetW&^1, 2), max(h&^1, 2)
}

func (r *FrameReader) Info() media.VideoInfo { return r.info }

func (r *FrameReader) args(every int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if r.hwaccel != "" {
		args = append(args, "-hwaccel", r.hwaccel)
	}
	filter := fmt.Sprintf("select='not(mod(n\\,%d))',scale=%d:%d,format=gray", every, r.width, r.height)
	return append(args,
		"-i", r.filePath,
		"-an", "-sn",
		"-vf", filter,
		"-vsync", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "gray",
		"pipe:1",
	)
}

// Frames starts ffmpeg and streams every n-th frame. The source index of the
// k-th yielded frame is k*every, which assumes a constant frame rate.
func (r *FrameReader) Frames(ctx context.Context, every int) (media.FrameIterator, error) {
	if every < 1 {
		every = 1
	}
	if r.info.FPS <= 0 {
		return nil, apperrors.MediaRead("%s: unknown frame rate", r.filePath)
	}

	cmd := exec.CommandContext(ctx, r.ffmpegPath, r.args(every)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.MediaRead("ffmpeg pipe").WithCause(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, apperrors.MediaRead("start ffmpeg for %s", r.filePath).WithCause(err)
	}
	return &pipeFrames{
		ctx:    ctx,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		every:  every,
		fps:    r.info.FPS,
		w:      r.width,
		h:      r.height,
		path:   r.filePath,
	}, nil
}

type pipeFrames struct {
	ctx    context.Context
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	every  int
	fps    float64
	w, h   int
	path   string
	n      int
	done   bool
}

func (p *pipeFrames) Next() (media.Frame, error) {
	if p.done {
		return media.Frame{}, io.EOF
	}
	img := image.NewGray(image.Rect(0, 0, p.w, p.h))
	_, err := io.ReadFull(p.stdout, img.Pix)
	if errors.Is(err, io.EOF) {
		p.done = true
		if werr := p.wait(); werr != nil {
			return media.Frame{}, werr
		}
		return media.Frame{}, io.EOF
	}
	if err != nil {
		p.done = true
		_ = p.wait()
		if p.ctx.Err() != nil {
			return media.Frame{}, p.ctx.Err()
		}
		return media.Frame{}, apperrors.MediaRead("read frame %d of %s", p.n*p.every, p.path).WithCause(err)
	}
	idx := p.n * p.every
	p.n++
	return media.Frame{Index: idx, Timestamp: float64(idx) / p.fps, Image: img}, nil
}

func (p *pipeFrames) wait() error {
	if err := p.cmd.Wait(); err != nil {
		if p.ctx.Err() != nil {
			return p.ctx.Err()
		}
		return apperrors.MediaRead("ffmpeg decode of %s failed: %s", p.path, lastLines(p.stderr.String(), 5)).WithCause(err)
	}
	return nil
}

func (p *pipeFrames) Close() error {
	if p.done {
		return nil
	}
	p.done = true
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, " | ")
	}
	return strings.Join(lines[len(lines)-n:], " | ")
}
