package ffmpeg

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/media"
)

type FFprobe struct{ Path string }
type ProbeResult struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}
type FormatInfo struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     string `json:"size"`
	Bitrate  string `json:"bit_rate"`
}
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	Channels     int    `json:"channels"`
	SampleRate   string `json:"sample_rate"`
}

func NewFFprobe(path string) *FFprobe { return &FFprobe{Path: path} }

// Probe reads container and stream metadata. Any failure is a MEDIA_READ error.
func (f *FFprobe) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, f.Path, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", filePath)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.MediaRead("ffprobe %s", filePath).WithCause(err)
	}
	result, err := ParseProbe(output)
	if err != nil {
		return nil, apperrors.MediaRead("parse ffprobe output for %s", filePath).WithCause(err)
	}
	return result, nil
}

// ParseProbe decodes ffprobe's JSON output.
func ParseProbe(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ProbeResult) stream(codecType string) *StreamInfo {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

func (r *ProbeResult) VideoStream() *StreamInfo { return r.stream("video") }
func (r *ProbeResult) AudioStream() *StreamInfo { return r.stream("audio") }

func (r *ProbeResult) HasVideo() bool { return r.VideoStream() != nil }
func (r *ProbeResult) HasAudio() bool { return r.AudioStream() != nil }

// DurationSeconds prefers the container duration and falls back to the
// longest stream.
func (r *ProbeResult) DurationSeconds() float64 {
	if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil && d > 0 {
		return d
	}
	var longest float64
	for _, s := range r.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			longest = math.Max(longest, d)
		}
	}
	return longest
}

// FPS returns the video frame rate, preferring the average rate.
func (r *ProbeResult) FPS() float64 {
	s := r.VideoStream()
	if s == nil {
		return 0
	}
	if fps := parseRate(s.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseRate(s.RFrameRate)
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (r *ProbeResult) VideoInfo() media.VideoInfo {
	info := media.VideoInfo{FPS: r.FPS(), Duration: r.DurationSeconds()}
	if s := r.VideoStream(); s != nil {
		info.Width, info.Height = s.Width, s.Height
		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			info.FrameCount = n
		} else if info.FPS > 0 {
			info.FrameCount = int(math.Round(info.Duration * info.FPS))
		}
	}
	return info
}

// AudioFormat reports the source sample rate and channel count.
func (r *ProbeResult) AudioFormat() media.AudioFormat {
	s := r.AudioStream()
	if s == nil {
		return media.AudioFormat{}
	}
	rate, _ := strconv.Atoi(s.SampleRate)
	return media.AudioFormat{SampleRate: rate, Channels: s.Channels}
}

func (r *ProbeResult) GetFileSize() int64 {
	size, _ := strconv.ParseInt(r.Format.Size, 10, 64)
	return size
}
