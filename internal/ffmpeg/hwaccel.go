package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Decoders tried in order when hardware decoding is requested.
var preferredHWAccels = []string{"cuda", "qsv", "vaapi", "videotoolbox"}

var (
	hwMu     sync.Mutex
	hwCached = map[string]string{}
)

// DetectHWAccel returns the first hardware decoder ffmpeg reports from
// preferredHWAccels, or "" when none is available. Cached per binary.
func DetectHWAccel(ctx context.Context, ffmpegPath string) string {
	hwMu.Lock()
	defer hwMu.Unlock()
	if accel, ok := hwCached[ffmpegPath]; ok {
		return accel
	}

	output, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-hwaccels").Output()
	if err != nil {
		log.Warn().Err(err).Str("ffmpeg", ffmpegPath).Msg("hwaccel probe failed, decoding in software")
		hwCached[ffmpegPath] = ""
		return ""
	}

	accel := pickHWAccel(parseHWAccels(string(output)))
	hwCached[ffmpegPath] = accel
	if accel != "" {
		log.Info().Str("hwaccel", accel).Msg("using hardware video decoding")
	}
	return accel
}

// parseHWAccels reads the method list printed by `ffmpeg -hwaccels`.
func parseHWAccels(output string) []string {
	var methods []string
	inList := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Hardware acceleration methods") {
			inList = true
			continue
		}
		if inList && line != "" {
			methods = append(methods, line)
		}
	}
	return methods
}

func pickHWAccel(available []string) string {
	for _, want := range preferredHWAccels {
		for _, have := range available {
			if have == want {
				return want
			}
		}
	}
	return ""
}
