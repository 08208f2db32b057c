package version

import (
	"encoding/json"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// Version is overridden at build time with -ldflags "-X ...version.Version=v1.2.3".
var Version = ""

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// Load prefers the linker-injected version, then version.json in the working
// directory, then the module build info.
func Load() Info {
	info := Info{Version: Version}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Commit = s.Value
			}
		}
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	if Version != "" {
		return info
	}

	data, err := os.ReadFile("version.json")
	if err != nil {
		if info.Version == "" {
			info.Version = "0.0.0"
		}
		return info
	}
	var file Info
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Msg("could not parse version.json")
		if info.Version == "" {
			info.Version = "0.0.0"
		}
		return info
	}
	info.Version = file.Version
	return info
}
