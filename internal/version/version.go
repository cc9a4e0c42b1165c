// Package version reports the build the running speedcurrent binary came
// from. The variables are set at link time with -ldflags "-X".
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info is the build description served by the API.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the linked build info. A plain "go build" leaves GitSHA and
// BuildTime unset, so they fall back to the VCS stamp the toolchain embeds.
func Get() Info {
	info := Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fromSettings(info, bi.Settings)
}

func fromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitSHA == "unknown" && s.Value != "" {
				info.GitSHA = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// String formats the info for the -version flag.
func (i Info) String() string {
	sha := i.GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("speedcurrent %s (%s, built %s)", i.Version, sha, i.BuildTime)
}
