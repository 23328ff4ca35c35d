package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
)

// Set via -ldflags "-X report-intake-service/version.BuildVersion=..."; VCS
// build info fills GitSHA and BuildTime when they are left empty.
var (
	BuildVersion = "dev"
	GitSHA       = ""
	BuildTime    = ""
)

const Service = "report-intake-service"

type Info struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	GitSHA      string `json:"git_sha,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
	VCSModified *bool  `json:"vcs_modified,omitempty"`
	GoVersion   string `json:"go_version"`
	GOOS        string `json:"go_os"`
	GOARCH      string `json:"go_arch"`
}

func Get() Info {
	info := Info{
		Service:   Service,
		Version:   BuildVersion,
		GitSHA:    GitSHA,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, bi.Settings)
	}
	return info
}

func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitSHA == "" {
				info.GitSHA = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			if info.VCSModified == nil {
				if b, err := strconv.ParseBool(s.Value); err == nil {
					info.VCSModified = &b
				}
			}
		}
	}
}
