// Package version reports which build of senville is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at release time:
//
//	go build -ldflags="-X github.com/beattie/Senville-Midea-reverse-engineering/internal/version.Version=v0.3.0 \
//	                   -X github.com/beattie/Senville-Midea-reverse-engineering/internal/version.Commit=abc1234 \
//	                   -X github.com/beattie/Senville-Midea-reverse-engineering/internal/version.Date=2026-10-19"
//
// Anything left empty is taken from the VCS stamp of the Go build info.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String formats the information on one line.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (commit: %s", i.Version, i.Commit)
	if i.Modified {
		b.WriteString("-dirty")
	}
	if i.Date != "" {
		fmt.Fprintf(&b, ", built %s", i.Date)
	}
	fmt.Fprintf(&b, ", %s %s)", i.GoVersion, i.Platform)
	return b.String()
}

// Full returns the one line version string.
func Full() string {
	return Get().String()
}
