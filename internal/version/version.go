// Package version holds build metadata for the cvgen binary, injected with:
//
//	go build -ldflags="-X github.com/54b3r/cvgen-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/cvgen-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/cvgen-go/internal/version.BuildDate=2026-01-01"
//
// Without ldflags Commit falls back to the VCS revision recorded by the Go
// toolchain, when there is one.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the semantic version, "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date.
var BuildDate = "unknown"

// shortSHA is the commit length shown to users.
const shortSHA = 7

func init() {
	if Commit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			Commit = s.Value[:min(len(s.Value), shortSHA)]
		}
	}
}

// String formats the build metadata as printed by `cvgen version`.
func String() string {
	return fmt.Sprintf("cvgen %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
