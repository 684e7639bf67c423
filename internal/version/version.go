package version

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build-time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Info returns version information as a struct
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}

// String returns a human-readable version string
func String() string {
	commit := GitCommit[:min(7, len(GitCommit))]
	if Version == "dev" {
		return fmt.Sprintf("pdfdesk %s (commit %s, built %s with %s)", Version, commit, BuildDate, GoVersion)
	}
	return fmt.Sprintf("pdfdesk v%s (commit %s, built %s with %s)", Version, commit, BuildDate, GoVersion)
}
