package version

import "runtime"

// Overridden at build time through -ldflags.
var (
	version   = "v0.1.0"
	gitCommit = "none"
)

// GetVersion returns the bare semver string.
func GetVersion() string {
	return version
}

// BuildInfo carries the facts stamped into the binary. They are logged at
// startup and embedded in the boot report.
type BuildInfo struct {
	Version   string `json:"version,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// Get assembles the BuildInfo for this binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
}
