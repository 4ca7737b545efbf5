// Package version holds build information set with -ldflags.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is the running release. Its version core selects the current
// block format, so it must be a semver string.
var (
	Version   = "0.2.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = "unknown"
)

// Info is the build information as one value.
type Info struct {
	Version   string `json:"version"`
	Release   string `json:"release"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// SetInfo overrides the build information. Empty values are ignored.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// Release is Version reduced to MAJOR.MINOR.PATCH. Pre-release and build
// suffixes ("0.2.0-dev", "v0.2.0+abc") would otherwise sort before the
// release they belong to. Unparseable versions are returned unchanged.
func Release() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return Version
	}
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Release:   Release(),
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
	}
}

// StartupMessage is logged once the daemon is serving.
func StartupMessage() string {
	return fmt.Sprintf("ruletoggle %s started (build %s, commit %s)", Version, BuildTime, GitCommit)
}
