package main

import (
	"os"

	"github.com/aatumaykin/ruletoggle/internal/version"
)

var (
	Version   string = "0.2.0"
	BuildTime string = "unknown"
	GitCommit string = "unknown"
	GoVersion string = "unknown"
)

func init() {
	version.SetInfo(Version, BuildTime, GitCommit, GoVersion)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
