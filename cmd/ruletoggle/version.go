package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Display the version, build time, git commit and Go version of ruletoggle.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "ruletoggle - time-windowed rule toggler")
		fmt.Fprintf(out, "Version: %s (block format %s)\n", info.Version, info.Release)
		fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
		fmt.Fprintf(out, "Git Commit: %s\n", info.GitCommit)
		fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "Block Formats: %s\n", strings.Join(codec.DefaultRegistry().Versions(), ", "))
	},
}
