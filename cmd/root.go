package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "workhub",
	Short:   "Workhub - realtime workgroup messaging server",
	Long:    `A single-binary server for workgroup channels with presence and persisted message history over websockets.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("workhub version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
