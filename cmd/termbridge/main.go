// Package main provides the termbridge server and its maintenance commands.
//
// termbridge connects browser terminals over WebSocket to local shells or
// ssh sessions against inventory devices.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "termbridge",
	Short:         "Browser terminal bridge for local shells and SSH devices",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, devicesCmd, hashTokenCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
