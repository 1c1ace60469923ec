package main

import (
	"fmt"
	"time"

	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/termbridge"
	"github.com/spf13/cobra"
)

var sweepMinAgeFlag time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep-credentials",
	Short: "Remove ephemeral SSH keys left behind by a crashed server",
	Long: `Remove the key directories of stopped servers from TERMBRIDGE_CREDENTIAL_DIR.
A running server touches its directory every minute, so the default --min-age
never removes the keys of a live server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		config.Cfg.LogPath = ""
		logging.Init()

		base := config.Cfg.CredentialDir
		n, err := termbridge.SweepStaleCredentialDirs(base, "", sweepMinAgeFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale key directories from %s\n", n, base)
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepMinAgeFlag, "min-age", staleKeyDirAge, "only remove directories idle for longer than this")
}
