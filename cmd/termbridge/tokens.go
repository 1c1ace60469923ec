package main

import (
	"fmt"

	"github.com/gluk-w/termbridge/internal/auth"
	"github.com/spf13/cobra"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an API token for TERMBRIDGE_AUTH_TOKEN_HASH",
	Long: `Print the bcrypt hash of an API token. Without an argument a random token
is generated and printed along with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			t, err := auth.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			token = t
			fmt.Fprintf(out, "token: %s\n", token)
		}

		hash, err := auth.HashToken(token)
		if err != nil {
			return fmt.Errorf("hash token: %w", err)
		}
		fmt.Fprintf(out, "TERMBRIDGE_AUTH_TOKEN_HASH='%s'\n", hash)
		return nil
	},
}
