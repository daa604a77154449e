package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/telecloud/internal/auth"
)

var tokenTTL time.Duration

// tokenCmd mints a bearer token for local testing; production tokens come
// from the identity provider sharing auth.jwt_secret.
var tokenCmd = &cobra.Command{
	Use:   "token <owner-id>",
	Short: "Issue a signed bearer token for an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			return fmt.Errorf("auth.jwt_secret is required")
		}
		token, expiresAt, err := auth.GenerateToken(args[0], cfg.Auth.JWTSecret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
