package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/config"
	stashboxhttp "github.com/sagarc03/stashbox/http"
)

var tokenCmd = &cobra.Command{
	Use:   "token <owner-id>",
	Short: "Issue an owner bearer token",
	Long: `Issue a JWT that authenticates API calls as the given owner.

The token is signed with auth.jwt_secret and printed to stdout, ready
for 'stashbox-cli configure' or an Authorization: Bearer header.

Examples:
  # Token for owner u1, valid for a day
  stashbox token u1

  # Short-lived token
  stashbox token u1 --ttl 15m`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (env: STASHBOX_AUTH_JWT_SECRET)")
	}

	auth, err := stashboxhttp.NewOwnerAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("create owner auth: %w", err)
	}

	token, expiresAt, err := auth.Issue(args[0], tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	slog.Debug("issued token", "owner", args[0], "expires_at", expiresAt)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
