package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/graystore/internal/api"
)

// newTokenCmd creates the "graystore token" subcommand.
func newTokenCmd(load loadFunc) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.API.JWT.AccessTokenTTL) * time.Minute
			}
			token, err := api.IssueToken(cfg.API.JWT.Secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "subject recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.jwt.access_token_ttl)")
	return cmd
}
