package main

import (
	"fmt"
	"os"
	"time"

	"backend-runtracker/internal/auth"

	"github.com/spf13/cobra"
)

func newTokenCommand(_ *rootOptions) *cobra.Command {
	var runnerID, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a runner bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET required")
			}
			token, err := auth.IssueToken(secret, runnerID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&runnerID, "runner", "", "runner id (required)")
	_ = cmd.MarkFlagRequired("runner")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret, defaults to $JWT_SECRET")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	return cmd
}
