package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/curalink/chatkit/internal/devserver"
)

var (
	flagTokenSecret string
	flagTokenUser   string
	flagTokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the development server",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&flagTokenSecret, "secret", "chatkit-dev", "token signing secret")
	tokenCmd.Flags().StringVar(&flagTokenUser, "user", "", "user ID to embed in the token")
	tokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, _ []string) error {
	token, err := devserver.MintToken([]byte(flagTokenSecret), flagTokenUser, flagTokenTTL)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
