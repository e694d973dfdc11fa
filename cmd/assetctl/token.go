package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"assetpipe/internal/server/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a local access token",
	Long: `Mint an HS256 access token for a local or test server.

Production tokens come from the account service; this is for development only.

Example:
  export ASSETPIPE_TOKEN=$(assetctl token --secret dev-secret-change-me --user u-1)`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("secret", "", "Signing secret (or set JWT_SECRET)")
	tokenCmd.Flags().String("user", "local", "User id")
	tokenCmd.Flags().String("role", "operator", "Role claim")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	user, _ := cmd.Flags().GetString("user")
	role, _ := cmd.Flags().GetString("role")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("--secret or JWT_SECRET is required")
	}

	token, exp, err := auth.SignAccessToken(user, user, role, ttl, secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	fmt.Println(token)
	return nil
}
