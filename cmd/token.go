// cmd/token.go
package cmd

import (
	"fmt"
	"os"

	"github.com/markb/workhub/internal/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <identity>",
	Short: "Issue an access token",
	Long: `Issues a participant token for <identity> signed with the configured JWT secret.
With --service the token carries the service role required by the stats and admin endpoints.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.JWTSecret == defaultJWTSecret {
			fmt.Fprintln(os.Stderr, "Warning: Using default JWT secret. Set WORKHUB_JWT_SECRET in production.")
		}

		svc := auth.NewService(cfg.JWTSecret)
		service, _ := cmd.Flags().GetBool("service")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		var token string
		if service {
			token, err = svc.IssueServiceToken(args[0])
		} else {
			token, err = svc.IssueToken(args[0], ttl)
		}
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Bool("service", false, "Issue a non-expiring service token")
	tokenCmd.Flags().Duration("ttl", auth.DefaultTokenTTL, "Token lifetime for participant tokens (negative for no expiry)")
}
