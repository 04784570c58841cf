package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github/martinmaurice/llmgate/pkg/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Issue a bearer token for an account, signed with APP_AUTH_TOKEN_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.IssueToken(args[0], a.tokenSecret, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")

	return cmd
}
