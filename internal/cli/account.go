package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github/martinmaurice/llmgate/pkg/ledger"
)

func newQuotaCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "quota <account-id>",
		Short: "Show the quota of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(cmd.Context(), func(svc *ledger.Service) error {
				q, err := svc.GetQuota(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), q)
				}
				writeQuota(cmd.OutOrStdout(), q)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quota as JSON")

	return cmd
}

func newTierCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tier <account-id> <tier>",
		Short: "Move an account to another tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(cmd.Context(), func(svc *ledger.Service) error {
				q, err := svc.SetTier(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				writeQuota(cmd.OutOrStdout(), q)
				return nil
			})
		},
	}
}

func newStatusCmd(a *app, use, short string, status ledger.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(cmd.Context(), func(svc *ledger.Service) error {
				q, err := svc.SetStatus(cmd.Context(), args[0], status)
				if err != nil {
					return err
				}
				writeQuota(cmd.OutOrStdout(), q)
				return nil
			})
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <account-id>",
		Short: "Reset the used request count, usually at a billing cycle boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(cmd.Context(), func(svc *ledger.Service) error {
				q, err := svc.ResetUsage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				writeQuota(cmd.OutOrStdout(), q)
				return nil
			})
		},
	}
}

func writeQuota(w io.Writer, q ledger.Quota) {
	_, _ = fmt.Fprintf(w, "%s\ttier=%s\tstatus=%s\tused=%d\tlimit=%d\tremaining=%d\n",
		q.AccountID, q.Tier, q.Status, q.Used, q.Limit, q.Remaining)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
