package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github/martinmaurice/llmgate/pkg/ledger"
)

func newPaymentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Record and list payments",
	}

	cmd.AddCommand(
		newPaymentRecordCmd(a),
		newPaymentListCmd(a),
	)

	return cmd
}

func newPaymentRecordCmd(a *app) *cobra.Command {
	var p ledger.Payment

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a payment, upgrading the account when a tier is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLedger(cmd.Context(), func(svc *ledger.Service) error {
				recorded, err := svc.RecordPayment(cmd.Context(), p)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "recorded payment %s\n", recorded.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.AccountID, "account", "", "account id")
	cmd.Flags().Int64Var(&p.Amount, "amount", 0, "amount in minor currency units")
	cmd.Flags().StringVar(&p.Currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringVar(&p.Tier, "tier", "", "tier purchased, if any")
	cmd.Flags().StringVar(&p.Reference, "reference", "", "external reference such as an invoice id")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newPaymentListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <account-id>",
		Short: "List the payments of an account, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(cmd.Context(), func(svc *ledger.Service) error {
				payments, err := svc.ListPayments(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), payments)
				}
				for _, p := range payments {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d %s\ttier=%s\tref=%s\n",
						p.CreatedAt.Format(time.RFC3339), p.ID, p.Amount, p.Currency, p.Tier, p.Reference)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the payments as JSON")

	return cmd
}
