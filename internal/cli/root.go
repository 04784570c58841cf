package cli

import (
	"github.com/spf13/cobra"

	"github/martinmaurice/llmgate/pkg/ledger"
)

func Execute() error {
	return newRootCmd(wireApp).Execute()
}

func newRootCmd(wire func(envFile string) (*app, error)) *cobra.Command {
	var (
		envFile string
		a       *app
	)

	rootCmd := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operate the LLM gateway usage ledger",
		Long:          "gatewayctl inspects and changes account quotas, records payments, applies ledger migrations and issues account tokens.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			wired, err := wire(envFile)
			if err != nil {
				return err
			}
			*a = *wired
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load before reading APP_* variables")

	a = &app{}
	rootCmd.AddCommand(
		newQuotaCmd(a),
		newTierCmd(a),
		newStatusCmd(a, "suspend", "Suspend an account", ledger.StatusSuspended),
		newStatusCmd(a, "activate", "Reactivate a suspended account", ledger.StatusActive),
		newResetCmd(a),
		newPaymentCmd(a),
		newMigrateCmd(a),
		newTokenCmd(a),
	)

	return rootCmd
}
