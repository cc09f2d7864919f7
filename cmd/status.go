package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autonome-labs/autonome/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status and financial metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status, err := env.Ledger.GetState(ctx, model.StateStatus)
		if err != nil {
			return err
		}
		if status == "" {
			status = "stopped"
		}

		metrics, err := env.Ledger.Metrics(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Agent status:    %s\n", status)
		fmt.Fprintf(out, "Revenue:         $%.2f (%d requests)\n", metrics.TotalRevenue, metrics.TotalRequests)
		fmt.Fprintf(out, "Expenses:        $%.2f (%d skill calls)\n", metrics.TotalExpenses, metrics.TotalSkillCalls)
		fmt.Fprintf(out, "Profit:          $%.2f\n", metrics.TotalProfit)
		fmt.Fprintf(out, "Reinvested:      $%.2f (%d swaps)\n", metrics.ReinvestedAmount, metrics.TotalReinvestments)
		fmt.Fprintf(out, "Unreinvested:    $%.2f\n", metrics.Unreinvested())
		fmt.Fprintf(out, "Wallet balances: %s ETH / %s USDC\n", metrics.CurrentEthBalance, metrics.CurrentUsdcBalance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
