package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/autonome-labs/autonome/internal/cost"
	"github.com/autonome-labs/autonome/internal/model"
)

var seedRequests int

// Demo reinvestments, matching what a couple of completed swaps look like.
var seedReinvestments = []struct {
	Amount float64
	TxRef  string
}{
	{0.40, "0x7f3a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a"},
	{0.42, "0xa1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2"},
}

// seedCmd populates the ledger with synthetic earning activity so the
// dashboard has something to show before real traffic arrives.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the ledger with demo transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		skills := []string{
			cost.SkillBalance, cost.SkillPrice, cost.SkillFund, cost.SkillEnrich, cost.SkillChat,
		}
		for i := 0; i < seedRequests; i++ {
			payer := fmt.Sprintf("0x%040x", i+1)
			if err := env.Ledger.RecordRevenue(ctx, cfg.Pricing.IntelPrice, payer); err != nil {
				return err
			}
			for _, skill := range skills {
				if err := env.Ledger.RecordExpense(ctx, skill, env.Rates.For(skill)); err != nil {
					return err
				}
			}
		}

		var reinvested float64
		for _, r := range seedReinvestments {
			if err := env.Ledger.RecordReinvestment(ctx, r.Amount, r.TxRef); err != nil {
				return err
			}
			reinvested += r.Amount
		}

		// Agent state so the dashboard shows a live-looking agent.
		startedAt := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
		states := map[string]string{
			model.StateStatus:      "running",
			model.StateStartedAt:   startedAt,
			model.StateEthBalance:  "0.00042",
			model.StateUsdcBalance: "46.18",
		}
		for key, value := range states {
			if err := env.Ledger.SetState(ctx, key, value); err != nil {
				return err
			}
		}

		metrics, err := env.Ledger.Metrics(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out,
			"Seeded %d requests: revenue $%.2f, expenses $%.2f, profit $%.2f\n",
			seedRequests, metrics.TotalRevenue, metrics.TotalExpenses, metrics.TotalProfit)
		fmt.Fprintf(out,
			"Reinvestments:    %d swaps ($%.2f)\n", len(seedReinvestments), reinvested)
		fmt.Fprintf(out,
			"Wallet balances:  %s ETH / %s USDC\n",
			metrics.CurrentEthBalance, metrics.CurrentUsdcBalance)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedRequests, "requests", 10, "number of paid requests to simulate")
	rootCmd.AddCommand(seedCmd)
}
