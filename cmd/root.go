package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/autonome-labs/autonome/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "autonome",
	Short: "Autonomous economic agent on Base L2",
	Long:  "Earns micropayments selling wallet intelligence, spends on metered marketplace skills, and reinvests profit into ETH via an on-chain swap loop.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
