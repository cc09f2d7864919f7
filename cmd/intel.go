package main

import (
	"encoding/json"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/autonome-labs/autonome/internal/intel"
)

var intelAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var intelCmd = &cobra.Command{
	Use:   "intel <address>",
	Short: "Generate a one-off intelligence report for a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]
		if !intelAddress.MatchString(address) {
			return eris.Errorf("invalid wallet address %q", address)
		}

		ctx := cmd.Context()
		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		synth := intel.NewSynthesizer(env.Skills, env.Ledger, env.Bus, env.Rates)
		report, err := synth.Synthesize(ctx, address)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(intelCmd)
}
