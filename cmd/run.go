package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/autonome-labs/autonome/internal/engine"
	"github.com/autonome-labs/autonome/internal/intel"
	"github.com/autonome-labs/autonome/internal/model"
	"github.com/autonome-labs/autonome/internal/notify"
	"github.com/autonome-labs/autonome/internal/server"
)

var runPort int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent: paid API, dashboard, and profit engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		synth := intel.NewSynthesizer(env.Skills, env.Ledger, env.Bus, env.Rates)

		profitEngine := engine.New(engine.Config{
			Interval:  time.Duration(cfg.Agent.CheckIntervalSecs) * time.Second,
			Threshold: cfg.Agent.ProfitThreshold,
			Fraction:  cfg.Agent.ReinvestFraction,
			Address:   cfg.Agent.Address,
			Network:   cfg.Pinion.Network,
		}, env.Skills, env.Ledger, env.Bus, env.Rates)

		port := runPort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := server.New(server.Config{
			Addr:           fmt.Sprintf(":%d", port),
			IntelPrice:     cfg.Pricing.IntelPrice,
			CheckPrice:     cfg.Pricing.CheckPrice,
			RateLimit:      rate.Limit(cfg.Server.RateLimit),
			RateBurst:      cfg.Server.RateBurst,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, env.Ledger, synth, env.Bus)

		notifier := notify.New(cfg.Notify.WebhookURL, env.Bus)

		// Mark the agent running for the dashboard.
		now := time.Now().UTC().Format(time.RFC3339)
		if err := env.Ledger.SetState(ctx, model.StateStatus, "running"); err != nil {
			return err
		}
		if err := env.Ledger.SetState(ctx, model.StateStartedAt, now); err != nil {
			return err
		}
		env.Bus.Publish(model.EventAgentStarted, map[string]any{"startedAt": now})
		zap.L().Info("agent starting",
			zap.String("wallet", cfg.Agent.Address),
			zap.Int("port", port))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error { return profitEngine.Run(gctx) })
		g.Go(func() error { return notifier.Run(gctx) })

		err = g.Wait()

		// Best effort: the process is exiting either way.
		stopCtx := cmd.Context()
		stoppedAt := time.Now().UTC().Format(time.RFC3339)
		if serr := env.Ledger.SetState(stopCtx, model.StateStatus, "stopped"); serr != nil {
			zap.L().Warn("failed to mark agent stopped", zap.Error(serr))
		}
		if serr := env.Ledger.SetState(stopCtx, model.StateStoppedAt, stoppedAt); serr != nil {
			zap.L().Warn("failed to record stop time", zap.Error(serr))
		}
		zap.L().Info("agent stopped")
		return err
	},
}

func init() {
	runCmd.Flags().IntVar(&runPort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(runCmd)
}
