package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/autonome-labs/autonome/internal/bus"
	"github.com/autonome-labs/autonome/internal/cost"
	"github.com/autonome-labs/autonome/internal/ledger"
	"github.com/autonome-labs/autonome/pkg/pinion"
)

// agentEnv holds the wired core of the agent shared by all subcommands.
type agentEnv struct {
	Ledger ledger.Ledger
	Bus    *bus.Bus
	Skills pinion.Client
	Rates  cost.Rates
}

// initAgent opens the ledger, runs migrations, and wires the marketplace
// client from config.
func initAgent(ctx context.Context) (*agentEnv, error) {
	lg, err := openLedger(ctx)
	if err != nil {
		return nil, err
	}

	skills := pinion.NewClient(cfg.Pinion.APIKey,
		pinion.WithBaseURL(cfg.Pinion.BaseURL),
		pinion.WithNetwork(cfg.Pinion.Network),
	)

	return &agentEnv{
		Ledger: lg,
		Bus:    bus.New(0),
		Skills: skills,
		Rates:  cost.DefaultRates().Merge(cfg.Pricing.SkillRates),
	}, nil
}

// openLedger selects the backend from config and migrates it.
func openLedger(ctx context.Context) (ledger.Ledger, error) {
	var (
		lg  ledger.Ledger
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		lg, err = ledger.NewSQLite(cfg.Store.Path)
	case "postgres":
		lg, err = ledger.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := lg.Migrate(ctx); err != nil {
		_ = lg.Close()
		return nil, err
	}
	return lg, nil
}

func (e *agentEnv) Close() {
	_ = e.Ledger.Close()
}
