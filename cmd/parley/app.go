// ABOUTME: Shared setup for data commands: config, logger, store, and the agent service
// ABOUTME: Also holds the repeatable string flag used by several subcommands

package main

import (
	"fmt"
	"log/slog"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/store"
)

// app holds what every data command needs.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.SQLiteStore
	env        *config.Environment
	agents     *agent.Service
}

func openApp() (*app, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	var opts []store.Option
	if cfg.Database.Secret != "" {
		sealer, err := store.NewSealer(cfg.Database.Secret)
		if err != nil {
			return nil, fmt.Errorf("creating sealer: %w", err)
		}
		opts = append(opts, store.WithSealer(sealer))
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	agentOpts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithPricing(cfg.PricingTable()),
		agent.WithLimits(cfg.Agent.MaxSteps, cfg.Agent.MaxOutputTokens),
		agent.WithPersistTimeout(cfg.Agent.PersistTimeout),
	}
	if cfg.Agent.Instructions != "" {
		instructions, err := agent.ParseInstructions(cfg.Agent.Instructions)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("agent.instructions: %w", err)
		}
		agentOpts = append(agentOpts, agent.WithInstructions(instructions))
	}

	env := config.NewEnvironment(cfg)
	logger.Debug("config loaded",
		"config", configPath,
		"database", cfg.Database.Path,
		"sealed_keys", cfg.Database.Secret != "",
	)

	return &app{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		store:      st,
		env:        env,
		agents:     agent.NewService(st, env, agentOpts...),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("closing store", "error", err)
	}
}

// stringsFlag collects a repeatable flag.
type stringsFlag []string

func (s *stringsFlag) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
