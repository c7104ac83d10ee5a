package main

import (
	"context"
	"fmt"

	"github.com/lox/dealproof/cmd/dealproof/shared"
	"github.com/lox/dealproof/internal/backend"
	"github.com/lox/dealproof/internal/config"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/verify"
)

// dial connects to the configured backend. The returned source retries
// transport faults with the configured backoff.
func dial(ctx context.Context, cfg *config.Config, loggers *shared.Loggers, server string) (*backend.Client, backend.Source, error) {
	url := cfg.Backend.URL
	if server != "" {
		url = server
	}
	client := backend.NewClient(url, loggers.Transport, cfg.Backend.Timeout)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return client, backend.NewRetrying(client, cfg.Backend.Retry(), loggers.Log), nil
}

// verifyRound runs a one-shot verification of a round that has already
// concluded on the dealer's side.
func verifyRound(ctx context.Context, src backend.Source, cfg *config.Config, loggers *shared.Loggers, id round.ID) (*verify.Engine, verify.Status, error) {
	engine := verify.New(src, loggers.Log, verify.Options{RevealDelay: cfg.Reveal.Delay})
	if err := engine.ApplyPhase(round.Phase{Round: id, Stage: round.River, Concluded: true}); err != nil {
		return nil, verify.Pending, err
	}
	if err := engine.Sync(ctx, id); err != nil {
		return nil, verify.Pending, err
	}
	status, err := engine.CrossCheck(ctx, id)
	return engine, status, err
}

// proofName is the default proof file name for id.
func proofName(id round.ID) string {
	return fmt.Sprintf("round-%d.toml", id)
}
