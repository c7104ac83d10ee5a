package main

import (
	"fmt"
	"os"

	"github.com/lox/dealproof/cmd/dealproof/shared"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/verify"
)

// WatchCmd follows phase pushes from the backend.
type WatchCmd struct {
	Viewer    string `required:"" help:"Player id this client is seated as"`
	Server    string `help:"Backend websocket URL (overrides config)"`
	ExportDir string `name:"export-dir" type:"path" help:"Write a proof for every settled round into this directory"`
}

func (c *WatchCmd) Run(g *Globals) error {
	cfg, loggers, err := g.setup()
	if err != nil {
		return err
	}
	defer loggers.Close()
	ctx := shared.SetupSignalHandler(loggers.Log)

	if c.ExportDir != "" {
		if err := os.MkdirAll(c.ExportDir, 0o755); err != nil {
			return fmt.Errorf("failed to create export dir: %w", err)
		}
	}

	client, src, err := dial(ctx, cfg, loggers, c.Server)
	if err != nil {
		return err
	}
	defer client.Close()

	engine := verify.New(src, loggers.Log, verify.Options{RevealDelay: cfg.Reveal.Delay})
	w := newWatcher(engine, round.PlayerID(c.Viewer), os.Stdout, loggers.Log)
	w.exportDir = c.ExportDir

	phases := make(chan round.Phase, 64)
	client.OnPhase(forward(phases, loggers))

	loggers.Log.Info().Str("viewer", c.Viewer).Str("backend", cfg.Backend.URL).Msg("Watching table")
	w.run(ctx, phases)
	return nil
}

// forward hands phases from the client's read loop to the watcher without
// blocking it. A full queue drops the phase; the next one carries the round
// state forward.
func forward(phases chan<- round.Phase, loggers *shared.Loggers) func(round.Phase) {
	return func(p round.Phase) {
		select {
		case phases <- p:
		default:
			loggers.Log.Warn().Uint64("round", uint64(p.Round)).Str("stage", p.Stage.String()).Msg("Phase queue full, dropping")
		}
	}
}
