package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lox/dealproof/cmd/dealproof/shared"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/proof"
	"github.com/lox/dealproof/internal/round"
)

// ExportCmd writes the proof document of a concluded round.
type ExportCmd struct {
	Round  uint64 `arg:"" help:"Round to export"`
	Out    string `short:"o" type:"path" help:"Output file; .json selects JSON, anything else TOML (default round-<id>.toml)"`
	Server string `help:"Backend websocket URL (overrides config)"`
}

func (c *ExportCmd) Run(g *Globals) error {
	cfg, loggers, err := g.setup()
	if err != nil {
		return err
	}
	defer loggers.Close()
	ctx := shared.SetupSignalHandler(loggers.Log)

	client, src, err := dial(ctx, cfg, loggers, c.Server)
	if err != nil {
		return err
	}
	defer client.Close()

	id := round.ID(c.Round)
	engine, status, verr := verifyRound(ctx, src, cfg, loggers, id)
	if engine == nil {
		return verr
	}
	printVerdict(os.Stdout, id, status, verr)

	p, err := engine.ExportProof(id)
	if errors.Is(err, fault.ErrUnavailable) {
		return fmt.Errorf("round %d has not been revealed yet", id)
	}
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = proofName(id)
	}
	if err := proof.WriteFile(out, p); err != nil {
		return err
	}
	loggers.Log.Info().Uint64("round", uint64(id)).Str("file", out).Str("status", p.Status).Msg("Proof exported")
	return nil
}
