package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lox/dealproof/cmd/dealproof/shared"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/proof"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/verify"
)

// VerifyCmd checks one round, online or from an exported proof.
type VerifyCmd struct {
	Round  uint64 `arg:"" optional:"" help:"Round to verify against the backend"`
	Proof  string `type:"existingfile" help:"Verify an exported proof file offline"`
	Server string `help:"Backend websocket URL (overrides config)"`
}

func (c *VerifyCmd) Run(g *Globals) error {
	if c.Proof != "" {
		return verifyProofFile(os.Stdout, c.Proof)
	}
	if c.Round == 0 {
		return errors.New("verify requires a round id or --proof")
	}

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
	_, status, err := verifyRound(ctx, src, cfg, loggers, id)
	printVerdict(os.Stdout, id, status, err)
	if status == verify.Failed || fault.IsIntegrity(err) {
		return fmt.Errorf("round %d failed verification", id)
	}
	return err
}

// verifyProofFile rechecks a proof document without contacting anyone.
func verifyProofFile(w io.Writer, path string) error {
	p, err := proof.ReadFile(path)
	if err != nil {
		return err
	}
	err = p.Check()
	status := verify.Verified
	if err != nil {
		status = verify.Failed
	}
	printVerdict(w, p.Round, status, err)
	fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("deck hash"), p.DeckHash)
	fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("commitment root"), p.CommitmentRoot)
	if p.Status != "" && p.Status != status.String() {
		fmt.Fprintf(w, "  %s\n", pendingStyle.Render(fmt.Sprintf("exporter recorded %q", p.Status)))
	}
	return err
}
