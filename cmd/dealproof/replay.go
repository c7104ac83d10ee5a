package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/verify"
)

// ReplayCmd reconstructs a deck from its revealed inputs.
type ReplayCmd struct {
	Entropy  string  `required:"" help:"Raw random bytes as hex"`
	Seed     uint64  `required:"" help:"Revealed time seed"`
	Round    *uint64 `help:"Round id; prints per-position commitments and their root"`
	DeckHash string  `name:"deck-hash" help:"Committed deck hash to compare against"`
}

func (c *ReplayCmd) Run(_ *Globals) error {
	return c.run(os.Stdout)
}

func (c *ReplayCmd) run(w io.Writer) error {
	raw, err := hex.DecodeString(c.Entropy)
	if err != nil {
		return fmt.Errorf("invalid entropy: %w", err)
	}
	seed := c.Seed
	cards, err := deck.Reconstruct(raw, &seed)
	if err != nil {
		return err
	}

	got := commit.DeckHash(cards[:])
	fmt.Fprintln(w, headerStyle.Render("Replayed deck"))
	printDeck(w, cards[:])
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("deck hash"), got)

	if c.Round != nil {
		hashes, err := commit.CommitDeck(*c.Round, cards)
		if err != nil {
			return err
		}
		for i, h := range hashes {
			fmt.Fprintf(w, "  %s %-3s %s\n", dimStyle.Render(fmt.Sprintf("%2d", i)), cards[i], h)
		}
		root, err := commit.CommitmentRoot(hashes[:])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render("commitment root"), root)
	}

	if c.DeckHash == "" {
		return nil
	}
	want, err := commit.ParseHash(c.DeckHash)
	if err != nil {
		return fmt.Errorf("invalid deck hash: %w", err)
	}
	var id uint64
	if c.Round != nil {
		id = *c.Round
	}
	if got != want {
		err := fault.Integrity(fault.DeckHashMismatch, id, "replayed deck hashes to %s, committed %s", got, want)
		fmt.Fprintln(w, renderStatus(verify.Failed))
		return err
	}
	fmt.Fprintln(w, renderStatus(verify.Verified))
	return nil
}
