package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/lox/dealproof/cmd/dealproof/shared"
	"github.com/lox/dealproof/internal/backend"
	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/config"
	"github.com/lox/dealproof/internal/fixture"
	"github.com/lox/dealproof/internal/proof"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/verify"
)

// DemoCmd plays one synthetic round end to end: a local dealer serves the
// round over websocket and the client verifies it as it would a real table.
type DemoCmd struct {
	Round   uint64   `default:"1" help:"Round id"`
	Seed    int64    `default:"42" help:"Dealer RNG seed"`
	Players []string `default:"alice,bob,carol,dave" help:"Seated players, clockwise from seat 0"`
	Viewer  string   `default:"alice" help:"Player the client is seated as"`
	Fold    []string `default:"dave" help:"Players who fold on the flop"`
	Tamper  bool     `help:"Reveal a deck that differs from the committed one"`
	Out     string   `type:"path" help:"Export the proof to this file"`
}

func (c *DemoCmd) Run(g *Globals) error {
	cfg, loggers, err := g.setup()
	if err != nil {
		return err
	}
	defer loggers.Close()
	return c.run(shared.SetupSignalHandler(loggers.Log), cfg, loggers, os.Stdout)
}

func (c *DemoCmd) run(ctx context.Context, cfg *config.Config, loggers *shared.Loggers, out io.Writer) error {
	id := round.ID(c.Round)
	viewer := round.PlayerID(c.Viewer)
	players := make([]round.PlayerID, len(c.Players))
	for i, p := range c.Players {
		players[i] = round.PlayerID(p)
	}
	if len(players) < 2 {
		return errors.New("demo needs at least two players")
	}
	if !slices.Contains(players, viewer) {
		return fmt.Errorf("viewer %q is not seated", viewer)
	}

	dealer := fixture.NewDealer(fixture.Options{
		Round: id,
		Seed:  c.Seed,
		Seats: fixture.Seats(players...),
		Now:   time.Now().UTC(),
	})
	mem := backend.NewMemory()
	mem.Add(dealer, &viewer)
	if c.Tamper {
		mem.TamperMetadata(id, swapFirstCards)
	}

	handler := backend.NewHandler(mem, loggers.Transport)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.Log.Error().Err(err).Msg("Dealer server stopped")
		}
	}()
	defer func() {
		handler.Close()
		_ = srv.Close()
	}()

	client, src, err := dial(ctx, cfg, loggers, "ws://"+ln.Addr().String())
	if err != nil {
		return err
	}
	defer client.Close()
	if err := waitFor(ctx, func() bool { return handler.Connections() > 0 }); err != nil {
		return err
	}

	engine := verify.New(src, loggers.Log, verify.Options{RevealDelay: cfg.Reveal.Delay})
	w := newWatcher(engine, viewer, out, loggers.Log)
	verdicts := make(chan verify.Status, 1)
	w.onVerdict = func(rid round.ID, s verify.Status) {
		if rid == id {
			verdicts <- s
		}
	}

	phases := make(chan round.Phase, 64)
	client.OnPhase(forward(phases, loggers))
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.run(wctx, phases)

	dealer.DealOpening()
	handler.PublishPhase(dealer.Phase(false))
	for _, stage := range []round.Stage{round.Flop, round.Turn, round.River} {
		dealer.DealTo(stage)
		if stage == round.Flop {
			for _, p := range c.Fold {
				dealer.Fold(round.PlayerID(p))
			}
		}
		handler.PublishPhase(dealer.Phase(false))
	}

	var contestants []round.PlayerID
	for _, p := range players {
		if !slices.Contains(c.Fold, string(p)) {
			contestants = append(contestants, p)
		}
	}
	mem.Reveal(id)
	handler.PublishPhase(dealer.Phase(true, contestants...))

	var status verify.Status
	select {
	case status = <-verdicts:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := waitFor(ctx, func() bool {
		order, _ := engine.RevealProgress(id)
		return w.shownCount(id) >= len(order)
	}); err != nil {
		return err
	}

	if c.Out != "" {
		p, err := engine.ExportProof(id)
		if err != nil {
			return err
		}
		if err := proof.WriteFile(c.Out, p); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", dimStyle.Render("proof written to"), c.Out)
	}
	if status == verify.Failed {
		return fmt.Errorf("round %d failed verification", id)
	}
	return nil
}

// swapFirstCards swaps the top two revealed cards and recommits the deck hash
// to the swapped order, the way a dishonest dealer would cover its tracks.
func swapFirstCards(md *round.RngMetadata) {
	if len(md.ShuffledDeck) < 2 {
		return
	}
	md.ShuffledDeck[0], md.ShuffledDeck[1] = md.ShuffledDeck[1], md.ShuffledDeck[0]
	md.DeckHash = commit.DeckHash(md.ShuffledDeck)
}

// waitFor polls cond until it holds or ctx ends.
func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
