package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/dealproof/internal/proof"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/verify"
	"github.com/lox/dealproof/internal/visibility"
)

// watcher drives an engine from a stream of phase signals.
type watcher struct {
	engine    *verify.Engine
	viewer    round.PlayerID
	logger    zerolog.Logger
	exportDir string

	// pollInterval and polls bound re-polling of a concluded round whose
	// seed is still withheld.
	pollInterval time.Duration
	polls        int

	onVerdict func(round.ID, verify.Status)

	mu    sync.Mutex
	out   io.Writer
	shown map[round.ID]int
}

func newWatcher(engine *verify.Engine, viewer round.PlayerID, out io.Writer, logger zerolog.Logger) *watcher {
	w := &watcher{
		engine:       engine,
		viewer:       viewer,
		logger:       logger,
		out:          out,
		pollInterval: 500 * time.Millisecond,
		polls:        20,
		shown:        make(map[round.ID]int),
	}
	engine.OnDisclose(w.disclosed)
	return w
}

func (w *watcher) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

// run consumes phases until ctx ends or the channel closes.
func (w *watcher) run(ctx context.Context, phases <-chan round.Phase) {
	for {
		select {
		case <-ctx.Done():
			return
		case phase, ok := <-phases:
			if !ok {
				return
			}
			w.handle(ctx, phase)
		}
	}
}

func (w *watcher) handle(ctx context.Context, phase round.Phase) {
	if err := w.engine.ApplyPhase(phase); err != nil {
		return
	}
	if err := w.engine.Sync(ctx, phase.Round); err != nil {
		return
	}

	res := w.engine.VisiblePositions(w.viewer)
	w.printf("%s %-8s board %s  hand %s\n",
		headerStyle.Render(fmt.Sprintf("Round %d", phase.Round)),
		phase.Stage,
		renderCards(cardsFor(res, visibility.Community, nil)),
		renderCards(cardsFor(res, visibility.Own, nil)),
	)
	if !phase.Concluded {
		return
	}

	status, err := w.settle(ctx, phase.Round)
	w.mu.Lock()
	printVerdict(w.out, phase.Round, status, err)
	w.mu.Unlock()

	if status.Final() && w.exportDir != "" {
		w.export(phase.Round)
	}
	if w.onVerdict != nil {
		w.onVerdict(phase.Round, status)
	}
}

// settle cross-checks a concluded round, re-polling while the dealer still
// withholds the seed.
func (w *watcher) settle(ctx context.Context, id round.ID) (verify.Status, error) {
	for attempt := 0; ; attempt++ {
		status, err := w.engine.CrossCheck(ctx, id)
		if status.Final() || err != nil || attempt >= w.polls || w.engine.Round() != id {
			return status, err
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *watcher) export(id round.ID) {
	p, err := w.engine.ExportProof(id)
	if err != nil {
		w.logger.Warn().Err(err).Uint64("round", uint64(id)).Msg("Cannot export proof")
		return
	}
	path := filepath.Join(w.exportDir, proofName(id))
	if err := proof.WriteFile(path, p); err != nil {
		w.logger.Error().Err(err).Str("file", path).Msg("Failed to write proof")
		return
	}
	w.logger.Info().Uint64("round", uint64(id)).Str("file", path).Msg("Proof exported")
}

// disclosed prints a contestant's hole cards once their reveal delay passes.
func (w *watcher) disclosed(id round.ID, player round.PlayerID, slot int) {
	if w.engine.Round() != id {
		return
	}
	res := w.engine.VisiblePositions(w.viewer)
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "  %s %s shows %s\n",
		dimStyle.Render(fmt.Sprintf("#%d", slot+1)),
		player,
		renderCards(cardsFor(res, visibility.Showdown, &player)),
	)
	w.shown[id]++
}

// shownCount returns how many showdown hands of id have been printed.
func (w *watcher) shownCount(id round.ID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shown[id]
}
