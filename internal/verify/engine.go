// Package verify ties provenance, replay, visibility and reveal pacing into
// the per-round verification flow a client runs against the dealer.
package verify

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lox/dealproof/internal/backend"
	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/inference"
	"github.com/lox/dealproof/internal/proof"
	"github.com/lox/dealproof/internal/provenance"
	"github.com/lox/dealproof/internal/reveal"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/visibility"
)

// Options tunes an Engine. Zero values pick defaults.
type Options struct {
	Clock       quartz.Clock
	RevealDelay time.Duration
}

// verdict is a cached final result for the current round.
type verdict struct {
	status Status
	err    error
}

// Engine is the client-side verifier for one table. It tracks a single
// current round; moving to a new round discards the old round's provenance,
// metadata, verdict and reveal timers together.
type Engine struct {
	source backend.Source
	store  *provenance.Store
	reveal *reveal.Scheduler
	clock  quartz.Clock
	logger zerolog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	phase    round.Phase
	metadata *round.RngMetadata
	verdict  *verdict
}

// New creates an engine reading from src.
func New(src backend.Source, logger zerolog.Logger, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	logger = logger.With().Str("component", "verify").Logger()
	return &Engine{
		source: src,
		store:  provenance.NewStore(logger),
		reveal: reveal.NewScheduler(opts.Clock, opts.RevealDelay, logger),
		clock:  opts.Clock,
		logger: logger,
	}
}

// OnDisclose registers a callback for staged showdown disclosures.
func (e *Engine) OnDisclose(fn reveal.DiscloseFunc) {
	e.reveal.OnDisclose(fn)
}

// Round returns the current round id.
func (e *Engine) Round() round.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase.Round
}

// Phase returns the last applied phase.
func (e *Engine) Phase() round.Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// Snapshot returns the current provenance snapshot.
func (e *Engine) Snapshot() *provenance.Snapshot {
	return e.store.Snapshot()
}

// ApplyPhase consumes a game-phase signal. A newer round id resets all
// round-scoped state; an older one is rejected as stale. Reaching a showdown
// starts staged disclosure.
func (e *Engine) ApplyPhase(phase round.Phase) error {
	e.mu.Lock()
	if phase.Round != e.phase.Round {
		if err := e.store.Reset(phase.Round); err != nil {
			e.mu.Unlock()
			e.logger.Warn().Err(err).Uint64("round", uint64(phase.Round)).Msg("Ignoring phase for stale round")
			return err
		}
		e.reveal.Reset(phase.Round)
		e.metadata = nil
		e.verdict = nil
		e.logger.Info().Uint64("round", uint64(phase.Round)).Msg("New round")
	}
	e.phase = phase
	e.mu.Unlock()

	if phase.WentToShowdown() {
		order := e.reveal.Start(phase)
		e.logger.Info().
			Uint64("round", uint64(phase.Round)).
			Interface("order", order).
			Msg("Showdown")
	}
	return nil
}

// Sync fetches metadata and provenance for id in parallel and merges them.
// Transport failures leave the store untouched.
func (e *Engine) Sync(ctx context.Context, id round.ID) error {
	if err := e.checkCurrent(id); err != nil {
		return err
	}

	var (
		md      round.RngMetadata
		records []round.CardProvenance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		md, err = e.source.RngMetadata(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = e.source.CardProvenance(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.Warn().Err(err).Uint64("round", uint64(id)).Msg("Sync failed")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase.Round != id {
		return fault.Domain(fault.StaleRound, "round %d ended during sync", id)
	}
	if err := e.store.Ingest(records); err != nil {
		e.logIngest(id, err)
		return err
	}
	if md.Round == id {
		e.metadata = &md
	}
	return nil
}

func (e *Engine) logIngest(id round.ID, err error) {
	ev := e.logger.Warn()
	if fault.IsIntegrity(err) {
		ev = e.logger.Error()
	}
	ev.Err(err).Uint64("round", uint64(id)).Msg("Rejected provenance batch")
}

func (e *Engine) checkCurrent(id round.ID) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.phase.Round != id {
		return fault.Domain(fault.StaleRound, "round %d is not the current round %d", id, e.phase.Round)
	}
	return nil
}

// Verify returns the shuffle verdict for id. It is Pending until the round
// has concluded and the dealer has revealed its seed and deck. A Failed
// verdict is returned with its *fault.IntegrityError, logged, cached for the
// round and never retried. Concurrent calls for the same round share one
// computation.
func (e *Engine) Verify(ctx context.Context, id round.ID) (Status, error) {
	v, err, _ := e.group.Do(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		return e.verify(ctx, id)
	})
	return v.(Status), err
}

func (e *Engine) verify(ctx context.Context, id round.ID) (Status, error) {
	e.mu.RLock()
	current := e.phase.Round == id
	concluded := current && e.phase.Concluded
	cached := e.verdict
	md := e.metadata
	e.mu.RUnlock()

	if !current || !concluded {
		return Pending, nil
	}
	if cached != nil {
		return cached.status, cached.err
	}

	if md == nil || !md.Revealed() {
		fetched, err := e.source.RngMetadata(ctx, id)
		if err != nil {
			return Pending, err
		}
		if fetched.Round != id {
			return Pending, fault.Domain(fault.StaleRound,
				"metadata for round %d returned for round %d", fetched.Round, id)
		}
		md = &fetched
		e.mu.Lock()
		if e.phase.Round == id {
			e.metadata = md
		}
		e.mu.Unlock()
	}

	err := Check(*md, e.store.Snapshot())
	switch {
	case errors.Is(err, fault.ErrUnavailable):
		return Pending, nil
	case err == nil:
		e.settle(id, Verified, nil)
		e.logger.Info().Uint64("round", uint64(id)).Msg("Shuffle verified")
		return Verified, nil
	case fault.IsIntegrity(err):
		e.settle(id, Failed, err)
		e.logger.Error().Err(err).Uint64("round", uint64(id)).Msg("Shuffle verification FAILED")
		return Failed, err
	default:
		return Pending, err
	}
}

func (e *Engine) settle(id round.ID, s Status, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase.Round != id {
		return
	}
	e.verdict = &verdict{status: s, err: err}
	e.store.Freeze()
}

// Check verifies revealed metadata against the committed deck hash and every
// stored card commitment. It returns fault.ErrUnavailable while the seed or
// deck is withheld and an *fault.IntegrityError on any disagreement.
func Check(md round.RngMetadata, snap *provenance.Snapshot) error {
	var committed map[round.Position]commit.Hash
	if snap != nil {
		committed = make(map[round.Position]commit.Hash, deck.Size)
		for _, rec := range snap.Records() {
			committed[rec.Position] = rec.CommittedHash
		}
	}
	return proof.Audit(md, committed)
}

// VerificationStatus returns the cached verdict for id without doing work.
func (e *Engine) VerificationStatus(id round.ID) Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.phase.Round != id || e.verdict == nil {
		return Pending
	}
	return e.verdict.status
}

// CrossCheck compares the local verdict with the dealer's own attestation.
// A disagreement is an *fault.IntegrityError of kind AttestationMismatch.
func (e *Engine) CrossCheck(ctx context.Context, id round.ID) (Status, error) {
	local, err := e.Verify(ctx, id)
	if local == Pending {
		return Pending, err
	}

	att, aerr := e.source.ServerVerification(ctx, id)
	if errors.Is(aerr, fault.ErrUnavailable) {
		return local, err
	}
	if aerr != nil {
		return local, errors.Join(err, aerr)
	}
	if att.Verified != (local == Verified) {
		mismatch := fault.Integrity(fault.AttestationMismatch, uint64(id),
			"dealer attests verified=%t, local verdict %s", att.Verified, local)
		e.logger.Error().Err(mismatch).Uint64("round", uint64(id)).Msg("Dealer attestation disagrees")
		return local, errors.Join(err, mismatch)
	}
	return local, err
}

// Attribution infers hole-card owners as seen by viewer.
func (e *Engine) Attribution(viewer round.PlayerID) inference.Result {
	return inference.Infer(inference.Input{
		Viewer:   viewer,
		Snapshot: e.store.Snapshot(),
		Phase:    e.Phase(),
	})
}

// VisiblePositions resolves what viewer may see right now.
func (e *Engine) VisiblePositions(viewer round.PlayerID) visibility.Result {
	phase := e.Phase()
	snap := e.store.Snapshot()
	attributed := inference.Infer(inference.Input{Viewer: viewer, Snapshot: snap, Phase: phase})

	res := visibility.Resolve(visibility.Input{
		Viewer:      viewer,
		Snapshot:    snap,
		Phase:       phase,
		Attribution: attributed.Attribution(),
		Disclosed:   e.reveal.Disclosed(phase.Round),
	})
	for _, f := range res.Faults {
		e.logger.Warn().Err(f).Uint64("round", uint64(phase.Round)).Msg("Inconsistent round state")
	}
	return res
}

// RevealProgress returns the reveal order for id and the disclosed prefix length.
func (e *Engine) RevealProgress(id round.ID) (reveal.Order, int) {
	return e.reveal.Progress(id)
}

// ExportProof builds a proof document for a concluded, revealed round.
func (e *Engine) ExportProof(id round.ID) (*proof.Proof, error) {
	e.mu.RLock()
	concluded := e.phase.Round == id && e.phase.Concluded
	md := e.metadata
	status := Pending
	if e.verdict != nil {
		status = e.verdict.status
	}
	e.mu.RUnlock()

	if !concluded {
		return nil, fault.ErrRoundNotConcluded
	}
	if md == nil {
		return nil, fault.ErrUnavailable
	}
	return proof.New(*md, e.store.Snapshot(), status.String(), e.clock.Now())
}
