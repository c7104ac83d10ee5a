package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/fixture"
	"github.com/lox/dealproof/internal/round"
)

var errInjected = errors.New("injected transport failure")

type memoryRound struct {
	dealer     *fixture.Dealer
	viewer     *round.PlayerID
	revealed   bool
	verdict    *bool
	tamperMeta func(*round.RngMetadata)
	tamperProv func([]round.CardProvenance)
}

// Memory is an in-process Source serving rounds from synthetic dealers. It
// backs the demo command and tests, and can inject transport failures and
// tampered data.
type Memory struct {
	mu       sync.Mutex
	rounds   map[round.ID]*memoryRound
	failures int
	calls    int
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{rounds: make(map[round.ID]*memoryRound)}
}

// Add serves d's round. Provenance is redacted for viewer; a nil viewer
// receives every recipient tag.
func (m *Memory) Add(d *fixture.Dealer, viewer *round.PlayerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[d.Round()] = &memoryRound{dealer: d, viewer: viewer}
}

// Reveal publishes the time seed and shuffled deck of id.
func (m *Memory) Reveal(id round.ID) {
	m.with(id, func(r *memoryRound) { r.revealed = true })
}

// SetAttestation overrides the server's verdict for id.
func (m *Memory) SetAttestation(id round.ID, verified bool) {
	m.with(id, func(r *memoryRound) { r.verdict = &verified })
}

// TamperMetadata rewrites every metadata response for id with fn.
func (m *Memory) TamperMetadata(id round.ID, fn func(*round.RngMetadata)) {
	m.with(id, func(r *memoryRound) { r.tamperMeta = fn })
}

// TamperProvenance rewrites every provenance response for id with fn.
func (m *Memory) TamperProvenance(id round.ID, fn func([]round.CardProvenance)) {
	m.with(id, func(r *memoryRound) { r.tamperProv = fn })
}

// FailNext makes the next n calls fail with a transport error.
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

// Calls returns the number of calls served, failed ones included.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Memory) with(id round.ID, fn func(*memoryRound)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rounds[id]; ok {
		fn(r)
	}
}

func (m *Memory) begin(ctx context.Context, op string, id round.ID) (*memoryRound, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Transport(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return nil, fault.Transport(op, errInjected)
	}
	r, ok := m.rounds[id]
	if !ok {
		return nil, fmt.Errorf("%s round %d: %w", op, id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// RngMetadata implements Source.
func (m *Memory) RngMetadata(ctx context.Context, id round.ID) (round.RngMetadata, error) {
	r, err := m.begin(ctx, MethodRngMetadata, id)
	if err != nil {
		return round.RngMetadata{}, err
	}
	md := r.dealer.Metadata(r.revealed)
	if r.tamperMeta != nil {
		r.tamperMeta(&md)
	}
	return md, nil
}

// CardProvenance implements Source.
func (m *Memory) CardProvenance(ctx context.Context, id round.ID) ([]round.CardProvenance, error) {
	r, err := m.begin(ctx, MethodCardProvenance, id)
	if err != nil {
		return nil, err
	}
	records := r.dealer.Provenance(r.viewer)
	if r.tamperProv != nil {
		r.tamperProv(records)
	}
	return records, nil
}

// ServerVerification implements Source. The dealer attests to its own
// untampered shuffle unless overridden.
func (m *Memory) ServerVerification(ctx context.Context, id round.ID) (Attestation, error) {
	r, err := m.begin(ctx, MethodServerVerification, id)
	if err != nil {
		return Attestation{}, err
	}
	if !r.revealed {
		return Attestation{}, fmt.Errorf("%s round %d: %w", MethodServerVerification, id, fault.ErrUnavailable)
	}
	md := r.dealer.Metadata(true)
	att := Attestation{Round: id, DeckHash: md.DeckHash}

	replayed, err := deck.Reconstruct(md.RawRandomBytes, md.TimeSeed)
	att.Verified = err == nil && commit.DeckHash(replayed[:]) == md.DeckHash
	if r.verdict != nil {
		att.Verified = *r.verdict
		att.Detail = "overridden"
	}
	return att, nil
}
