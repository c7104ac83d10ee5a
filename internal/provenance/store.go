// Package provenance caches the per-position card records of the current
// round. Records are validated against their hash commitment on the way in;
// the cache is replaced wholesale when the round changes.
package provenance

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/round"
)

// Store is the round-scoped provenance cache. It is safe for concurrent use.
type Store struct {
	logger zerolog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore creates an empty store positioned at round 0.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger: logger,
		snap:   EmptySnapshot(0),
	}
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Round returns the round currently cached.
func (s *Store) Round() round.ID {
	return s.Snapshot().Round()
}

// Reset discards the cache and starts id. Moving backwards is rejected.
func (s *Store) Reset(id round.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case id == s.snap.round:
		return nil
	case id < s.snap.round:
		return fault.Domain(fault.StaleRound, "round %d is older than cached round %d", id, s.snap.round)
	}

	s.logger.Debug().Uint64("from", uint64(s.snap.round)).Uint64("to", uint64(id)).Msg("provenance round transition")
	s.snap = EmptySnapshot(id)
	return nil
}

// Freeze marks the round concluded; afterwards only identical upserts succeed.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.frozen {
		return
	}
	next := s.snap.clone()
	next.frozen = true
	s.snap = next
}

// Upsert merges a single record.
func (s *Store) Upsert(p round.CardProvenance) error {
	return s.Ingest([]round.CardProvenance{p})
}

// Ingest merges records into the current round. The batch is applied
// atomically: if any record fails with an integrity or round error, nothing
// is applied.
func (s *Store) Ingest(records []round.CardProvenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.clone()
	for _, p := range records {
		if err := s.merge(next, p); err != nil {
			return err
		}
	}
	s.snap = next
	return nil
}

// Lookup returns the record at pos in the current round.
func (s *Store) Lookup(pos round.Position) (round.CardProvenance, bool) {
	return s.Snapshot().Lookup(pos)
}

// LookupByCard returns the committed position of card in the current round.
func (s *Store) LookupByCard(c deck.Card) (round.Position, bool) {
	return s.Snapshot().LookupByCard(c)
}

func (s *Store) merge(next *Snapshot, p round.CardProvenance) error {
	if p.Round != next.round {
		return fault.Domain(fault.StaleRound, "record for round %d offered to round %d", p.Round, next.round)
	}
	if !p.Position.Valid() {
		return fault.Domain(fault.PositionOutOfRange, "position %d", p.Position)
	}

	want, err := commit.CardHash(uint64(p.Round), p.Card, int(p.Position))
	if err != nil {
		return err
	}
	if want != p.CommittedHash {
		return fault.Integrity(fault.CardHashMismatch, uint64(p.Round),
			"position %d: card %s does not match committed hash %s", p.Position, p.Card, p.CommittedHash)
	}

	existing := next.records[p.Position]
	if existing == nil {
		if next.frozen {
			return fault.Domain(fault.StaleRound, "round %d is frozen; position %d unknown", next.round, p.Position)
		}
		if other, dup := next.LookupByCard(p.Card); dup {
			df := fault.Domain(fault.DuplicateCard, "card %s at positions %d and %d", p.Card, other, p.Position)
			next.faults = append(next.faults, df)
			s.logger.Warn().Err(df).Uint64("round", uint64(p.Round)).Msg("provenance consistency fault")
		}
		rec := clone(p)
		next.records[p.Position] = &rec
		return nil
	}

	merged, changed, err := mergeRecord(*existing, p)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if next.frozen {
		return fault.Domain(fault.StaleRound, "round %d is frozen; position %d cannot change", next.round, p.Position)
	}
	next.records[p.Position] = &merged
	return nil
}

// mergeRecord fills absent fields of cur from in. Any disagreement on a field
// both sides know is an integrity fault.
func mergeRecord(cur, in round.CardProvenance) (round.CardProvenance, bool, error) {
	id := uint64(cur.Round)
	if cur.Card != in.Card || cur.CommittedHash != in.CommittedHash {
		return cur, false, fault.Integrity(fault.ConflictingRecord, id,
			"position %d: committed %s, received %s", cur.Position, cur.Card, in.Card)
	}

	out := clone(cur)
	changed := false

	switch {
	case in.Recipient == nil:
	case out.Recipient == nil:
		r := *in.Recipient
		out.Recipient = &r
		changed = true
	case *out.Recipient != *in.Recipient:
		return cur, false, fault.Integrity(fault.ConflictingRecord, id,
			"position %d: dealt to %s, received %s", cur.Position, *cur.Recipient, *in.Recipient)
	}

	switch {
	case in.DealtAt == nil:
	case out.DealtAt == nil:
		st := *in.DealtAt
		out.DealtAt = &st
		changed = true
	case *out.DealtAt != *in.DealtAt:
		return cur, false, fault.Integrity(fault.ConflictingRecord, id,
			"position %d: dealt at %s, received %s", cur.Position, *cur.DealtAt, *in.DealtAt)
	}

	return out, changed, nil
}

func clone(p round.CardProvenance) round.CardProvenance {
	out := p
	if p.Recipient != nil {
		r := *p.Recipient
		out.Recipient = &r
	}
	if p.DealtAt != nil {
		st := *p.DealtAt
		out.DealtAt = &st
	}
	return out
}
