package provenance

import (
	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/round"
)

// Snapshot is an immutable view of one round's provenance. Stores hand out
// snapshots; they are never modified after publication.
type Snapshot struct {
	round   round.ID
	frozen  bool
	records [deck.Size]*round.CardProvenance
	faults  []*fault.DomainError
}

// EmptySnapshot returns a snapshot with no records for id.
func EmptySnapshot(id round.ID) *Snapshot {
	return &Snapshot{round: id}
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		round:   s.round,
		frozen:  s.frozen,
		records: s.records,
	}
	next.faults = append(next.faults, s.faults...)
	return next
}

// Round returns the round the snapshot belongs to.
func (s *Snapshot) Round() round.ID { return s.round }

// Frozen reports whether the round has concluded.
func (s *Snapshot) Frozen() bool { return s.frozen }

// Faults returns the domain faults observed while ingesting.
func (s *Snapshot) Faults() []*fault.DomainError {
	out := make([]*fault.DomainError, len(s.faults))
	copy(out, s.faults)
	return out
}

// Lookup returns the record at pos.
func (s *Snapshot) Lookup(pos round.Position) (round.CardProvenance, bool) {
	if !pos.Valid() || s.records[pos] == nil {
		return round.CardProvenance{}, false
	}
	return *s.records[pos], true
}

// LookupByCard returns the committed position holding card.
func (s *Snapshot) LookupByCard(card deck.Card) (round.Position, bool) {
	for pos, rec := range s.records {
		if rec != nil && rec.Card == card {
			return round.Position(pos), true
		}
	}
	return 0, false
}

// Records returns every known record in position order.
func (s *Snapshot) Records() []round.CardProvenance {
	out := make([]round.CardProvenance, 0, deck.Size)
	for _, rec := range s.records {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// HoleCardsOf returns the positions explicitly tagged to player, ascending.
func (s *Snapshot) HoleCardsOf(player round.PlayerID) []round.Position {
	var out []round.Position
	for pos, rec := range s.records {
		if rec != nil && rec.IsHoleCard() && rec.HeldBy(player) {
			out = append(out, round.Position(pos))
		}
	}
	return out
}

// HoleCardPositions returns every position dealt as a hole card, ascending.
func (s *Snapshot) HoleCardPositions() []round.Position {
	var out []round.Position
	for pos, rec := range s.records {
		if rec != nil && rec.IsHoleCard() {
			out = append(out, round.Position(pos))
		}
	}
	return out
}

// CommunityPositions returns the board card positions in dealing order.
func (s *Snapshot) CommunityPositions() []round.Position {
	var out []round.Position
	for stage := round.Flop; stage <= round.River; stage++ {
		for pos, rec := range s.records {
			if rec != nil && rec.IsCommunity() && *rec.DealtAt == stage {
				out = append(out, round.Position(pos))
			}
		}
	}
	return out
}

// CommittedHashes returns the per-position hashes, or false if any is unknown.
func (s *Snapshot) CommittedHashes() ([]commit.Hash, bool) {
	out := make([]commit.Hash, deck.Size)
	for pos, rec := range s.records {
		if rec == nil {
			return nil, false
		}
		out[pos] = rec.CommittedHash
	}
	return out, true
}

// Stats summarises how much of the round is known.
type Stats struct {
	Round     round.ID
	Known     int
	Dealt     int
	Tagged    int
	Community int
	Faults    int
}

// Stats counts records by state.
func (s *Snapshot) Stats() Stats {
	st := Stats{Round: s.round, Faults: len(s.faults)}
	for _, rec := range s.records {
		if rec == nil {
			continue
		}
		st.Known++
		if rec.Dealt() {
			st.Dealt++
		}
		if rec.Recipient != nil {
			st.Tagged++
		}
		if rec.IsCommunity() {
			st.Community++
		}
	}
	return st
}
