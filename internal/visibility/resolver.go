// Package visibility decides which committed positions a viewer may see at a
// given moment of a round. Resolution is a pure function of its input and is
// recomputed on every state change.
package visibility

import (
	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/provenance"
	"github.com/lox/dealproof/internal/round"
)

// Reason explains why a position is or is not visible.
type Reason uint8

const (
	Hidden Reason = iota
	Own
	Community
	Showdown
)

func (r Reason) String() string {
	switch r {
	case Hidden:
		return "hidden"
	case Own:
		return "own"
	case Community:
		return "community"
	case Showdown:
		return "showdown"
	default:
		return "unknown"
	}
}

// View is what a viewer sees at one position: the card, or only its hash.
type View struct {
	Position round.Position
	Hash     commit.Hash
	Card     *deck.Card
	Owner    *round.PlayerID
	Reason   Reason
}

// Revealed reports whether the card face is visible.
func (v View) Revealed() bool { return v.Card != nil }

// Input is everything resolution depends on.
type Input struct {
	Viewer   round.PlayerID
	Snapshot *provenance.Snapshot
	Phase    round.Phase
	// Attribution maps hole-card positions without a recipient tag to their
	// inferred owner.
	Attribution map[round.Position]round.PlayerID
	// Disclosed lists showdown contestants whose reveal delay has elapsed.
	Disclosed []round.PlayerID
}

// Result is the resolved view set plus any consistency faults observed.
type Result struct {
	Views  map[round.Position]View
	Faults []*fault.DomainError
}

// Revealed returns the visible views in position order.
func (r Result) Revealed() []View {
	var out []View
	for pos := range round.Position(deck.Size) {
		if v, ok := r.Views[pos]; ok && v.Revealed() {
			out = append(out, v)
		}
	}
	return out
}

// Resolve applies the visibility rules in priority order:
//
//  1. concluded without showdown: own hole cards and dealt board cards only;
//  2. concluded with showdown: as above, plus disclosed contestants' hole
//     cards, and only when the viewer is a contestant themself;
//  3. live round: own hole cards and the dealt board cards, with a fault when
//     their count does not match the stage;
//  4. everything else is hash-only.
func Resolve(in Input) Result {
	res := Result{Views: make(map[round.Position]View)}
	if in.Snapshot == nil {
		return res
	}

	owners := ownership(in)
	disclosed := make(map[round.PlayerID]bool, len(in.Disclosed))
	for _, p := range in.Disclosed {
		disclosed[p] = true
	}

	for _, rec := range in.Snapshot.Records() {
		v := View{Position: rec.Position, Hash: rec.CommittedHash, Reason: Hidden}
		if owner, ok := owners[rec.Position]; ok {
			o := owner
			v.Owner = &o
		}
		res.Views[rec.Position] = v
	}

	for _, pos := range in.Snapshot.HoleCardsOf(in.Viewer) {
		reveal(&res, in.Snapshot, pos, Own)
	}

	community := in.Snapshot.CommunityPositions()
	if !in.Phase.Concluded {
		expected := in.Phase.Stage.ExpectedCommunityCards()
		if len(community) != expected {
			res.Faults = append(res.Faults, fault.Domain(fault.CommunityCountMismatch,
				"round %d at %s: %d community cards dealt, expected %d",
				in.Snapshot.Round(), in.Phase.Stage, len(community), expected))
		}
	}
	for _, pos := range community {
		reveal(&res, in.Snapshot, pos, Community)
	}

	if !in.Phase.WentToShowdown() || !in.Phase.InShowdown(in.Viewer) {
		return res
	}
	for pos, owner := range owners {
		if owner == in.Viewer || !disclosed[owner] || !in.Phase.InShowdown(owner) {
			continue
		}
		if rec, ok := in.Snapshot.Lookup(pos); !ok || rec.IsCommunity() {
			continue
		}
		reveal(&res, in.Snapshot, pos, Showdown)
	}
	return res
}

// ownership merges explicit recipient tags with inferred attribution. Tags win.
func ownership(in Input) map[round.Position]round.PlayerID {
	owners := make(map[round.Position]round.PlayerID)
	for pos, p := range in.Attribution {
		owners[pos] = p
	}
	for _, rec := range in.Snapshot.Records() {
		if rec.Recipient != nil {
			owners[rec.Position] = *rec.Recipient
		}
	}
	return owners
}

func reveal(res *Result, snap *provenance.Snapshot, pos round.Position, why Reason) {
	rec, ok := snap.Lookup(pos)
	if !ok {
		return
	}
	v := res.Views[pos]
	c := rec.Card
	v.Card = &c
	v.Reason = why
	res.Views[pos] = v
}
