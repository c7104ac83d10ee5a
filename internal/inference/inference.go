// Package inference attributes hole cards to seats when the provenance feed
// withholds the recipient. Results are for display only; the dealer's own
// record of who received what is the only ground truth.
package inference

import (
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/provenance"
	"github.com/lox/dealproof/internal/round"
)

// DefaultSearchRadius bounds the local search around an offset target.
const DefaultSearchRadius = 10

// Confidence grades how a card was attributed.
type Confidence uint8

const (
	// Tagged cards carry an explicit recipient from the dealer.
	Tagged Confidence = iota
	// Exact cards sit precisely at the deal-order offset from the viewer's card.
	Exact
	// Widened cards were found by the bounded local search.
	Widened
	// Unverified cards are the closest leftover position; a guess.
	Unverified
)

func (c Confidence) String() string {
	switch c {
	case Tagged:
		return "tagged"
	case Exact:
		return "exact"
	case Widened:
		return "widened"
	case Unverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Card is one attributed hole card.
type Card struct {
	Position   round.Position
	Confidence Confidence
}

// Hand is the inferred holding of one seat.
type Hand struct {
	Seat   round.Seat
	Offset int
	Cards  []Card
	// Complete is set when the expected hole-card count was found.
	Complete bool
	// LowConfidence is set for incomplete hands or hands with an unverified card.
	LowConfidence bool
}

// Positions returns the hand's positions in attribution order.
func (h Hand) Positions() []round.Position {
	out := make([]round.Position, len(h.Cards))
	for i, c := range h.Cards {
		out[i] = c.Position
	}
	return out
}

// Result holds every non-viewer seat's hand in deal order.
type Result struct {
	Hands []Hand
	// Direction is +1 when committed positions grow with the deal, -1 when
	// they shrink, 0 when no anchor was available.
	Direction int
	// Ambiguous is set when nothing distinguished the two directions and
	// Direction fell back to the dealer's default of dealing from the end.
	Ambiguous bool
}

// Hand returns the hand inferred for player.
func (r Result) Hand(player round.PlayerID) (Hand, bool) {
	for _, h := range r.Hands {
		if h.Seat.Player == player {
			return h, true
		}
	}
	return Hand{}, false
}

// Attribution flattens the result into a position to player map.
func (r Result) Attribution() map[round.Position]round.PlayerID {
	out := make(map[round.Position]round.PlayerID)
	for _, h := range r.Hands {
		for _, c := range h.Cards {
			out[c.Position] = h.Seat.Player
		}
	}
	return out
}

// Input is the immutable view inference works from.
type Input struct {
	Viewer   round.PlayerID
	Snapshot *provenance.Snapshot
	Phase    round.Phase
	// SearchRadius overrides DefaultSearchRadius when positive.
	SearchRadius int
}

// board is the working state of one reconciliation pass: which positions are
// hole cards, which are taken, and who the dealer tagged.
type board struct {
	hole     [deck.Size]bool
	assigned [deck.Size]bool
	tags     [deck.Size]round.PlayerID
}

func (b *board) free(p int) bool {
	return p >= 0 && p < deck.Size && b.hole[p] && !b.assigned[p]
}

// Infer attributes unlabelled hole cards to seats. Seats are ordered as dealt
// (clockwise from the first seat after the dealer); the offset of a seat is its
// distance from the viewer in that order. For each hole-card round and seat it
// tries the viewer's card of that round shifted by the offset in both
// directions, then a bounded local search, then the closest free position.
func Infer(in Input) Result {
	if in.Snapshot == nil {
		return Result{}
	}
	radius := in.SearchRadius
	if radius <= 0 {
		radius = DefaultSearchRadius
	}
	holeCount := in.Phase.HoleCardCount()
	seats := in.Phase.DealtSeats()

	var b board
	known := in.Snapshot.HoleCardPositions()
	for _, pos := range known {
		b.hole[pos] = true
		if rec, ok := in.Snapshot.Lookup(pos); ok && rec.Recipient != nil {
			b.assigned[pos] = true
			b.tags[pos] = *rec.Recipient
		}
	}
	if len(known) < len(seats)*holeCount {
		// Stage withheld along with the recipient: any card not known to be
		// dealt elsewhere may be someone's hole card.
		for _, rec := range in.Snapshot.Records() {
			if !rec.Dealt() {
				b.hole[rec.Position] = true
			}
		}
	}

	viewerIdx := -1
	for i, s := range seats {
		if s.Player == in.Viewer {
			viewerIdx = i
		}
	}
	mine := in.Snapshot.HoleCardsOf(in.Viewer)

	hands := make([]Hand, 0, len(seats))
	for i, s := range seats {
		if s.Player == in.Viewer {
			continue
		}
		h := Hand{Seat: s}
		if viewerIdx >= 0 {
			h.Offset = i - viewerIdx
		}
		for pos := range deck.Size {
			if b.tags[pos] == s.Player && b.hole[pos] {
				h.Cards = append(h.Cards, Card{Position: round.Position(pos), Confidence: Tagged})
			}
		}
		hands = append(hands, h)
	}

	res := Result{}
	if viewerIdx >= 0 && len(mine) > 0 {
		res.Direction, res.Ambiguous = direction(&b, hands, mine, holeCount, in.Snapshot.CommunityPositions())
		for r := 0; r < holeCount && r < len(mine); r++ {
			anchor := int(mine[r])
			for i := range hands {
				h := &hands[i]
				if len(h.Cards) >= holeCount {
					continue
				}
				targets := [2]int{anchor + res.Direction*h.Offset, anchor - res.Direction*h.Offset}
				if tagged(&b, h.Seat.Player, targets) {
					continue
				}
				if c, ok := pick(&b, targets, radius); ok {
					b.assigned[c.Position] = true
					h.Cards = append(h.Cards, c)
				}
			}
		}
	}

	for i := range hands {
		h := &hands[i]
		h.Complete = len(h.Cards) >= holeCount
		h.LowConfidence = !h.Complete
		for _, c := range h.Cards {
			if c.Confidence == Unverified || (res.Ambiguous && c.Confidence != Tagged) {
				h.LowConfidence = true
			}
		}
	}
	res.Hands = hands
	return res
}

// tagged reports whether either target already carries player's tag.
func tagged(b *board, player round.PlayerID, targets [2]int) bool {
	for _, t := range targets {
		if t >= 0 && t < deck.Size && b.tags[t] == player {
			return true
		}
	}
	return false
}

// direction decides whether committed positions grow (+1) or shrink (-1)
// with the deal by counting which orientation lands more primary targets on
// hole-card positions not claimed by another seat. On a tie the board breaks
// it, since community cards are dealt after the hole cards. With no board the
// result is -1 and ambiguous.
func direction(b *board, hands []Hand, mine []round.Position, holeCount int, community []round.Position) (int, bool) {
	score := func(dir int) int {
		hits := 0
		for r := 0; r < holeCount && r < len(mine); r++ {
			for _, h := range hands {
				t := int(mine[r]) + dir*h.Offset
				if t < 0 || t >= deck.Size || !b.hole[t] {
					continue
				}
				if b.tags[t] == "" || b.tags[t] == h.Seat.Player {
					hits++
				}
			}
		}
		return hits
	}
	down, up := score(-1), score(1)
	switch {
	case down > up:
		return -1, false
	case up > down:
		return 1, false
	case len(community) > 0 && community[0] > mine[0]:
		return 1, false
	case len(community) > 0:
		return -1, false
	}
	return -1, true
}

// pick chooses the position for one seat and round: a free primary target,
// else the nearest free position within radius of either target, else the
// closest free position anywhere.
func pick(b *board, targets [2]int, radius int) (Card, bool) {
	for _, t := range targets {
		if b.free(t) {
			return Card{Position: round.Position(t), Confidence: Exact}, true
		}
	}
	for d := 1; d <= radius; d++ {
		for _, t := range targets {
			for _, p := range [2]int{t - d, t + d} {
				if b.free(p) {
					return Card{Position: round.Position(p), Confidence: Widened}, true
				}
			}
		}
	}
	best, bestDist := -1, deck.Size+1
	for p := range deck.Size {
		if !b.free(p) {
			continue
		}
		dist := p - targets[0]
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = p, dist
		}
	}
	if best < 0 {
		return Card{}, false
	}
	return Card{Position: round.Position(best), Confidence: Unverified}, true
}
