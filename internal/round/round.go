// Package round holds the shared data model for one dealt hand: stages,
// seats, per-position provenance, shuffle metadata and the game-phase signal.
package round

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
)

// ID identifies one dealt hand. IDs increase monotonically across rounds.
type ID uint64

// PlayerID is an opaque player identity.
type PlayerID string

// Position is a slot in a round's committed deck order.
type Position int

// Valid reports whether p lies in [0,52).
func (p Position) Valid() bool {
	return p >= 0 && int(p) < deck.Size
}

// Stage is a dealing stage. Values are ordered.
type Stage uint8

const (
	Opening Stage = iota
	Flop
	Turn
	River
	Showdown
)

var stageNames = [...]string{"opening", "flop", "turn", "river", "showdown"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", s)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s <= Showdown
}

// ExpectedCommunityCards is the number of board cards dealt once s is reached.
func (s Stage) ExpectedCommunityCards() int {
	switch s {
	case Opening:
		return 0
	case Flop:
		return 3
	case Turn:
		return 4
	case River, Showdown:
		return 5
	default:
		return 0
	}
}

// ParseStage parses a stage name; "preflop" is accepted for Opening.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opening", "preflop":
		return Opening, nil
	case "flop":
		return Flop, nil
	case "turn":
		return Turn, nil
	case "river":
		return River, nil
	case "showdown":
		return Showdown, nil
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CardProvenance records where a card sits in the committed order and, once
// dealt, who received it. Card and hash are fixed at commit time; Recipient
// and DealtAt fill in as dealing proceeds and may stay empty for other
// players' hole cards.
type CardProvenance struct {
	Round            ID          `json:"round_id" toml:"round_id"`
	Position         Position    `json:"position" toml:"position"`
	OriginalPosition int         `json:"original_position" toml:"original_position"`
	Card             deck.Card   `json:"card" toml:"card"`
	CommittedHash    commit.Hash `json:"card_hash" toml:"card_hash"`
	Recipient        *PlayerID   `json:"dealt_to,omitempty" toml:"dealt_to,omitempty"`
	DealtAt          *Stage      `json:"dealt_at_stage,omitempty" toml:"dealt_at_stage,omitempty"`
}

// Dealt reports whether the card has left the deck.
func (p CardProvenance) Dealt() bool {
	return p.DealtAt != nil
}

// IsHoleCard reports whether the card was dealt privately: it is tagged to a
// player or was dealt in the opening.
func (p CardProvenance) IsHoleCard() bool {
	return p.Recipient != nil || (p.DealtAt != nil && *p.DealtAt == Opening)
}

// IsCommunity reports whether the card was dealt face up to the board.
func (p CardProvenance) IsCommunity() bool {
	return p.DealtAt != nil && *p.DealtAt != Opening && p.Recipient == nil
}

// HeldBy reports whether the card is explicitly tagged to player.
func (p CardProvenance) HeldBy(player PlayerID) bool {
	return p.Recipient != nil && *p.Recipient == player
}

// RngMetadata is the dealer's shuffle disclosure for a round. RawRandomBytes
// and DeckHash are published at round start; TimeSeed and ShuffledDeck stay
// withheld (nil/empty) until the round concludes.
type RngMetadata struct {
	Round          ID          `json:"round_id" toml:"round_id"`
	RawRandomBytes []byte      `json:"raw_random_bytes" toml:"raw_random_bytes"`
	TimeSeed       *uint64     `json:"time_seed,omitempty" toml:"time_seed,omitempty"`
	Timestamp      time.Time   `json:"timestamp" toml:"timestamp"`
	DeckHash       commit.Hash `json:"deck_hash" toml:"deck_hash"`
	TransactionID  string      `json:"transaction_id,omitempty" toml:"transaction_id,omitempty"`
	ShuffledDeck   []deck.Card `json:"shuffled_deck,omitempty" toml:"shuffled_deck,omitempty"`
}

// Revealed reports whether the secret half of the commitment is public.
func (m RngMetadata) Revealed() bool {
	return m.TimeSeed != nil && len(m.ShuffledDeck) > 0
}

// Seat is one occupied chair at the table.
type Seat struct {
	Index      int      `json:"index"`
	Player     PlayerID `json:"player"`
	Folded     bool     `json:"folded,omitempty"`
	SittingOut bool     `json:"sitting_out,omitempty"`
}

// Active reports whether the seat was dealt in and is still contesting.
func (s Seat) Active() bool {
	return !s.Folded && !s.SittingOut
}

// DefaultHoleCards is the Hold'em hole-card count.
const DefaultHoleCards = 2

// Phase is the game-phase signal pushed by the rules engine.
type Phase struct {
	Round               ID         `json:"round_id"`
	Stage               Stage      `json:"stage"`
	Concluded           bool       `json:"concluded"`
	Seats               []Seat     `json:"seats"`
	DealerSeat          int        `json:"dealer_seat"`
	LastAggressor       *PlayerID  `json:"last_aggressor,omitempty"`
	ShowdownContestants []PlayerID `json:"showdown_contestants,omitempty"`
	HoleCards           int        `json:"hole_cards,omitempty"`
	Actions             []Action   `json:"actions,omitempty"`
}

// HoleCardCount returns the per-player hole-card count for the variant.
func (p Phase) HoleCardCount() int {
	if p.HoleCards <= 0 {
		return DefaultHoleCards
	}
	return p.HoleCards
}

// InShowdown reports whether player is among the showdown contestants.
func (p Phase) InShowdown(player PlayerID) bool {
	for _, c := range p.ShowdownContestants {
		if c == player {
			return true
		}
	}
	return false
}

// WentToShowdown reports whether two or more contestants reached showdown.
func (p Phase) WentToShowdown() bool {
	return p.Concluded && len(p.ShowdownContestants) >= 2
}

// DealtSeats returns the seats that were dealt into the hand (not sitting
// out), ordered clockwise from the first seat after the dealer.
func (p Phase) DealtSeats() []Seat {
	return clockwise(p.Seats, p.DealerSeat, func(s Seat) bool { return !s.SittingOut })
}

// ActiveSeats returns non-folded, non-sitting-out seats in deal order.
func (p Phase) ActiveSeats() []Seat {
	return clockwise(p.Seats, p.DealerSeat, Seat.Active)
}

// clockwise orders seats by index starting after dealer, keeping those for
// which keep returns true.
func clockwise(seats []Seat, dealer int, keep func(Seat) bool) []Seat {
	var after, before []Seat
	for _, s := range sortedByIndex(seats) {
		if !keep(s) {
			continue
		}
		if s.Index > dealer {
			after = append(after, s)
		} else {
			before = append(before, s)
		}
	}
	return append(after, before...)
}

func sortedByIndex(seats []Seat) []Seat {
	out := slices.Clone(seats)
	slices.SortStableFunc(out, func(a, b Seat) int { return cmp.Compare(a.Index, b.Index) })
	return out
}
