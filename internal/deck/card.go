package deck

import (
	"fmt"
	"strings"

	"github.com/lox/dealproof/internal/fault"
)

// Suit represents a card suit. The declaration order is the dealer's sort
// order and must not change.
type Suit uint8

const (
	Spades Suit = iota
	Clubs
	Hearts
	Diamonds
)

// NumSuits is the number of suits in a standard deck.
const NumSuits = 4

// String returns the canonical single-letter suit code.
func (s Suit) String() string {
	switch s {
	case Spades:
		return "s"
	case Clubs:
		return "c"
	case Hearts:
		return "h"
	case Diamonds:
		return "d"
	default:
		return "?"
	}
}

// Symbol returns the unicode suit glyph.
func (s Suit) Symbol() string {
	switch s {
	case Spades:
		return "♠"
	case Clubs:
		return "♣"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	default:
		return "?"
	}
}

// Valid reports whether s is one of the four suits.
func (s Suit) Valid() bool {
	return s <= Diamonds
}

// Rank represents a card rank
type Rank uint8

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// NumRanks is the number of ranks in a standard deck.
const NumRanks = 13

// String returns the canonical single-character rank code.
func (r Rank) String() string {
	switch r {
	case Two:
		return "2"
	case Three:
		return "3"
	case Four:
		return "4"
	case Five:
		return "5"
	case Six:
		return "6"
	case Seven:
		return "7"
	case Eight:
		return "8"
	case Nine:
		return "9"
	case Ten:
		return "T"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		return "?"
	}
}

// Valid reports whether r is one of the thirteen ranks.
func (r Rank) Valid() bool {
	return r >= Two && r <= Ace
}

// Card represents a playing card
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// Valid reports whether both rank and suit are in range.
func (c Card) Valid() bool {
	return c.Rank.Valid() && c.Suit.Valid()
}

// Canonical returns the "rank:suit" encoding hashed by commitments (e.g. "A:s").
func (c Card) Canonical() string {
	return c.Rank.String() + ":" + c.Suit.String()
}

// String returns the compact form (e.g. "As").
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// Pretty returns the card with its suit glyph (e.g. "A♠").
func (c Card) Pretty() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit.Symbol())
}

// Index returns the card's slot in the sorted deck.
func (c Card) Index() int {
	return int(c.Rank-Two)*NumSuits + int(c.Suit)
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fault.Domain(fault.MalformedCard, "cannot encode card {rank:%d suit:%d}", c.Rank, c.Suit)
	}
	return []byte(c.Canonical()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func parseRank(ch byte) (Rank, bool) {
	switch ch {
	case '2':
		return Two, true
	case '3':
		return Three, true
	case '4':
		return Four, true
	case '5':
		return Five, true
	case '6':
		return Six, true
	case '7':
		return Seven, true
	case '8':
		return Eight, true
	case '9':
		return Nine, true
	case 'T', 't':
		return Ten, true
	case 'J', 'j':
		return Jack, true
	case 'Q', 'q':
		return Queen, true
	case 'K', 'k':
		return King, true
	case 'A', 'a':
		return Ace, true
	}
	return 0, false
}

func parseSuit(ch byte) (Suit, bool) {
	switch ch {
	case 's', 'S':
		return Spades, true
	case 'c', 'C':
		return Clubs, true
	case 'h', 'H':
		return Hearts, true
	case 'd', 'D':
		return Diamonds, true
	}
	return 0, false
}

// ParseCard parses either the canonical "A:s" form or the compact "As" form.
func ParseCard(s string) (Card, error) {
	raw := strings.TrimSpace(s)
	var rankCh, suitCh byte
	switch {
	case len(raw) == 3 && raw[1] == ':':
		rankCh, suitCh = raw[0], raw[2]
	case len(raw) == 2:
		rankCh, suitCh = raw[0], raw[1]
	default:
		return Card{}, fault.Domain(fault.MalformedCard, "invalid card %q", s)
	}

	rank, ok := parseRank(rankCh)
	if !ok {
		return Card{}, fault.Domain(fault.MalformedCard, "invalid rank %q in %q", rankCh, s)
	}
	suit, ok := parseSuit(suitCh)
	if !ok {
		return Card{}, fault.Domain(fault.MalformedCard, "invalid suit %q in %q", suitCh, s)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// ParseCards parses a run of compact cards ("AsKd") or a whitespace or comma
// separated list in either form.
func ParseCards(s string) ([]Card, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) == 1 && !strings.Contains(fields[0], ":") && len(fields[0]) > 2 {
		run := fields[0]
		if len(run)%2 != 0 {
			return nil, fault.Domain(fault.MalformedCard, "odd length card run %q", s)
		}
		fields = fields[:0]
		for i := 0; i < len(run); i += 2 {
			fields = append(fields, run[i:i+2])
		}
	}

	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}
