// Package commit derives the hash commitments a dealer publishes before a round
// is dealt: one hash per deck position and one hash over the whole ordered deck.
package commit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
)

// Hash is a SHA-256 digest.
type Hash [sha256.Size]byte

// String returns the lower-case hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash (never a valid commitment).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64 character hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != hex.EncodedLen(len(h)) {
		return h, fmt.Errorf("commit: hash must be %d hex characters, got %d", hex.EncodedLen(len(h)), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("commit: invalid hash: %w", err)
	}
	return h, nil
}

// CardHash commits to a single card at a deck position for a round:
// SHA-256(roundID LE8 || "rank:suit" || position).
func CardHash(roundID uint64, card deck.Card, position int) (Hash, error) {
	if position < 0 || position >= deck.Size {
		return Hash{}, fault.Domain(fault.PositionOutOfRange, "position %d outside [0,%d)", position, deck.Size)
	}
	if !card.Valid() {
		return Hash{}, fault.Domain(fault.MalformedCard, "card {rank:%d suit:%d} at position %d", card.Rank, card.Suit, position)
	}

	h := sha256.New()
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], roundID)
	h.Write(id[:])
	h.Write([]byte(card.Canonical()))
	h.Write([]byte{byte(position)})

	var out Hash
	h.Sum(out[:0])
	return out, nil
}

// DeckHash hashes the canonical encodings of cards concatenated in position order.
func DeckHash(cards []deck.Card) Hash {
	h := sha256.New()
	for _, c := range cards {
		h.Write([]byte(c.Canonical()))
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// CommitmentRoot hashes the full set of per-position commitments in order.
// It requires exactly one hash per deck position.
func CommitmentRoot(hashes []Hash) (Hash, error) {
	if len(hashes) != deck.Size {
		return Hash{}, fmt.Errorf("commit: commitment root needs %d hashes, got %d", deck.Size, len(hashes))
	}
	h := sha256.New()
	for _, ch := range hashes {
		h.Write(ch[:])
	}
	var out Hash
	h.Sum(out[:0])
	return out, nil
}

// CommitDeck derives every per-position hash for an ordered deck.
func CommitDeck(roundID uint64, cards [deck.Size]deck.Card) ([deck.Size]Hash, error) {
	var hashes [deck.Size]Hash
	for pos, c := range cards {
		ch, err := CardHash(roundID, c, pos)
		if err != nil {
			return hashes, err
		}
		hashes[pos] = ch
	}
	return hashes, nil
}
