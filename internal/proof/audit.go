package proof

import (
	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/round"
)

// Audit replays revealed shuffle metadata and checks it against the committed
// deck hash and each supplied per-position card commitment. Positions absent
// from committed are not checked. It returns fault.ErrUnavailable while the
// seed or deck is withheld and an *fault.IntegrityError for the first
// disagreement.
func Audit(md round.RngMetadata, committed map[round.Position]commit.Hash) error {
	if !md.Revealed() {
		return fault.ErrUnavailable
	}
	id := uint64(md.Round)

	replayed, err := deck.Reconstruct(md.RawRandomBytes, md.TimeSeed)
	if err != nil {
		return err
	}
	if got := commit.DeckHash(replayed[:]); got != md.DeckHash {
		return fault.Integrity(fault.DeckHashMismatch, id, "replayed deck hashes to %s, committed %s", got, md.DeckHash)
	}
	if dups := deck.Duplicates(md.ShuffledDeck); len(dups) > 0 {
		return fault.Integrity(fault.ShuffledDeckMismatch, id, "revealed deck repeats %s", dups[0])
	}
	if !deck.Equal(replayed[:], md.ShuffledDeck) {
		return fault.Integrity(fault.ShuffledDeckMismatch, id, "revealed deck differs from replay")
	}
	if got := commit.DeckHash(md.ShuffledDeck); got != md.DeckHash {
		return fault.Integrity(fault.DeckHashMismatch, id, "revealed deck hashes to %s, committed %s", got, md.DeckHash)
	}

	for pos := range round.Position(deck.Size) {
		have, ok := committed[pos]
		if !ok {
			continue
		}
		want, err := commit.CardHash(id, replayed[pos], int(pos))
		if err != nil {
			return err
		}
		if have != want {
			return fault.Integrity(fault.CardHashMismatch, id, "position %d committed %s, replay gives %s", pos, have, want)
		}
	}
	return nil
}
