// Package proof builds portable shuffle proofs for concluded rounds. A proof
// carries everything needed to replay and re-hash the deck offline.
package proof

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/provenance"
	"github.com/lox/dealproof/internal/round"
)

// Version is the proof document format version.
const Version = 1

// Proof is the exported commit-reveal evidence of one round. Byte strings are
// hex and the seed is decimal so the document survives TOML's signed
// integers.
type Proof struct {
	Version        int                    `toml:"version" json:"version"`
	Round          round.ID               `toml:"round_id" json:"round_id"`
	Status         string                 `toml:"status" json:"status"`
	ExportedAt     time.Time              `toml:"exported_at" json:"exported_at"`
	Timestamp      time.Time              `toml:"timestamp" json:"timestamp"`
	TransactionID  string                 `toml:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	RawRandomBytes string                 `toml:"raw_random_bytes" json:"raw_random_bytes"`
	TimeSeed       string                 `toml:"time_seed" json:"time_seed"`
	DeckHash       commit.Hash            `toml:"deck_hash" json:"deck_hash"`
	CommitmentRoot commit.Hash            `toml:"commitment_root" json:"commitment_root"`
	ShuffledDeck   []deck.Card            `toml:"shuffled_deck" json:"shuffled_deck"`
	CardHashes     []commit.Hash          `toml:"card_hashes" json:"card_hashes"`
	Provenance     []round.CardProvenance `toml:"provenance,omitempty" json:"provenance,omitempty"`
}

// New assembles a proof from revealed metadata and the round's provenance.
// Card hashes come from the stored commitments when every position is known
// and are recomputed from the revealed deck otherwise.
func New(md round.RngMetadata, snap *provenance.Snapshot, status string, now time.Time) (*Proof, error) {
	if !md.Revealed() {
		return nil, fault.ErrUnavailable
	}
	if len(md.ShuffledDeck) != deck.Size {
		return nil, fault.Integrity(fault.ShuffledDeckMismatch, uint64(md.Round),
			"revealed deck has %d cards", len(md.ShuffledDeck))
	}

	p := &Proof{
		Version:        Version,
		Round:          md.Round,
		Status:         status,
		ExportedAt:     now.UTC(),
		Timestamp:      md.Timestamp,
		TransactionID:  md.TransactionID,
		RawRandomBytes: hex.EncodeToString(md.RawRandomBytes),
		TimeSeed:       strconv.FormatUint(*md.TimeSeed, 10),
		DeckHash:       md.DeckHash,
		ShuffledDeck:   append([]deck.Card(nil), md.ShuffledDeck...),
	}

	if snap != nil {
		if hashes, ok := snap.CommittedHashes(); ok {
			p.CardHashes = hashes
		}
		p.Provenance = snap.Records()
	}
	if p.CardHashes == nil {
		var cards [deck.Size]deck.Card
		copy(cards[:], md.ShuffledDeck)
		hashes, err := commit.CommitDeck(uint64(md.Round), cards)
		if err != nil {
			return nil, err
		}
		p.CardHashes = hashes[:]
	}

	root, err := commit.CommitmentRoot(p.CardHashes)
	if err != nil {
		return nil, err
	}
	p.CommitmentRoot = root
	return p, nil
}

// Metadata recovers the revealed shuffle metadata from the proof.
func (p *Proof) Metadata() (round.RngMetadata, error) {
	raw, err := hex.DecodeString(p.RawRandomBytes)
	if err != nil {
		return round.RngMetadata{}, fmt.Errorf("invalid raw_random_bytes: %w", err)
	}
	seed, err := strconv.ParseUint(p.TimeSeed, 10, 64)
	if err != nil {
		return round.RngMetadata{}, fmt.Errorf("invalid time_seed: %w", err)
	}
	return round.RngMetadata{
		Round:          p.Round,
		RawRandomBytes: raw,
		TimeSeed:       &seed,
		Timestamp:      p.Timestamp,
		DeckHash:       p.DeckHash,
		TransactionID:  p.TransactionID,
		ShuffledDeck:   append([]deck.Card(nil), p.ShuffledDeck...),
	}, nil
}

// Check replays the proof offline. It returns an *fault.IntegrityError for
// the first disagreement found.
func (p *Proof) Check() error {
	md, err := p.Metadata()
	if err != nil {
		return err
	}
	id := uint64(p.Round)
	if !md.Revealed() {
		return fault.Integrity(fault.ShuffledDeckMismatch, id, "proof carries no shuffled deck")
	}

	committed := make(map[round.Position]commit.Hash, len(p.CardHashes))
	for pos, h := range p.CardHashes {
		committed[round.Position(pos)] = h
	}
	if err := Audit(md, committed); err != nil {
		return err
	}
	if len(p.CardHashes) != deck.Size {
		return fault.Integrity(fault.CardHashMismatch, id, "proof carries %d card hashes", len(p.CardHashes))
	}
	root, err := commit.CommitmentRoot(p.CardHashes)
	if err != nil {
		return err
	}
	if root != p.CommitmentRoot {
		return fault.Integrity(fault.CardHashMismatch, id, "commitment root %s does not match card hashes", p.CommitmentRoot)
	}
	return nil
}
