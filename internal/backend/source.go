// Package backend talks to the remote dealer: it fetches shuffle metadata,
// provenance records and the server's own verification verdict, and relays
// game-phase pushes.
package backend

import (
	"context"
	"errors"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/round"
)

// ErrNotFound is returned for rounds the backend does not know.
var ErrNotFound = errors.New("round not found")

// Attestation is the dealer's independent verdict on its own shuffle.
type Attestation struct {
	Round    round.ID    `json:"round_id"`
	Verified bool        `json:"verified"`
	DeckHash commit.Hash `json:"deck_hash"`
	Detail   string      `json:"detail,omitempty"`
}

// Source supplies round data. Implementations return *fault.TransportError
// for retrieval failures so callers can tell them apart from bad data.
type Source interface {
	RngMetadata(ctx context.Context, id round.ID) (round.RngMetadata, error)
	CardProvenance(ctx context.Context, id round.ID) ([]round.CardProvenance, error)
	ServerVerification(ctx context.Context, id round.ID) (Attestation, error)
}

// PhaseHandler receives game-phase signals.
type PhaseHandler func(round.Phase)
