// Package fault defines the error taxonomy shared by the verification engine.
//
// Four classes exist:
//
//   - DomainError: inconsistent but non-fatal server data (duplicate cards,
//     community card counts) and malformed pure-computation input. Logged,
//     never corrected.
//   - IntegrityError: hash or deck mismatches. Surfaced, never retried.
//   - ErrUnavailable: the secret half of the commitment has not been revealed
//     yet. Callers map it to a pending status.
//   - TransportError: retrieval failures from the backend. The only retryable
//     class.
package fault

import (
	"errors"
	"fmt"
)

// ErrUnavailable reports that the time seed or shuffled deck is still withheld.
var ErrUnavailable = errors.New("shuffle data not yet revealed")

// ErrRoundNotConcluded is returned when a proof is requested for a live round.
var ErrRoundNotConcluded = errors.New("round not concluded")

// DomainKind classifies a DomainError.
type DomainKind int

const (
	DuplicateCard DomainKind = iota
	CommunityCountMismatch
	PositionOutOfRange
	MalformedCard
	StaleRound
)

func (k DomainKind) String() string {
	switch k {
	case DuplicateCard:
		return "duplicate_card"
	case CommunityCountMismatch:
		return "community_count_mismatch"
	case PositionOutOfRange:
		return "position_out_of_range"
	case MalformedCard:
		return "malformed_card"
	case StaleRound:
		return "stale_round"
	default:
		return "unknown"
	}
}

// DomainError is a logged, non-fatal consistency fault or a typed input error.
type DomainError struct {
	Kind   DomainKind
	Detail string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain fault (%s): %s", e.Kind, e.Detail)
}

// Domain builds a DomainError with a formatted detail message.
func Domain(kind DomainKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IntegrityKind classifies an IntegrityError.
type IntegrityKind int

const (
	CardHashMismatch IntegrityKind = iota
	DeckHashMismatch
	ShuffledDeckMismatch
	ConflictingRecord
	AttestationMismatch
)

func (k IntegrityKind) String() string {
	switch k {
	case CardHashMismatch:
		return "card_hash_mismatch"
	case DeckHashMismatch:
		return "deck_hash_mismatch"
	case ShuffledDeckMismatch:
		return "shuffled_deck_mismatch"
	case ConflictingRecord:
		return "conflicting_record"
	case AttestationMismatch:
		return "attestation_mismatch"
	default:
		return "unknown"
	}
}

// IntegrityError signals corrupted or malicious dealer data.
type IntegrityError struct {
	Kind   IntegrityKind
	Round  uint64
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity fault in round %d (%s): %s", e.Round, e.Kind, e.Detail)
}

// Integrity builds an IntegrityError with a formatted detail message.
func Integrity(kind IntegrityKind, round uint64, format string, args ...any) *IntegrityError {
	return &IntegrityError{Kind: kind, Round: round, Detail: fmt.Sprintf(format, args...)}
}

// TransportError wraps a failed retrieval from the backend collaborator.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport fault during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError for op. A nil err stays nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsRetryable reports whether err may be retried with backoff.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsIntegrity reports whether err carries an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsDomain reports whether err carries a DomainError of the given kind.
func IsDomain(err error, kind DomainKind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}
