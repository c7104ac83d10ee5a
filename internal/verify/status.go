package verify

import "fmt"

// Status is the verdict on a round's shuffle.
type Status uint8

const (
	// Pending: the round is live or the secret half is still withheld.
	Pending Status = iota
	// Verified: the replayed deck matches every commitment.
	Verified
	// Failed: some commitment disagrees with the replay.
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Final reports whether the status can no longer change.
func (s Status) Final() bool {
	return s == Verified || s == Failed
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = Pending
	case "verified":
		*s = Verified
	case "failed":
		*s = Failed
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}
