package round

import (
	"fmt"
	"strings"
)

// ActionKind is a betting action recorded in the action log.
type ActionKind uint8

const (
	Fold ActionKind = iota
	Check
	Call
	Bet
	Raise
	AllIn
)

func (k ActionKind) String() string {
	switch k {
	case Fold:
		return "fold"
	case Check:
		return "check"
	case Call:
		return "call"
	case Bet:
		return "bet"
	case Raise:
		return "raise"
	case AllIn:
		return "allin"
	default:
		return fmt.Sprintf("action(%d)", k)
	}
}

// IsAggressive reports whether the action kind can put in new money that
// others must match. An all-in only does so when it raises; see
// LastAggressor.
func (k ActionKind) IsAggressive() bool {
	switch k {
	case Bet, Raise, AllIn:
		return true
	case Fold, Check, Call:
		return false
	default:
		return false
	}
}

// ParseActionKind parses an action name as written in the action log.
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "bet":
		return Bet, nil
	case "raise":
		return Raise, nil
	case "allin", "all-in", "all_in":
		return AllIn, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Action is one entry of the betting log.
type Action struct {
	Player PlayerID   `json:"player"`
	Kind   ActionKind `json:"kind"`
	Stage  Stage      `json:"stage"`
	// Amount is the player's total commitment on the street after the action.
	// Zero means the log did not carry it.
	Amount int64 `json:"amount,omitempty"`
}

// raises reports whether a is aggressive against the street's highest
// commitment so far. An all-in with a known amount that does not exceed it
// is a call.
func (a Action) raises(level int64) bool {
	if !a.Kind.IsAggressive() {
		return false
	}
	if a.Kind == AllIn && a.Amount > 0 {
		return a.Amount > level
	}
	return true
}

// LastAggressor returns the player who made the last aggressive action on the
// final betting round present in the log.
func LastAggressor(actions []Action) (PlayerID, bool) {
	if len(actions) == 0 {
		return "", false
	}
	final := actions[0].Stage
	for _, a := range actions {
		if a.Stage > final && a.Stage != Showdown {
			final = a.Stage
		}
	}
	var (
		last  PlayerID
		found bool
		level int64
	)
	for _, a := range actions {
		if a.Stage != final {
			continue
		}
		if a.raises(level) {
			last, found = a.Player, true
		}
		level = max(level, a.Amount)
	}
	return last, found
}
