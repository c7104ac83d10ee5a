// Package reveal decides who shows first at showdown and paces the
// disclosure of each contestant's hole cards.
package reveal

import (
	"fmt"
	"strings"

	"github.com/lox/dealproof/internal/round"
)

// Order is the sequence in which showdown contestants reveal.
type Order []round.PlayerID

// Index returns the reveal slot of player, or -1.
func (o Order) Index(player round.PlayerID) int {
	for i, p := range o {
		if p == player {
			return i
		}
	}
	return -1
}

// ComputeOrder derives the reveal order from a showdown phase. The last
// aggressor of the final betting round shows first when still a contestant;
// otherwise the first contestant clockwise from the dealer does. The others
// follow clockwise from the first revealer. Fewer than two contestants means
// there is no showdown and the order is empty.
func ComputeOrder(phase round.Phase) Order {
	if len(phase.ShowdownContestants) < 2 {
		return nil
	}

	var seated Order
	placed := make(map[round.PlayerID]bool, len(phase.ShowdownContestants))
	for _, s := range phase.DealtSeats() {
		if phase.InShowdown(s.Player) && !placed[s.Player] {
			seated = append(seated, s.Player)
			placed[s.Player] = true
		}
	}
	// contestants without a known seat go last, in the order reported
	for _, p := range phase.ShowdownContestants {
		if !placed[p] {
			seated = append(seated, p)
			placed[p] = true
		}
	}

	first := 0
	if aggressor, ok := lastAggressor(phase); ok {
		if i := seated.Index(aggressor); i >= 0 {
			first = i
		}
	}
	out := make(Order, 0, len(seated))
	out = append(out, seated[first:]...)
	return append(out, seated[:first]...)
}

func lastAggressor(phase round.Phase) (round.PlayerID, bool) {
	if phase.LastAggressor != nil {
		return *phase.LastAggressor, true
	}
	return round.LastAggressor(phase.Actions)
}

// fingerprint captures every input ComputeOrder reads.
func fingerprint(phase round.Phase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "d%d|", phase.DealerSeat)
	for _, s := range phase.DealtSeats() {
		fmt.Fprintf(&b, "%d:%s,", s.Index, s.Player)
	}
	b.WriteString("|")
	for _, p := range phase.ShowdownContestants {
		fmt.Fprintf(&b, "%s,", p)
	}
	b.WriteString("|")
	if p, ok := lastAggressor(phase); ok {
		b.WriteString(string(p))
	}
	return b.String()
}
