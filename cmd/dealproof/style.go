package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/verify"
	"github.com/lox/dealproof/internal/visibility"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	verifiedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	failedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

func renderStatus(s verify.Status) string {
	label := strings.ToUpper(s.String())
	switch s {
	case verify.Verified:
		return verifiedStyle.Render(label)
	case verify.Failed:
		return failedStyle.Render(label)
	default:
		return pendingStyle.Render(label)
	}
}

// printVerdict writes a one-line verdict and, on failure, the reason.
func printVerdict(w io.Writer, id round.ID, s verify.Status, err error) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(fmt.Sprintf("Round %d", id)), renderStatus(s))
	if err != nil {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(err.Error()))
	}
}

func renderCards(cards []deck.Card) string {
	if len(cards) == 0 {
		return dimStyle.Render("--")
	}
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.Pretty()
	}
	return strings.Join(parts, " ")
}

// cardsFor collects visible cards with the given reason. A non-nil owner
// keeps only that player's cards.
func cardsFor(res visibility.Result, why visibility.Reason, owner *round.PlayerID) []deck.Card {
	var out []deck.Card
	for _, v := range res.Revealed() {
		if v.Reason != why {
			continue
		}
		if owner != nil && (v.Owner == nil || *v.Owner != *owner) {
			continue
		}
		out = append(out, *v.Card)
	}
	return out
}

// printDeck writes a deck thirteen cards per row with the first position of
// each row.
func printDeck(w io.Writer, cards []deck.Card) {
	for i := 0; i < len(cards); i += 13 {
		end := min(i+13, len(cards))
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%2d", i)), renderCards(cards[i:end]))
	}
}
