package deck

// Size is the number of cards in a standard deck.
const Size = NumRanks * NumSuits

// Sorted returns the dealer's canonical starting order: rank-major from Two,
// suit-minor in Suit declaration order (2s, 2c, 2h, 2d, 3s, ... Ad).
func Sorted() [Size]Card {
	var cards [Size]Card
	i := 0
	for rank := Two; rank <= Ace; rank++ {
		for suit := Spades; suit <= Diamonds; suit++ {
			cards[i] = NewCard(rank, suit)
			i++
		}
	}
	return cards
}

// Duplicates returns every card that appears more than once in cards.
func Duplicates(cards []Card) []Card {
	var seen [Size]bool
	var dups []Card
	for _, c := range cards {
		if !c.Valid() {
			continue
		}
		idx := c.Index()
		if seen[idx] {
			dups = append(dups, c)
			continue
		}
		seen[idx] = true
	}
	return dups
}

// Equal reports whether a and b hold the same cards in the same order.
func Equal(a, b []Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
