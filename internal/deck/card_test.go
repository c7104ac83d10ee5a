package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dealproof/internal/fault"
)

func TestParseCards(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Card
		wantErr  bool
	}{
		{
			name:  "royal flush",
			input: "AsKsQsJsTs",
			expected: []Card{
				{Suit: Spades, Rank: Ace},
				{Suit: Spades, Rank: King},
				{Suit: Spades, Rank: Queen},
				{Suit: Spades, Rank: Jack},
				{Suit: Spades, Rank: Ten},
			},
		},
		{
			name:  "canonical list",
			input: "A:h, K:d Q:c",
			expected: []Card{
				{Suit: Hearts, Rank: Ace},
				{Suit: Diamonds, Rank: King},
				{Suit: Clubs, Rank: Queen},
			},
		},
		{
			name:  "case insensitive",
			input: "asKHqDjc",
			expected: []Card{
				{Suit: Spades, Rank: Ace},
				{Suit: Hearts, Rank: King},
				{Suit: Diamonds, Rank: Queen},
				{Suit: Clubs, Rank: Jack},
			},
		},
		{
			name:    "invalid rank",
			input:   "XsKs",
			wantErr: true,
		},
		{
			name:    "invalid suit",
			input:   "AsKx",
			wantErr: true,
		},
		{
			name:    "odd length",
			input:   "AsK",
			wantErr: true,
		},
		{
			name:     "empty string",
			input:    "",
			expected: []Card{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCards(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, fault.IsDomain(err, fault.MalformedCard))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	for _, c := range Sorted() {
		text, err := c.MarshalText()
		require.NoError(t, err)

		var back Card
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, c, back)
	}

	assert.Equal(t, "A:s", NewCard(Ace, Spades).Canonical())
	assert.Equal(t, "T:h", NewCard(Ten, Hearts).Canonical())
	assert.Equal(t, "A♠", NewCard(Ace, Spades).Pretty())
}

func TestMarshalInvalidCard(t *testing.T) {
	_, err := Card{Rank: 1, Suit: Spades}.MarshalText()
	require.Error(t, err)
	assert.True(t, fault.IsDomain(err, fault.MalformedCard))
}

func TestSortedDeck(t *testing.T) {
	cards := Sorted()
	assert.Equal(t, NewCard(Two, Spades), cards[0])
	assert.Equal(t, NewCard(Two, Clubs), cards[1])
	assert.Equal(t, NewCard(Ace, Diamonds), cards[Size-1])
	assert.Empty(t, Duplicates(cards[:]))

	for i, c := range cards {
		assert.Equal(t, i, c.Index(), "index of %s", c)
	}
}

func TestDuplicates(t *testing.T) {
	as := NewCard(Ace, Spades)
	dups := Duplicates([]Card{as, NewCard(King, Hearts), as})
	assert.Equal(t, []Card{as}, dups)
}
