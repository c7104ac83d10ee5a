package txid

import (
	rand "math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsValid(t *testing.T) {
	id := New()
	assert.Len(t, id, Length)
	require.NoError(t, Validate(id))
	assert.LessOrEqual(t, id[0], byte('7'))
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := New()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestDeterministicWithSource(t *testing.T) {
	at := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return at }

	a := NewGenerator(rand.New(rand.NewPCG(1, 2)), now).Generate()
	b := NewGenerator(rand.New(rand.NewPCG(1, 2)), now).Generate()
	c := NewGenerator(rand.New(rand.NewPCG(3, 4)), now).Generate()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	ts, err := Timestamp(a)
	require.NoError(t, err)
	assert.Equal(t, at, ts)
}

func TestSortsByTime(t *testing.T) {
	base := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(5, 6))
	var ids []string
	for i := range 10 {
		at := base.Add(time.Duration(i) * time.Millisecond)
		ids = append(ids, NewGenerator(rng, func() time.Time { return at }).Generate())
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"short", "0123"},
		{"first char too large", "8zzzzzzzzzzzzzzzzzzzzzzzzz"},
		{"bad alphabet", "01234567890123456789012u45"},
		{"wrong version", "00000000000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.id))
		})
	}
}
