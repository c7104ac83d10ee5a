package provenance

import (
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/fixture"
	"github.com/lox/dealproof/internal/round"
)

func newTestStore(t *testing.T, id round.ID) *Store {
	t.Helper()
	s := NewStore(zerolog.New(io.Discard))
	require.NoError(t, s.Reset(id))
	return s
}

func TestStoreIngestAndLookup(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 3, Seed: 1, Seats: fixture.Seats("me", "you")})
	d.DealTo(round.Flop)

	s := newTestStore(t, 3)
	viewer := round.PlayerID("me")
	require.NoError(t, s.Ingest(d.Provenance(&viewer)))

	snap := s.Snapshot()
	assert.Equal(t, round.ID(3), snap.Round())
	assert.Equal(t, d.HoleCards("me"), snap.HoleCardsOf("me"))
	assert.Len(t, snap.CommunityPositions(), 3)
	assert.Len(t, snap.HoleCardPositions(), 4)

	mine := snap.HoleCardsOf("me")[0]
	rec, ok := s.Lookup(mine)
	require.True(t, ok)
	pos, ok := s.LookupByCard(rec.Card)
	require.True(t, ok)
	assert.Equal(t, mine, pos)

	hashes, ok := snap.CommittedHashes()
	require.True(t, ok)
	_, err := commit.CommitmentRoot(hashes)
	require.NoError(t, err)

	stats := snap.Stats()
	assert.Equal(t, deck.Size, stats.Known)
	assert.Equal(t, 7, stats.Dealt)
	assert.Equal(t, 2, stats.Tagged)
	assert.Equal(t, 3, stats.Community)
}

func TestStoreUpsertIsIdempotentAndEnriches(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	committed := d.Provenance(nil)

	s := newTestStore(t, 1)
	require.NoError(t, s.Upsert(committed[0]))
	require.NoError(t, s.Upsert(committed[0]))

	d.DealOpening()
	dealt := d.Provenance(nil)
	require.NoError(t, s.Upsert(dealt[0]))

	rec, ok := s.Lookup(0)
	require.True(t, ok)
	require.NotNil(t, rec.Recipient)
	assert.Equal(t, round.PlayerID("b"), *rec.Recipient)

	// an untagged copy must not erase the tag
	require.NoError(t, s.Upsert(committed[0]))
	rec, _ = s.Lookup(0)
	assert.NotNil(t, rec.Recipient)
}

func TestStoreRejectsConflictingCard(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	records := d.Provenance(nil)

	s := newTestStore(t, 1)
	require.NoError(t, s.Upsert(records[0]))

	// a validly committed but different card claimed for the same position
	other := records[1].Card
	h, err := commit.CardHash(1, other, 0)
	require.NoError(t, err)
	forged := records[0]
	forged.Card = other
	forged.CommittedHash = h

	err = s.Upsert(forged)
	var ie *fault.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, fault.ConflictingRecord, ie.Kind)

	rec, _ := s.Lookup(0)
	assert.Equal(t, records[0].Card, rec.Card, "prior record survives")
}

func TestStoreRejectsHashMismatch(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	records := d.Provenance(nil)

	bad := records[5]
	bad.Card.Suit = (bad.Card.Suit + 1) % deck.NumSuits

	s := newTestStore(t, 1)
	err := s.Ingest(append(records[:5:5], bad))
	var ie *fault.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, fault.CardHashMismatch, ie.Kind)
	assert.Zero(t, s.Snapshot().Stats().Known, "batch applied atomically")
}

func TestStoreConflictingRecipient(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	d.DealOpening()
	rec := d.Provenance(nil)[0]

	s := newTestStore(t, 1)
	require.NoError(t, s.Upsert(rec))

	other := round.PlayerID("mallory")
	rec.Recipient = &other
	assert.True(t, fault.IsIntegrity(s.Upsert(rec)))
}

func TestStoreDuplicateCardIsLoggedNotFatal(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	records := d.Provenance(nil)

	dup := records[1]
	dup.Card = records[0].Card
	h, err := commit.CardHash(1, dup.Card, 1)
	require.NoError(t, err)
	dup.CommittedHash = h

	s := newTestStore(t, 1)
	require.NoError(t, s.Ingest([]round.CardProvenance{records[0], dup}))

	faults := s.Snapshot().Faults()
	require.Len(t, faults, 1)
	assert.Equal(t, fault.DuplicateCard, faults[0].Kind)
	_, ok := s.Lookup(1)
	assert.True(t, ok, "server data is kept")
}

func TestStoreRoundTransitions(t *testing.T) {
	d1 := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	s := newTestStore(t, 1)
	require.NoError(t, s.Ingest(d1.Provenance(nil)))

	old := s.Snapshot()
	require.NoError(t, s.Reset(2))
	assert.Zero(t, s.Snapshot().Stats().Known)
	assert.Equal(t, deck.Size, old.Stats().Known, "published snapshots are immutable")

	assert.True(t, fault.IsDomain(s.Reset(1), fault.StaleRound))
	assert.True(t, fault.IsDomain(s.Upsert(d1.Provenance(nil)[0]), fault.StaleRound))
}

func TestStoreFreeze(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	s := newTestStore(t, 1)
	require.NoError(t, s.Ingest(d.Provenance(nil)))
	s.Freeze()
	assert.True(t, s.Snapshot().Frozen())

	require.NoError(t, s.Ingest(d.Provenance(nil)), "identical upserts still accepted")

	d.DealOpening()
	assert.True(t, fault.IsDomain(s.Ingest(d.Provenance(nil)), fault.StaleRound))
}

func TestStoreConcurrentReaders(t *testing.T) {
	d := fixture.NewDealer(fixture.Options{Round: 1, Seed: 2, Seats: fixture.Seats("a", "b")})
	d.DealTo(round.River)
	records := d.Provenance(nil)
	s := newTestStore(t, 1)

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(2)
		go func(rec round.CardProvenance) {
			defer wg.Done()
			assert.NoError(t, s.Upsert(rec))
		}(records[i])
		go func() {
			defer wg.Done()
			_ = s.Snapshot().Stats()
		}()
	}
	wg.Wait()
	assert.Equal(t, deck.Size, s.Snapshot().Stats().Known)
}
