package inference

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dealproof/internal/fixture"
	"github.com/lox/dealproof/internal/provenance"
	"github.com/lox/dealproof/internal/round"
)

func snapshotFor(t *testing.T, d *fixture.Dealer, viewer *round.PlayerID) *provenance.Snapshot {
	t.Helper()
	s := provenance.NewStore(zerolog.New(io.Discard))
	require.NoError(t, s.Reset(d.Phase(false).Round))
	require.NoError(t, s.Ingest(d.Provenance(viewer)))
	return s.Snapshot()
}

func fourHanded(descending bool) *fixture.Dealer {
	d := fixture.NewDealer(fixture.Options{
		Round:      4,
		Seed:       99,
		Seats:      fixture.Seats("a", "b", "c", "d"),
		Descending: descending,
	})
	d.DealTo(round.Flop)
	return d
}

func TestInferFullyTagged(t *testing.T) {
	d := fourHanded(false)
	res := Infer(Input{Viewer: "a", Snapshot: snapshotFor(t, d, nil), Phase: d.Phase(false)})

	require.Len(t, res.Hands, 3)
	for _, h := range res.Hands {
		assert.True(t, h.Complete, h.Seat.Player)
		assert.False(t, h.LowConfidence)
		for _, c := range h.Cards {
			assert.Equal(t, Tagged, c.Confidence)
		}
		assert.ElementsMatch(t, d.HoleCards(h.Seat.Player), h.Positions())
	}
}

func TestInferRedacted(t *testing.T) {
	for _, tc := range []struct {
		name       string
		players    []round.PlayerID
		stage      round.Stage
		descending bool
		viewer     round.PlayerID
		direction  int
		lowConf    bool
	}{
		{"ascending last to act", []round.PlayerID{"a", "b", "c", "d"}, round.Flop, false, "a", 1, false},
		{"ascending mid table", []round.PlayerID{"a", "b", "c", "d"}, round.Flop, false, "c", 1, false},
		{"descending last to act", []round.PlayerID{"a", "b", "c", "d"}, round.Flop, true, "a", -1, false},
		{"descending first to act", []round.PlayerID{"a", "b", "c", "d"}, round.Flop, true, "b", -1, false},
		{"three handed tie before the board", []round.PlayerID{"a", "b", "c"}, round.Opening, true, "c", -1, true},
		{"three handed tie broken by the board", []round.PlayerID{"a", "b", "c"}, round.Flop, true, "c", -1, false},
		{"three handed ascending tie broken by the board", []round.PlayerID{"a", "b", "c"}, round.Flop, false, "c", 1, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := fixture.NewDealer(fixture.Options{
				Round:      4,
				Seed:       99,
				Seats:      fixture.Seats(tc.players...),
				Descending: tc.descending,
			})
			d.DealTo(tc.stage)
			viewer := tc.viewer
			res := Infer(Input{Viewer: viewer, Snapshot: snapshotFor(t, d, &viewer), Phase: d.Phase(false)})

			assert.Equal(t, tc.direction, res.Direction)
			assert.Equal(t, tc.lowConf, res.Ambiguous)
			require.Len(t, res.Hands, len(tc.players)-1)
			for _, h := range res.Hands {
				assert.NotEqual(t, viewer, h.Seat.Player)
				assert.True(t, h.Complete, h.Seat.Player)
				assert.Equal(t, tc.lowConf, h.LowConfidence, h.Seat.Player)
				for _, c := range h.Cards {
					assert.Equal(t, Exact, c.Confidence)
				}
				assert.ElementsMatch(t, d.HoleCards(h.Seat.Player), h.Positions(), h.Seat.Player)
			}

			owners := d.Owners()
			for pos, p := range res.Attribution() {
				assert.Equal(t, owners[pos], p, "position %d", pos)
			}
		})
	}
}

// withoutStages drops the stage from every record whose recipient is
// withheld, as a backend that redacts both fields would send it.
func withoutStages(recs []round.CardProvenance) []round.CardProvenance {
	for i := range recs {
		if recs[i].Recipient == nil && recs[i].IsHoleCard() {
			recs[i].DealtAt = nil
		}
	}
	return recs
}

func TestInferStageWithheld(t *testing.T) {
	for _, descending := range []bool{false, true} {
		d := fourHanded(descending)
		viewer := round.PlayerID("a")
		s := provenance.NewStore(zerolog.New(io.Discard))
		require.NoError(t, s.Reset(d.Round()))
		require.NoError(t, s.Ingest(withoutStages(d.Provenance(&viewer))))
		snap := s.Snapshot()
		require.Len(t, snap.HoleCardPositions(), 2, "only the viewer's cards carry a stage")

		res := Infer(Input{Viewer: viewer, Snapshot: snap, Phase: d.Phase(false)})
		assert.False(t, res.Ambiguous)
		require.Len(t, res.Hands, 3)
		for _, h := range res.Hands {
			assert.True(t, h.Complete, h.Seat.Player)
			assert.False(t, h.LowConfidence, h.Seat.Player)
			assert.ElementsMatch(t, d.HoleCards(h.Seat.Player), h.Positions(), h.Seat.Player)
		}
		assert.Equal(t, d.Owners(), withViewer(res.Attribution(), d.HoleCards(viewer), viewer))
	}
}

func withViewer(m map[round.Position]round.PlayerID, mine []round.Position, viewer round.PlayerID) map[round.Position]round.PlayerID {
	for _, pos := range mine {
		m[pos] = viewer
	}
	return m
}

func TestInferFoldedSeatsKeepTheirSlot(t *testing.T) {
	d := fourHanded(false)
	d.Fold("c")
	viewer := round.PlayerID("a")
	res := Infer(Input{Viewer: viewer, Snapshot: snapshotFor(t, d, &viewer), Phase: d.Phase(false)})

	h, ok := res.Hand("d")
	require.True(t, ok)
	assert.ElementsMatch(t, d.HoleCards("d"), h.Positions())
	h, ok = res.Hand("c")
	require.True(t, ok)
	assert.ElementsMatch(t, d.HoleCards("c"), h.Positions())
}

func TestInferSpectatorGetsNothing(t *testing.T) {
	d := fourHanded(false)
	spectator := round.PlayerID("rail")
	res := Infer(Input{Viewer: spectator, Snapshot: snapshotFor(t, d, &spectator), Phase: d.Phase(false)})

	assert.Zero(t, res.Direction)
	require.Len(t, res.Hands, 4)
	for _, h := range res.Hands {
		assert.Empty(t, h.Cards)
		assert.True(t, h.LowConfidence)
	}
	assert.Empty(t, res.Attribution())
}

func TestInferNilSnapshot(t *testing.T) {
	assert.Empty(t, Infer(Input{Viewer: "a"}).Hands)
}

func TestPickFallsBack(t *testing.T) {
	var b board
	b.hole[20] = true
	b.hole[40] = true

	c, ok := pick(&b, [2]int{10, 10}, DefaultSearchRadius)
	require.True(t, ok)
	assert.Equal(t, Widened, c.Confidence)
	assert.Equal(t, round.Position(20), c.Position)

	b.assigned[20] = true
	c, ok = pick(&b, [2]int{10, 10}, DefaultSearchRadius)
	require.True(t, ok)
	assert.Equal(t, Unverified, c.Confidence)
	assert.Equal(t, round.Position(40), c.Position)

	b.assigned[40] = true
	_, ok = pick(&b, [2]int{10, 10}, DefaultSearchRadius)
	assert.False(t, ok)
}
