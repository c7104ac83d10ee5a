package reveal

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dealproof/internal/round"
)

func seats(players ...round.PlayerID) []round.Seat {
	out := make([]round.Seat, len(players))
	for i, p := range players {
		out[i] = round.Seat{Index: i, Player: p}
	}
	return out
}

func showdown(id round.ID, dealer int, contestants ...round.PlayerID) round.Phase {
	return round.Phase{
		Round:               id,
		Stage:               round.Showdown,
		Concluded:           true,
		Seats:               seats("a", "b", "c", "d", "e"),
		DealerSeat:          dealer,
		ShowdownContestants: contestants,
	}
}

func TestComputeOrder(t *testing.T) {
	bet := func(p round.PlayerID, k round.ActionKind, st round.Stage) round.Action {
		return round.Action{Player: p, Kind: k, Stage: st}
	}
	tests := []struct {
		name  string
		phase func() round.Phase
		want  Order
	}{
		{
			name:  "no aggression starts left of dealer",
			phase: func() round.Phase { return showdown(1, 0, "a", "c", "e") },
			want:  Order{"c", "e", "a"},
		},
		{
			name: "last river aggressor shows first",
			phase: func() round.Phase {
				p := showdown(1, 0, "a", "c", "e")
				p.Actions = []round.Action{
					bet("c", round.Bet, round.Flop),
					bet("a", round.Raise, round.Turn),
					bet("e", round.Bet, round.River),
					bet("a", round.Call, round.River),
				}
				return p
			},
			want: Order{"e", "a", "c"},
		},
		{
			name: "explicit aggressor beats the log",
			phase: func() round.Phase {
				p := showdown(1, 2, "a", "b", "d")
				who := round.PlayerID("b")
				p.LastAggressor = &who
				p.Actions = []round.Action{bet("d", round.Bet, round.River)}
				return p
			},
			want: Order{"b", "d", "a"},
		},
		{
			name: "folded aggressor is ignored",
			phase: func() round.Phase {
				p := showdown(1, 3, "a", "b")
				p.Actions = []round.Action{bet("e", round.AllIn, round.River)}
				return p
			},
			want: Order{"a", "b"},
		},
		{
			name:  "single contestant has no showdown",
			phase: func() round.Phase { return showdown(1, 0, "b") },
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase := tt.phase()
			got := ComputeOrder(phase)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ComputeOrder(phase), "stable under recomputation")
		})
	}
}

type recorder struct {
	mu  sync.Mutex
	got []round.PlayerID
}

func (r *recorder) disclose(_ round.ID, p round.PlayerID, _ int) {
	r.mu.Lock()
	r.got = append(r.got, p)
	r.mu.Unlock()
}

func (r *recorder) list() []round.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]round.PlayerID(nil), r.got...)
}

func TestSchedulerStagedDisclosure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	s := NewScheduler(clock, time.Second, zerolog.New(io.Discard))
	rec := &recorder{}
	s.OnDisclose(rec.disclose)

	order := s.Start(showdown(7, 0, "a", "c", "e"))
	require.Equal(t, Order{"c", "e", "a"}, order)

	_, n := s.Progress(7)
	assert.Equal(t, 1, n, "first revealer shows immediately")
	assert.Equal(t, []round.PlayerID{"c"}, s.Disclosed(7))

	clock.Advance(time.Second).MustWait(ctx)
	assert.Equal(t, []round.PlayerID{"c", "e"}, s.Disclosed(7))

	clock.Advance(time.Second).MustWait(ctx)
	_, n = s.Progress(7)
	assert.Equal(t, 3, n)
	assert.Equal(t, []round.PlayerID{"c", "e", "a"}, rec.list())
	assert.Zero(t, s.Pending())
}

func TestSchedulerOrderIsCachedPerRound(t *testing.T) {
	s := NewScheduler(quartz.NewMock(t), time.Second, zerolog.New(io.Discard))
	first := s.Order(showdown(2, 0, "a", "b"))

	changed := showdown(2, 0, "a", "b")
	who := round.PlayerID("a")
	changed.LastAggressor = &who
	assert.Equal(t, first, s.Order(changed))

	assert.Equal(t, Order{"a", "b"}, s.Order(showdown(3, 4, "a", "b")))
}

func TestSchedulerNoShowdown(t *testing.T) {
	s := NewScheduler(quartz.NewMock(t), time.Second, zerolog.New(io.Discard))
	assert.Empty(t, s.Start(showdown(4, 0, "a")))
	order, n := s.Progress(4)
	assert.Empty(t, order)
	assert.Zero(t, n)
	assert.Empty(t, s.Disclosed(4))
}

func TestSchedulerRoundChangeStopsTimers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	s := NewScheduler(clock, time.Second, zerolog.New(io.Discard))
	rec := &recorder{}
	s.OnDisclose(rec.disclose)

	s.Start(showdown(1, 0, "a", "b", "c"))
	assert.Equal(t, 1, s.Pending())

	s.Reset(2)
	assert.Zero(t, s.Pending())
	order, _ := s.Progress(1)
	assert.Empty(t, order)

	// the stopped timers must not fire into the next round
	s.Start(showdown(2, 0, "d", "e"))
	clock.Advance(time.Second).MustWait(ctx)
	assert.Equal(t, []round.PlayerID{"b", "d", "e"}, rec.list())

	s.Cancel(2)
	assert.Zero(t, s.Pending())
}

func TestSchedulerIgnoresSupersededRound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	s := NewScheduler(clock, time.Second, zerolog.New(io.Discard))
	rec := &recorder{}
	s.OnDisclose(rec.disclose)

	s.Reset(5)
	assert.Nil(t, s.Start(showdown(4, 0, "a", "b", "c")), "a late start for the previous round")
	assert.Zero(t, s.Pending())
	order, _ := s.Progress(4)
	assert.Empty(t, order)

	clock.Advance(time.Second).MustWait(ctx)
	assert.Empty(t, rec.list())

	assert.NotEmpty(t, s.Start(showdown(5, 0, "a", "b")))
	assert.Len(t, rec.list(), 1)
}
