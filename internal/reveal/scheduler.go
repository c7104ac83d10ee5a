package reveal

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/dealproof/internal/round"
)

// DefaultDelay is the pause between successive disclosures.
const DefaultDelay = 1500 * time.Millisecond

// DiscloseFunc is invoked, outside the scheduler lock, each time a
// contestant's cards become visible to showdown viewers.
type DiscloseFunc func(id round.ID, player round.PlayerID, slot int)

// schedule is the per-round state. The order never changes once set.
type schedule struct {
	order     Order
	key       string
	disclosed int
	started   bool
	timers    []*quartz.Timer
}

func (s *schedule) stop() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// Scheduler caches reveal orders per round and drives staged disclosure off
// a quartz clock. Every pending timer belongs to exactly one round and is
// stopped when that round is cancelled or replaced.
type Scheduler struct {
	clock  quartz.Clock
	delay  time.Duration
	logger zerolog.Logger

	mu         sync.Mutex
	rounds     map[round.ID]*schedule
	current    round.ID
	onDisclose DiscloseFunc
}

// NewScheduler creates a scheduler. A non-positive delay uses DefaultDelay.
func NewScheduler(clock quartz.Clock, delay time.Duration, logger zerolog.Logger) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{
		clock:  clock,
		delay:  delay,
		logger: logger.With().Str("component", "reveal").Logger(),
		rounds: make(map[round.ID]*schedule),
	}
}

// OnDisclose registers fn to be called on every disclosure.
func (s *Scheduler) OnDisclose(fn DiscloseFunc) {
	s.mu.Lock()
	s.onDisclose = fn
	s.mu.Unlock()
}

// Order returns the reveal order for phase's round, computing and caching it
// on first use. Later calls with different inputs keep the cached order.
func (s *Scheduler) Order(phase round.Phase) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderLocked(phase).order
}

func (s *Scheduler) orderLocked(phase round.Phase) *schedule {
	key := fingerprint(phase)
	if sch, ok := s.rounds[phase.Round]; ok {
		if sch.key != key {
			s.logger.Warn().
				Uint64("round", uint64(phase.Round)).
				Msg("Reveal inputs changed after order was fixed; keeping cached order")
		}
		return sch
	}
	sch := &schedule{order: ComputeOrder(phase), key: key}
	s.rounds[phase.Round] = sch
	return sch
}

// Start begins staged disclosure for phase's round. The first revealer is
// disclosed immediately and each later one after a further delay. Starting
// an already started round is a no-op, and a round older than the last Reset
// is never started.
func (s *Scheduler) Start(phase round.Phase) Order {
	s.mu.Lock()
	if phase.Round < s.current {
		s.mu.Unlock()
		s.logger.Debug().
			Uint64("round", uint64(phase.Round)).
			Uint64("current", uint64(s.current)).
			Msg("Ignoring reveal start for a superseded round")
		return nil
	}
	sch := s.orderLocked(phase)
	if sch.started || len(sch.order) == 0 {
		s.mu.Unlock()
		return sch.order
	}
	sch.started = true
	sch.disclosed = 1
	id := phase.Round
	for i := 1; i < len(sch.order); i++ {
		slot := i
		t := s.clock.AfterFunc(time.Duration(slot)*s.delay, func() {
			s.advance(id, sch, slot)
		}, "reveal", "disclose")
		sch.timers = append(sch.timers, t)
	}
	fn := s.onDisclose
	first := sch.order[0]
	s.mu.Unlock()

	s.logger.Debug().
		Uint64("round", uint64(id)).
		Int("contestants", len(sch.order)).
		Str("first", string(first)).
		Msg("Showdown reveal started")
	if fn != nil {
		fn(id, first, 0)
	}
	return sch.order
}

func (s *Scheduler) advance(id round.ID, sch *schedule, slot int) {
	s.mu.Lock()
	if s.rounds[id] != sch || !sch.started || slot < sch.disclosed {
		s.mu.Unlock()
		return
	}
	sch.disclosed = slot + 1
	fn := s.onDisclose
	player := sch.order[slot]
	s.mu.Unlock()

	s.logger.Debug().
		Uint64("round", uint64(id)).
		Int("slot", slot).
		Str("player", string(player)).
		Msg("Disclosed showdown hand")
	if fn != nil {
		fn(id, player, slot)
	}
}

// Progress returns the cached order for id and how many of its leading
// contestants have been disclosed.
func (s *Scheduler) Progress(id round.ID) (Order, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.rounds[id]
	if !ok {
		return nil, 0
	}
	return append(Order(nil), sch.order...), sch.disclosed
}

// Disclosed returns the contestants of id disclosed so far.
func (s *Scheduler) Disclosed(id round.ID) []round.PlayerID {
	order, n := s.Progress(id)
	return order[:n]
}

// Cancel stops the pending disclosures of id and forgets its order.
func (s *Scheduler) Cancel(id round.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sch, ok := s.rounds[id]; ok {
		sch.stop()
		delete(s.rounds, id)
	}
}

// Reset drops every round other than id along with its pending timers. Rounds
// older than id can no longer be started.
func (s *Scheduler) Reset(id round.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
	for rid, sch := range s.rounds {
		if rid == id {
			continue
		}
		sch.stop()
		delete(s.rounds, rid)
	}
}

// Pending reports how many rounds still have timers outstanding.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sch := range s.rounds {
		if sch.started && sch.disclosed < len(sch.order) && len(sch.timers) > 0 {
			n++
		}
	}
	return n
}
