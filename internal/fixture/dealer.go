// Package fixture is a deterministic stand-in for the remote dealer. It commits
// a shuffle, deals hole and board cards with burns, and discloses provenance
// and shuffle metadata the way the real backend does. Tests, the in-memory
// backend and the demo command are built on it.
package fixture

import (
	"encoding/binary"
	rand "math/rand/v2"
	"time"

	"github.com/lox/dealproof/internal/commit"
	"github.com/lox/dealproof/internal/deck"
	"github.com/lox/dealproof/internal/round"
	"github.com/lox/dealproof/internal/txid"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// Options configures a synthetic round.
type Options struct {
	Round      round.ID
	Seed       int64
	Seats      []round.Seat
	DealerSeat int
	HoleCards  int
	// Descending deals from the bottom of the committed order (position 51
	// first) instead of the top.
	Descending bool
	Now        time.Time
}

// Dealer holds a committed round and deals from it.
type Dealer struct {
	opts Options

	raw      []byte
	timeSeed uint64
	txID     string
	cards    [deck.Size]deck.Card
	hashes   [deck.Size]commit.Hash
	deckHash commit.Hash

	records [deck.Size]round.CardProvenance
	next    int
	stage   round.Stage
	current round.Stage
	dealt   bool
}

// NewRng returns a *rand.Rand seeded deterministically from seed.
func NewRng(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// NewDealer commits a shuffle for opts. It panics only if the deterministic
// replay fails, which would be a bug in package deck.
func NewDealer(opts Options) *Dealer {
	if opts.HoleCards <= 0 {
		opts.HoleCards = round.DefaultHoleCards
	}
	if opts.Now.IsZero() {
		opts.Now = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	}

	rng := NewRng(opts.Seed)
	raw := make([]byte, 32)
	for i := 0; i < len(raw); i += 8 {
		binary.LittleEndian.PutUint64(raw[i:], rng.Uint64())
	}
	seed := uint64(opts.Now.UnixNano()) ^ rng.Uint64()

	cards, err := deck.Reconstruct(raw, &seed)
	if err != nil {
		panic("fixture: replay failed: " + err.Error())
	}
	hashes, err := commit.CommitDeck(uint64(opts.Round), cards)
	if err != nil {
		panic("fixture: commit failed: " + err.Error())
	}

	opts.Seats = append([]round.Seat(nil), opts.Seats...)

	d := &Dealer{
		opts:     opts,
		raw:      raw,
		timeSeed: seed,
		cards:    cards,
		hashes:   hashes,
		deckHash: commit.DeckHash(cards[:]),
		stage:    round.Opening,
		txID:     txid.NewGenerator(rng, func() time.Time { return opts.Now }).Generate(),
	}
	for pos, c := range cards {
		d.records[pos] = round.CardProvenance{
			Round:            opts.Round,
			Position:         round.Position(pos),
			OriginalPosition: c.Index(),
			Card:             c,
			CommittedHash:    hashes[pos],
		}
	}
	return d
}

// Round returns the round id the deck was committed for.
func (d *Dealer) Round() round.ID { return d.opts.Round }

// Cards returns the committed deck order.
func (d *Dealer) Cards() [deck.Size]deck.Card { return d.cards }

// Stage returns the last street dealt.
func (d *Dealer) Stage() round.Stage { return d.current }

func (d *Dealer) nextPosition() int {
	idx := d.next
	d.next++
	if d.opts.Descending {
		return deck.Size - 1 - idx
	}
	return idx
}

func (d *Dealer) deal(to *round.PlayerID, at round.Stage) round.Position {
	pos := d.nextPosition()
	st := at
	d.records[pos].DealtAt = &st
	if to != nil {
		p := *to
		d.records[pos].Recipient = &p
	}
	return round.Position(pos)
}

func (d *Dealer) burn() {
	d.nextPosition()
}

// Fold marks player's seat folded in subsequent phase signals.
func (d *Dealer) Fold(player round.PlayerID) {
	for i := range d.opts.Seats {
		if d.opts.Seats[i].Player == player {
			d.opts.Seats[i].Folded = true
		}
	}
}

// Seats builds consecutive seats 0..n-1 for players.
func Seats(players ...round.PlayerID) []round.Seat {
	seats := make([]round.Seat, len(players))
	for i, p := range players {
		seats[i] = round.Seat{Index: i, Player: p}
	}
	return seats
}

// phase returns a phase skeleton describing the table.
func (d *Dealer) phase() round.Phase {
	return round.Phase{
		Round:      d.opts.Round,
		Seats:      append([]round.Seat(nil), d.opts.Seats...),
		DealerSeat: d.opts.DealerSeat,
		HoleCards:  d.opts.HoleCards,
	}
}

// DealOpening deals one card per dealt-in seat per pass, clockwise from the
// first seat after the dealer, HoleCards passes.
func (d *Dealer) DealOpening() {
	if d.dealt {
		return
	}
	d.dealt = true
	seats := d.phase().DealtSeats()
	for range d.opts.HoleCards {
		for _, s := range seats {
			p := s.Player
			d.deal(&p, round.Opening)
		}
	}
	d.stage = round.Flop
}

// DealNext burns and deals the next street. It is a no-op after the river.
func (d *Dealer) DealNext() {
	switch d.stage {
	case round.Opening:
		d.DealOpening()
	case round.Flop:
		d.burn()
		for range 3 {
			d.deal(nil, round.Flop)
		}
		d.stage, d.current = round.Turn, round.Flop
	case round.Turn:
		d.burn()
		d.deal(nil, round.Turn)
		d.stage, d.current = round.River, round.Turn
	case round.River:
		d.burn()
		d.deal(nil, round.River)
		d.stage, d.current = round.Showdown, round.River
	case round.Showdown:
	}
}

// DealTo advances dealing until stage has been dealt.
func (d *Dealer) DealTo(stage round.Stage) {
	if stage > round.River {
		stage = round.River
	}
	d.DealOpening()
	for d.current < stage {
		d.DealNext()
	}
}

// Provenance returns every record as the backend would disclose it to viewer:
// hole cards of other players have their recipient withheld. A nil viewer
// receives fully tagged records.
func (d *Dealer) Provenance(viewer *round.PlayerID) []round.CardProvenance {
	out := make([]round.CardProvenance, 0, deck.Size)
	for _, rec := range d.records {
		r := rec
		if viewer != nil && r.IsHoleCard() && !r.HeldBy(*viewer) {
			r.Recipient = nil
		}
		if r.Recipient != nil {
			p := *r.Recipient
			r.Recipient = &p
		}
		if r.DealtAt != nil {
			st := *r.DealtAt
			r.DealtAt = &st
		}
		out = append(out, r)
	}
	return out
}

// Metadata returns the shuffle disclosure. The time seed and deck are only
// included when revealed is true.
func (d *Dealer) Metadata(revealed bool) round.RngMetadata {
	md := round.RngMetadata{
		Round:          d.opts.Round,
		RawRandomBytes: append([]byte(nil), d.raw...),
		Timestamp:      d.opts.Now,
		DeckHash:       d.deckHash,
		TransactionID:  d.txID,
	}
	if revealed {
		seed := d.timeSeed
		md.TimeSeed = &seed
		md.ShuffledDeck = append([]deck.Card(nil), d.cards[:]...)
	}
	return md
}

// HoleCards returns the positions dealt to player, ascending.
func (d *Dealer) HoleCards(player round.PlayerID) []round.Position {
	var out []round.Position
	for _, rec := range d.records {
		if rec.IsHoleCard() && rec.HeldBy(player) {
			out = append(out, rec.Position)
		}
	}
	return out
}

// Owners returns the true position to player mapping for all hole cards.
func (d *Dealer) Owners() map[round.Position]round.PlayerID {
	out := make(map[round.Position]round.PlayerID)
	for _, rec := range d.records {
		if rec.IsHoleCard() && rec.Recipient != nil {
			out[rec.Position] = *rec.Recipient
		}
	}
	return out
}

// Phase builds the game-phase signal for the current dealing progress.
func (d *Dealer) Phase(concluded bool, contestants ...round.PlayerID) round.Phase {
	ph := d.phase()
	ph.Stage = d.current
	ph.Concluded = concluded
	if concluded && len(contestants) >= 2 {
		ph.Stage = round.Showdown
	}
	ph.ShowdownContestants = append([]round.PlayerID(nil), contestants...)
	return ph
}
