package backend

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/fixture"
	"github.com/lox/dealproof/internal/round"
)

func newDealer(id round.ID) *fixture.Dealer {
	d := fixture.NewDealer(fixture.Options{Round: id, Seed: int64(id), Seats: fixture.Seats("alice", "bob", "carol")})
	d.DealTo(round.River)
	return d
}

func fastRetry(tries uint) RetryConfig {
	return RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxTries: tries}
}

func TestRetryingRecoversFromTransportFaults(t *testing.T) {
	mem := NewMemory()
	d := newDealer(1)
	mem.Add(d, nil)
	mem.FailNext(2)

	src := NewRetrying(mem, fastRetry(5), zerolog.New(io.Discard))
	md, err := src.RngMetadata(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, d.Metadata(false).DeckHash, md.DeckHash)
	assert.Equal(t, 3, mem.Calls())
}

func TestRetryingGivesUp(t *testing.T) {
	mem := NewMemory()
	mem.Add(newDealer(1), nil)
	mem.FailNext(10)

	src := NewRetrying(mem, fastRetry(3), zerolog.New(io.Discard))
	_, err := src.CardProvenance(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, fault.IsRetryable(err))
	assert.Equal(t, 3, mem.Calls())
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	mem := NewMemory()
	src := NewRetrying(mem, fastRetry(5), zerolog.New(io.Discard))

	_, err := src.RngMetadata(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, mem.Calls())

	mem.Add(newDealer(2), nil)
	_, err = src.ServerVerification(context.Background(), 2)
	assert.ErrorIs(t, err, fault.ErrUnavailable)
	assert.Equal(t, 2, mem.Calls())
}

func TestMemoryAttestation(t *testing.T) {
	mem := NewMemory()
	mem.Add(newDealer(3), nil)
	mem.Reveal(3)

	att, err := mem.ServerVerification(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, att.Verified)

	mem.SetAttestation(3, false)
	att, err = mem.ServerVerification(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, att.Verified)
}

type harness struct {
	mem     *Memory
	handler *Handler
	server  *httptest.Server
	client  *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := log.New(io.Discard)
	mem := NewMemory()
	h := NewHandler(mem, logger)
	srv := httptest.NewServer(h)
	c := NewClient(srv.URL, logger, 2*time.Second)
	t.Cleanup(func() {
		_ = c.Close()
		h.Close()
		srv.Close()
	})
	return &harness{mem: mem, handler: h, server: srv, client: c}
}

func TestClientFetchesOverWebsocket(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t)
	d := newDealer(7)
	viewer := round.PlayerID("bob")
	hs.mem.Add(d, &viewer)

	md, err := hs.client.RngMetadata(ctx, 7)
	require.NoError(t, err)
	assert.False(t, md.Revealed())
	assert.Equal(t, d.Metadata(false).DeckHash, md.DeckHash)
	assert.Equal(t, d.Metadata(false).RawRandomBytes, md.RawRandomBytes)

	records, err := hs.client.CardProvenance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, d.Provenance(&viewer), records)

	_, err = hs.client.ServerVerification(ctx, 7)
	assert.ErrorIs(t, err, fault.ErrUnavailable)

	hs.mem.Reveal(7)
	md, err = hs.client.RngMetadata(ctx, 7)
	require.NoError(t, err)
	require.True(t, md.Revealed())
	assert.Equal(t, d.Metadata(true).ShuffledDeck, md.ShuffledDeck)
	assert.Equal(t, *d.Metadata(true).TimeSeed, *md.TimeSeed)

	att, err := hs.client.ServerVerification(ctx, 7)
	require.NoError(t, err)
	assert.True(t, att.Verified)

	_, err = hs.client.RngMetadata(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, fault.IsRetryable(err))
}

func TestClientReceivesPhasePushes(t *testing.T) {
	hs := newHarness(t)
	d := newDealer(5)
	hs.mem.Add(d, nil)

	phases := make(chan round.Phase, 1)
	hs.client.OnPhase(func(p round.Phase) { phases <- p })

	_, err := hs.client.RngMetadata(context.Background(), 5)
	require.NoError(t, err)

	sent := d.Phase(true, "alice", "bob")
	require.Equal(t, 1, hs.handler.PublishPhase(sent))

	select {
	case got := <-phases:
		assert.Equal(t, sent.Round, got.Round)
		assert.Equal(t, round.Showdown, got.Stage)
		assert.Equal(t, sent.ShowdownContestants, got.ShowdownContestants)
		assert.Equal(t, sent.Seats, got.Seats)
	case <-time.After(2 * time.Second):
		t.Fatal("phase push not received")
	}
}

func TestClientTransportFailureIsRetryable(t *testing.T) {
	hs := newHarness(t)
	hs.mem.Add(newDealer(1), nil)
	_, err := hs.client.RngMetadata(context.Background(), 1)
	require.NoError(t, err)

	hs.handler.Close()
	hs.server.Close()

	require.Eventually(t, func() bool { return !hs.client.IsConnected() }, 2*time.Second, 10*time.Millisecond)
	_, err = hs.client.RngMetadata(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, fault.IsRetryable(err))
}

func TestClientUpstreamTransportFault(t *testing.T) {
	hs := newHarness(t)
	hs.mem.Add(newDealer(1), nil)
	hs.mem.FailNext(1)

	_, err := hs.client.RngMetadata(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, fault.IsRetryable(err), "dealer-side transport faults stay retryable")
}
