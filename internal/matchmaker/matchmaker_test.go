package matchmaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/engine"
	"github.com/arcadelab/pong-backend/internal/persist"
	"github.com/arcadelab/pong-backend/internal/registry"
	"github.com/arcadelab/pong-backend/internal/session"
	"github.com/arcadelab/pong-backend/internal/ticket"
	"github.com/arcadelab/pong-backend/internal/types"
)

func testMatchmaker(t *testing.T) *Matchmaker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	issuer := ticket.NewIssuer(time.Minute)
	reg := registry.New(ctx, issuer, session.DefaultConfig(), persist.NopSaver{}, zap.NewNop())
	return New(reg, zap.NewNop())
}

func guest(id string) types.Participant {
	return types.Participant{ID: id, Kind: types.KindGuest}
}

func recvMatch(t *testing.T, ch <-chan Match) Match {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for match")
		return Match{}
	}
}

func TestJoin_QueuesUntilQuorum(t *testing.T) {
	mm := testMatchmaker(t)

	res, err := mm.Join(guest("a"), engine.ModePair)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, 1, res.Needed)

	select {
	case m := <-res.Ready:
		t.Fatalf("matched below quorum: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, mm.Depth(engine.ModePair))
}

func TestJoin_FIFOPairing(t *testing.T) {
	mm := testMatchmaker(t)

	resA, err := mm.Join(guest("a"), engine.ModePair)
	require.NoError(t, err)
	resB, err := mm.Join(guest("b"), engine.ModePair)
	require.NoError(t, err)
	resC, err := mm.Join(guest("c"), engine.ModePair)
	require.NoError(t, err)
	resD, err := mm.Join(guest("d"), engine.ModePair)
	require.NoError(t, err)

	matchA, matchB := recvMatch(t, resA.Ready), recvMatch(t, resB.Ready)
	matchC, matchD := recvMatch(t, resC.Ready), recvMatch(t, resD.Ready)

	require.NoError(t, matchA.Err)
	assert.Equal(t, matchA.GameID, matchB.GameID, "A and B joined first, so they pair")
	assert.Equal(t, matchC.GameID, matchD.GameID, "C and D pair next")
	assert.NotEqual(t, matchA.GameID, matchC.GameID)
	assert.NotEmpty(t, matchA.Ticket)
	assert.NotEqual(t, matchA.Ticket, matchB.Ticket)
	assert.Equal(t, 0, mm.Depth(engine.ModePair), "no partially matched remainder")
}

func TestJoin_RejectsDuplicateAcrossModes(t *testing.T) {
	mm := testMatchmaker(t)

	_, err := mm.Join(guest("a"), engine.ModePair)
	require.NoError(t, err)

	_, err = mm.Join(guest("a"), engine.ModePair)
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	// The check spans all modes, not just the target one.
	_, err = mm.Join(guest("a"), engine.ModeQuad)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestJoin_ConcurrentSameParticipant(t *testing.T) {
	mm := testMatchmaker(t)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mm.Join(guest("dup"), engine.ModeQuad)
		}(i)
	}
	wg.Wait()

	var accepted, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case err == ErrAlreadyQueued:
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted, "exactly one join wins")
	assert.Equal(t, attempts-1, rejected)
}

func TestJoin_ConcurrentQuorumNeverDoubleMatches(t *testing.T) {
	mm := testMatchmaker(t)

	const joiners = 20 // ten pair matches
	results := make([]JoinResult, joiners)
	errs := make([]error, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = mm.Join(guest(string(rune('A'+i))), engine.ModePair)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoErrorf(t, err, "join %d", i)
	}

	perGame := make(map[uint64]int)
	for i := range results {
		m := recvMatch(t, results[i].Ready)
		require.NoError(t, m.Err)
		perGame[m.GameID]++
	}
	assert.Len(t, perGame, joiners/2)
	for id, n := range perGame {
		assert.Equalf(t, 2, n, "game %d has %d participants", id, n)
	}
	assert.Equal(t, 0, mm.Depth(engine.ModePair))
}

func TestLeave_RemovesFromQueue(t *testing.T) {
	mm := testMatchmaker(t)

	_, err := mm.Join(guest("a"), engine.ModePair)
	require.NoError(t, err)

	mm.Leave("a")
	assert.Equal(t, 0, mm.Depth(engine.ModePair))

	// Leaving frees the id for a fresh join; leaving again is a no-op.
	mm.Leave("a")
	_, err = mm.Join(guest("a"), engine.ModePair)
	assert.NoError(t, err)
}

func TestLeave_DoesNotMatchDepartedParticipant(t *testing.T) {
	mm := testMatchmaker(t)

	resA, err := mm.Join(guest("a"), engine.ModePair)
	require.NoError(t, err)
	mm.Leave("a")

	resB, err := mm.Join(guest("b"), engine.ModePair)
	require.NoError(t, err)
	resC, err := mm.Join(guest("c"), engine.ModePair)
	require.NoError(t, err)

	matchB := recvMatch(t, resB.Ready)
	matchC := recvMatch(t, resC.Ready)
	assert.Equal(t, matchB.GameID, matchC.GameID)

	select {
	case m := <-resA.Ready:
		t.Fatalf("departed participant got matched: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStatus(t *testing.T) {
	mm := testMatchmaker(t)

	_, err := mm.Join(guest("a"), engine.ModeQuad)
	require.NoError(t, err)
	_, err = mm.Join(guest("b"), engine.ModeQuad)
	require.NoError(t, err)

	position, needed, ok := mm.Status(engine.ModeQuad, "b")
	require.True(t, ok)
	assert.Equal(t, 2, position)
	assert.Equal(t, 2, needed)

	_, _, ok = mm.Status(engine.ModeQuad, "nobody")
	assert.False(t, ok)
}
