package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/persist"
	"github.com/arcadelab/pong-backend/internal/session"
	"github.com/arcadelab/pong-backend/internal/ticket"
	"github.com/arcadelab/pong-backend/internal/types"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	issuer := ticket.NewIssuer(time.Minute)
	return New(ctx, issuer, session.DefaultConfig(), persist.NopSaver{}, zap.NewNop())
}

func pair(a, b string) []types.Participant {
	return []types.Participant{
		{ID: a, Kind: types.KindGuest},
		{ID: b, Kind: types.KindGuest},
	}
}

func TestRegistry_CreateAssignsMonotonicIDs(t *testing.T) {
	r := testRegistry(t)

	first, tickets, err := r.Create(types.SessionPvP, pair("a", "b"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, _, err := r.Create(types.SessionPvP, pair("c", "d"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("ids not monotonically increasing: %d then %d", first.ID, second.ID)
	}
	if len(tickets) != 2 {
		t.Fatalf("want a ticket per participant, got %d", len(tickets))
	}
	if tickets["a"] == "" || tickets["b"] == "" || tickets["a"] == tickets["b"] {
		t.Fatalf("bad tickets: %+v", tickets)
	}
}

func TestRegistry_AIParticipantsGetNoTicket(t *testing.T) {
	r := testRegistry(t)

	participants := []types.Participant{
		{ID: "human", Kind: types.KindGuest},
		{ID: "bot", Kind: types.KindAI},
	}
	_, tickets, err := r.Create(types.SessionSolo, participants)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := tickets["bot"]; ok {
		t.Fatalf("AI participant should not receive a ticket")
	}
	if _, ok := tickets["human"]; !ok {
		t.Fatalf("human participant missing a ticket")
	}
}

func TestRegistry_CreateRejectsBadParticipantLists(t *testing.T) {
	r := testRegistry(t)

	three := []types.Participant{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}
	if _, _, err := r.Create(types.SessionMulti, three); !errors.Is(err, ErrParticipantCount) {
		t.Fatalf("want ErrParticipantCount, got %v", err)
	}
	if _, _, err := r.Create(types.SessionPvP, pair("x", "x")); !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("want ErrDuplicateSlot, got %v", err)
	}
}

func TestRegistry_GetAndRetire(t *testing.T) {
	r := testRegistry(t)

	sess, _, err := r.Create(types.SessionPvP, pair("a", "b"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := r.Get(sess.ID)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := r.Get(sess.ID + 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown id, got %v", err)
	}

	r.Retire(sess.ID)
	if _, err := r.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("retired session still resolvable: %v", err)
	}

	// Idempotent: a second retire of the same id is harmless.
	r.Retire(sess.ID)
	if _, err := r.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double retire broke lookup: %v", err)
	}
}
