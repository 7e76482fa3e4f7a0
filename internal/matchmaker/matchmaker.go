package matchmaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/engine"
	"github.com/arcadelab/pong-backend/internal/registry"
	"github.com/arcadelab/pong-backend/internal/types"
)

var ErrAlreadyQueued = errors.New("participant already queued")

// Match is delivered on an entry's ready channel once quorum fires.
type Match struct {
	GameID uint64
	Ticket string
	Err    error
}

type entry struct {
	participant types.Participant
	enqueuedAt  time.Time
	ready       chan Match
}

type queue struct {
	mu      sync.Mutex
	mode    engine.Mode
	entries []*entry
}

// JoinResult reports the caller's queue slot. Ready fires exactly once,
// when this participant's match is created; if quorum was reached by
// this very join it is already buffered on return.
type JoinResult struct {
	Position int
	Needed   int
	Ready    <-chan Match
}

// Matchmaker holds one FIFO queue per mode. Membership is tracked
// across all modes so a participant can wait in at most one queue;
// queue mutation locks per mode, so 2p joins never contend with 4p.
type Matchmaker struct {
	mu         sync.Mutex // guards membership only
	membership map[string]engine.Mode
	queues     map[engine.Mode]*queue
	registry   *registry.Registry
	log        *zap.Logger
}

func New(reg *registry.Registry, log *zap.Logger) *Matchmaker {
	return &Matchmaker{
		membership: make(map[string]engine.Mode),
		queues: map[engine.Mode]*queue{
			engine.ModePair: {mode: engine.ModePair},
			engine.ModeQuad: {mode: engine.ModeQuad},
		},
		registry: reg,
		log:      log,
	}
}

// Join appends to the mode's queue tail. When the append brings the
// queue to quorum, exactly quorum entries are removed from the head
// under the mode lock — two concurrent quorum-triggering joins can
// never both dequeue overlapping entries — and the session is created
// from them in enqueue order.
func (m *Matchmaker) Join(p types.Participant, mode engine.Mode) (JoinResult, error) {
	m.mu.Lock()
	if _, dup := m.membership[p.ID]; dup {
		m.mu.Unlock()
		return JoinResult{}, ErrAlreadyQueued
	}
	m.membership[p.ID] = mode
	m.mu.Unlock()

	q := m.queues[mode]
	e := &entry{participant: p, enqueuedAt: time.Now(), ready: make(chan Match, 1)}

	q.mu.Lock()
	q.entries = append(q.entries, e)
	position := len(q.entries)
	needed := mode.Quorum() - position
	var matched []*entry
	if position >= mode.Quorum() {
		matched = q.entries[:mode.Quorum()]
		q.entries = append([]*entry(nil), q.entries[mode.Quorum():]...)
	}
	q.mu.Unlock()

	if matched != nil {
		m.createMatch(mode, matched)
		needed = 0
	}
	return JoinResult{Position: position, Needed: max(needed, 0), Ready: e.ready}, nil
}

func (m *Matchmaker) createMatch(mode engine.Mode, matched []*entry) {
	participants := make([]types.Participant, len(matched))
	for i, e := range matched {
		participants[i] = e.participant
	}

	m.mu.Lock()
	for _, e := range matched {
		delete(m.membership, e.participant.ID)
	}
	m.mu.Unlock()

	stype := types.SessionPvP
	if mode == engine.ModeQuad {
		stype = types.SessionMulti
	}
	sess, tickets, err := m.registry.Create(stype, participants)
	if err != nil {
		m.log.Error("match creation failed", zap.Error(err))
		for _, e := range matched {
			e.ready <- Match{Err: err}
		}
		return
	}

	m.log.Info("match formed", zap.Uint64("session_id", sess.ID),
		zap.String("mode", string(mode)), zap.Int("participants", len(matched)))
	for _, e := range matched {
		e.ready <- Match{GameID: sess.ID, Ticket: tickets[e.participant.ID]}
	}
}

// Leave removes the participant from whichever queue holds them; no-op
// if they are not queued (e.g. already matched).
func (m *Matchmaker) Leave(participantID string) {
	m.mu.Lock()
	mode, ok := m.membership[participantID]
	if ok {
		delete(m.membership, participantID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	q := m.queues[mode]
	q.mu.Lock()
	for i, e := range q.entries {
		if e.participant.ID == participantID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

// Status reports a queued participant's position and how many more
// joins the mode needs. ok is false if the participant is not waiting.
func (m *Matchmaker) Status(mode engine.Mode, participantID string) (position, needed int, ok bool) {
	q := m.queues[mode]
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.participant.ID == participantID {
			return i + 1, max(mode.Quorum()-len(q.entries), 0), true
		}
	}
	return 0, 0, false
}

// Depth is the current queue length for a mode.
func (m *Matchmaker) Depth(mode engine.Mode) int {
	q := m.queues[mode]
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
