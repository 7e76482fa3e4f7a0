package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/persist"
	"github.com/arcadelab/pong-backend/internal/session"
	"github.com/arcadelab/pong-backend/internal/ticket"
	"github.com/arcadelab/pong-backend/internal/types"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrParticipantCount = errors.New("participant count must be 2 or 4")
	ErrDuplicateSlot    = errors.New("duplicate participant id")
)

type Msg interface{ isRegistryMsg() }

type CreateSession struct {
	Type         types.SessionType
	Participants []types.Participant
	Reply        chan CreateResult
}

// CreateResult carries the new session plus one capability token per
// participant, minted at creation per the ticket contract.
type CreateResult struct {
	Session *session.Session
	Tickets map[string]string
	Err     error
}

type GetSession struct {
	ID    uint64
	Reply chan *session.Session
}

type RemoveSession struct{ ID uint64 }

type ShutdownRegistry struct{}

func (CreateSession) isRegistryMsg()    {}
func (GetSession) isRegistryMsg()       {}
func (RemoveSession) isRegistryMsg()    {}
func (ShutdownRegistry) isRegistryMsg() {}

// Registry owns the session_id -> Session mapping. A single loop
// goroutine serializes create/lookup/retire, so two concurrent creates
// can never hand out the same id and a retire can't race a lookup.
type Registry struct {
	inbox    chan Msg
	sessions map[uint64]*session.Session
	nextID   uint64
	issuer   *ticket.Issuer
	cfg      session.Config
	saver    persist.Saver
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, issuer *ticket.Issuer, cfg session.Config, saver persist.Saver, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:    make(chan Msg, 64),
		sessions: make(map[uint64]*session.Session),
		issuer:   issuer,
		cfg:      cfg,
		saver:    saver,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

// Create is the blocking convenience wrapper around CreateSession.
func (r *Registry) Create(stype types.SessionType, participants []types.Participant) (*session.Session, map[string]string, error) {
	reply := make(chan CreateResult, 1)
	r.inbox <- CreateSession{Type: stype, Participants: participants, Reply: reply}
	res := <-reply
	return res.Session, res.Tickets, res.Err
}

// Get looks up a live session; returns ErrNotFound after retirement.
func (r *Registry) Get(id uint64) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	r.inbox <- GetSession{ID: id, Reply: reply}
	sess := <-reply
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Retire is handed to each session as its end-of-life callback; it is
// also safe to call directly and safe to call twice.
func (r *Registry) Retire(id uint64) {
	select {
	case r.inbox <- RemoveSession{ID: id}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) Shutdown() {
	select {
	case r.inbox <- ShutdownRegistry{}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- r.create(msg.Type, msg.Participants)

			case GetSession:
				msg.Reply <- r.sessions[msg.ID] // may be nil

			case RemoveSession:
				if sess, ok := r.sessions[msg.ID]; ok {
					delete(r.sessions, msg.ID)
					r.issuer.RevokeSession(msg.ID)
					// Idempotent: an already-finished loop ignores this.
					select {
					case sess.Inbox() <- session.Shutdown{}:
					default:
					}
					r.log.Info("session retired", zap.Uint64("session_id", msg.ID))
				}

			case ShutdownRegistry:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Registry) create(stype types.SessionType, participants []types.Participant) CreateResult {
	if n := len(participants); n != 2 && n != 4 {
		return CreateResult{Err: fmt.Errorf("%w: got %d", ErrParticipantCount, len(participants))}
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if seen[p.ID] {
			return CreateResult{Err: ErrDuplicateSlot}
		}
		seen[p.ID] = true
	}

	r.nextID++
	id := r.nextID
	sess := session.New(r.ctx, id, stype, participants, r.cfg, r.log, r.saver, r.Retire)
	r.sessions[id] = sess

	tickets := make(map[string]string, len(participants))
	for _, p := range participants {
		if p.Kind == types.KindAI {
			continue
		}
		tickets[p.ID] = r.issuer.Issue(id, p.ID)
	}

	r.log.Info("session created", zap.Uint64("session_id", id),
		zap.String("type", string(stype)), zap.Int("participants", len(participants)))
	return CreateResult{Session: sess, Tickets: tickets}
}

func (r *Registry) shutdown() {
	for id, sess := range r.sessions {
		select {
		case sess.Inbox() <- session.Shutdown{}:
		default:
		}
		delete(r.sessions, id)
	}
	r.cancel()
}
