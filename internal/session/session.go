package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/engine"
	"github.com/arcadelab/pong-backend/internal/persist"
	"github.com/arcadelab/pong-backend/internal/types"
)

// Config holds the scheduling knobs shared by every session.
type Config struct {
	TickRate            int           // simulation ticks per second
	PauseInterval       time.Duration // freeze after a goal before the serve
	GraceWindow         time.Duration // reconnect allowance after a disconnect
	EmptyTimeout        time.Duration // absent-participant cap before forfeit
	QuadForfeitContinue bool          // quad matches continue after one forfeit
	Engine              engine.Config
}

func DefaultConfig() Config {
	return Config{
		TickRate:            30,
		PauseInterval:       1500 * time.Millisecond,
		GraceWindow:         10 * time.Second,
		EmptyTimeout:        30 * time.Second,
		QuadForfeitContinue: true,
		Engine:              engine.DefaultConfig(),
	}
}

type Msg interface{ isSessionMsg() }

// Join binds a connected participant. The session pushes every
// broadcast into Outbox; a full outbox means the consumer is too slow
// and gets dropped.
type Join struct {
	ParticipantID string
	Outbox        chan types.ServerMessage
}

func (Join) isSessionMsg() {}

type Leave struct{ ParticipantID string }

func (Leave) isSessionMsg() {}

// FromClient carries one validated paddle input. Inputs received after
// a tick's gather phase apply on the next tick, never retroactively.
type FromClient struct {
	ParticipantID string
	Move          engine.Move
}

func (FromClient) isSessionMsg() {}

type GetState struct{ Reply chan View }

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// View reflects internal state without data races; test-only except
// for the conf endpoint.
type View struct {
	ID         uint64
	Phase      engine.Phase
	Score      map[engine.Team]int
	NumClients int
	Winner     engine.Team
	Forfeited  map[string]bool
	State      engine.State
}

// Session is the authoritative loop for one match. All state is owned
// by the loop goroutine; everything else talks to it through the inbox.
type Session struct {
	ID   uint64
	Type types.SessionType
	Mode engine.Mode

	inbox        chan Msg
	state        engine.State
	participants []types.Participant
	slots        map[string]engine.Slot
	clients      map[string]chan types.ServerMessage
	pending      map[engine.Slot]engine.Move
	connected    map[string]bool // has bound at least once
	forfeited    map[string]bool
	graceUntil   map[string]time.Time
	lastPresence time.Time
	pauseUntil   time.Time
	createdAt    time.Time

	cfg      Config
	log      *zap.Logger
	saver    persist.Saver
	onRetire func(uint64)
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, id uint64, stype types.SessionType, participants []types.Participant, cfg Config, log *zap.Logger, saver persist.Saver, onRetire func(uint64)) *Session {
	ctx, cancel := context.WithCancel(parent)

	mode := engine.ModePair
	if len(participants) > 2 {
		mode = engine.ModeQuad
	}
	s := &Session{
		ID:           id,
		Type:         stype,
		Mode:         mode,
		inbox:        make(chan Msg, 64),
		state:        engine.NewState(mode, cfg.Engine),
		participants: participants,
		slots:        make(map[string]engine.Slot, len(participants)),
		clients:      make(map[string]chan types.ServerMessage),
		pending:      make(map[engine.Slot]engine.Move),
		connected:    make(map[string]bool),
		forfeited:    make(map[string]bool),
		graceUntil:   make(map[string]time.Time),
		lastPresence: time.Now(),
		createdAt:    time.Now(),
		cfg:          cfg,
		log:          log.With(zap.Uint64("session_id", id)),
		saver:        saver,
		onRetire:     onRetire,
		ctx:          ctx,
		cancel:       cancel,
	}
	for i, p := range participants {
		s.slots[p.ID] = engine.Slot(i)
	}

	go s.loop()
	return s
}

// Inbox is the only write path into a running session.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Conf returns the immutable field constants for this session.
func (s *Session) Conf() engine.Config { return s.cfg.Engine }

func (s *Session) Participants() []types.Participant { return s.participants }

// HasParticipant reports whether id holds a slot in this session.
func (s *Session) HasParticipant(id string) bool {
	_, ok := s.slots[id]
	return ok
}

func (s *Session) loop() {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case now := <-ticker.C:
			if done := s.tick(now); done {
				return
			}

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg, time.Now())

			case Leave:
				s.handleLeave(msg.ParticipantID, time.Now())

			case FromClient:
				slot, ok := s.slots[msg.ParticipantID]
				if !ok || s.forfeited[msg.ParticipantID] {
					break
				}
				s.pending[slot] = msg.Move

			case GetState:
				msg.Reply <- s.view()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join, now time.Time) {
	if _, ok := s.slots[msg.ParticipantID]; !ok || s.forfeited[msg.ParticipantID] {
		close(msg.Outbox)
		return
	}
	// Rebinding within the grace window supersedes the old socket.
	if old, ok := s.clients[msg.ParticipantID]; ok {
		close(old)
	}
	s.clients[msg.ParticipantID] = msg.Outbox
	s.connected[msg.ParticipantID] = true
	delete(s.graceUntil, msg.ParticipantID)
	s.lastPresence = now

	if s.state.Phase == engine.PhasePending && s.allPresent() {
		s.state = engine.Activate(s.state)
		s.log.Info("session active", zap.String("mode", string(s.Mode)))
	}

	// Immediate snapshot so the client can render before the next tick.
	msg.Outbox <- types.ServerMessage{Type: "game_state", Data: s.snapshot()}
}

func (s *Session) handleLeave(participantID string, now time.Time) {
	ch, ok := s.clients[participantID]
	if !ok {
		return
	}
	close(ch)
	delete(s.clients, participantID)
	if s.state.Phase == engine.PhaseEnded {
		return
	}
	s.graceUntil[participantID] = now.Add(s.cfg.GraceWindow)
	s.log.Info("participant disconnected, grace window started",
		zap.String("participant_id", participantID))
}

// allPresent reports whether every human slot has bound at least once.
// AI participants never connect; they count as always present.
func (s *Session) allPresent() bool {
	for _, p := range s.participants {
		if p.Kind == types.KindAI {
			continue
		}
		if !s.connected[p.ID] {
			return false
		}
	}
	return true
}

// tick runs one scheduled advance. Returns true when the session has
// finished and the loop should exit.
func (s *Session) tick(now time.Time) bool {
	if len(s.clients) > 0 {
		s.lastPresence = now
	}

	// Reclaim sessions nobody is playing: never-activated matches and
	// matches everyone abandoned both end as a no-winner forfeit.
	if len(s.clients) == 0 && now.Sub(s.lastPresence) > s.cfg.EmptyTimeout {
		s.log.Warn("no participants connected, forfeiting session")
		s.finish("", true)
		return true
	}

	if ended := s.expireGraceWindows(now); ended {
		return true
	}

	switch s.state.Phase {
	case engine.PhasePending, engine.PhaseEnded:
		return false

	case engine.PhasePaused:
		if now.Before(s.pauseUntil) {
			return false
		}
		s.state = engine.Serve(s.state)
	}

	inputs := s.pending
	s.pending = make(map[engine.Slot]engine.Move)
	s.driveAI(inputs)

	events, next := engine.Step(s.state, inputs, 1.0/float64(s.cfg.TickRate))
	s.state = next

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGoalScored:
			s.pauseUntil = now.Add(s.cfg.PauseInterval)
			s.log.Info("goal scored", zap.String("team", string(ev.Team)),
				zap.Int("score", s.state.Score[ev.Team]))
		case engine.EvtGameCompleted:
			s.finish(ev.Team, false)
			return true
		}
	}

	s.broadcast(types.ServerMessage{Type: "game_state", Data: s.snapshot()}, now)
	return false
}

// driveAI fills in a tracking move for any AI slot the gather phase
// left empty: chase the ball's vertical position with a small deadzone.
func (s *Session) driveAI(inputs map[engine.Slot]engine.Move) {
	for _, p := range s.participants {
		if p.Kind != types.KindAI {
			continue
		}
		slot := s.slots[p.ID]
		if _, taken := inputs[slot]; taken {
			continue
		}
		paddle := s.state.Paddles[slot]
		center := paddle.Y + s.cfg.Engine.PaddleHeight/2
		switch {
		case s.state.Ball.Y < center-s.cfg.Engine.BallSize:
			inputs[slot] = engine.MoveUp
		case s.state.Ball.Y > center+s.cfg.Engine.BallSize:
			inputs[slot] = engine.MoveDown
		default:
			inputs[slot] = engine.MoveStop
		}
	}
}

// expireGraceWindows forfeits participants who never reconnected.
// Returns true when a forfeit ends the whole session.
func (s *Session) expireGraceWindows(now time.Time) bool {
	for pid, deadline := range s.graceUntil {
		if now.Before(deadline) {
			continue
		}
		delete(s.graceUntil, pid)
		s.forfeited[pid] = true
		s.log.Info("grace window expired, participant forfeits",
			zap.String("participant_id", pid))

		team := s.slots[pid].Team()
		if s.Mode == engine.ModePair || !s.cfg.QuadForfeitContinue || s.teamAbsent(team) {
			s.finish(team.Opponent(), true)
			return true
		}
		s.broadcast(types.ServerMessage{
			Type:    "server_message",
			Level:   "info",
			Message: fmt.Sprintf("%s forfeited, match continues", pid),
		}, now)
	}
	return false
}

func (s *Session) teamAbsent(team engine.Team) bool {
	for _, p := range s.participants {
		if s.slots[p.ID].Team() != team {
			continue
		}
		if p.Kind == types.KindAI || !s.forfeited[p.ID] {
			return false
		}
	}
	return true
}

// finish is the single terminal path: persist, notify, retire. Safe to
// reach from the win condition, a forfeit, or the empty timeout; the
// first caller wins and the loop exits right after.
func (s *Session) finish(winner engine.Team, forfeit bool) {
	s.state = engine.End(s.state, winner, forfeit)

	summary := persist.Summary{
		SessionID: s.ID,
		Type:      s.Type,
		Winner:    winner,
		Forfeit:   forfeit,
		Score:     s.state.Score,
		StartedAt: s.createdAt,
		EndedAt:   time.Now(),
	}
	for _, p := range s.participants {
		slot := s.slots[p.ID]
		summary.Participants = append(summary.Participants, persist.ParticipantResult{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Slot:          int(slot),
			Team:          slot.Team(),
			Won:           winner != "" && slot.Team() == winner,
			Forfeited:     s.forfeited[p.ID],
		})
	}
	s.saver.Save(summary)

	over := types.ServerMessage{Type: "game_over", Winner: winner}
	if forfeit && winner == "" {
		over.Message = "match abandoned"
	} else if forfeit {
		over.Message = "won by forfeit"
	}
	for id, ch := range s.clients {
		select {
		case ch <- over:
		default:
		}
		close(ch)
		delete(s.clients, id)
	}

	s.log.Info("session ended", zap.String("winner", string(winner)),
		zap.Bool("forfeit", forfeit))
	if s.onRetire != nil {
		s.onRetire(s.ID)
	}
	s.cancel()
}

func (s *Session) shutdown() {
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}

func (s *Session) broadcast(msg types.ServerMessage, now time.Time) {
	for id, ch := range s.clients {
		select {
		case ch <- msg:
			// ok
		default:
			// Consumer can't keep up with the tick rate; a stalled
			// socket must not back-pressure the simulation.
			close(ch)
			delete(s.clients, id)
			s.graceUntil[id] = now.Add(s.cfg.GraceWindow)
			s.log.Warn("dropped slow consumer", zap.String("participant_id", id))
		}
	}
}

func (s *Session) snapshot() *types.GameState {
	players := make(map[string]types.PlayerSnapshot, len(s.participants))
	for _, p := range s.participants {
		slot := s.slots[p.ID]
		paddle := s.state.Paddles[slot]
		_, online := s.clients[p.ID]
		players[p.ID] = types.PlayerSnapshot{
			Slot:      int(slot),
			Team:      slot.Team(),
			X:         paddle.X,
			Y:         paddle.Y,
			Connected: online || p.Kind == types.KindAI,
		}
	}
	score := map[engine.Team]int{
		engine.TeamLeft:  s.state.Score[engine.TeamLeft],
		engine.TeamRight: s.state.Score[engine.TeamRight],
	}
	return &types.GameState{
		Players: players,
		Ball:    s.state.Ball,
		Score:   score,
		Phase:   s.state.Phase,
	}
}

func (s *Session) view() View {
	forfeited := make(map[string]bool, len(s.forfeited))
	for k, v := range s.forfeited {
		forfeited[k] = v
	}
	score := map[engine.Team]int{
		engine.TeamLeft:  s.state.Score[engine.TeamLeft],
		engine.TeamRight: s.state.Score[engine.TeamRight],
	}
	return View{
		ID:         s.ID,
		Phase:      s.state.Phase,
		Score:      score,
		NumClients: len(s.clients),
		Winner:     s.state.Winner,
		Forfeited:  forfeited,
		State:      s.state,
	}
}
