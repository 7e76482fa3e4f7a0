package engine

import "errors"

var ErrUnknownMode = errors.New("unknown mode")

type Mode string

const (
	ModePair Mode = "2p"
	ModeQuad Mode = "4p"
)

// Quorum is the number of participants a mode requires before a match
// can start.
func (m Mode) Quorum() int {
	switch m {
	case ModeQuad:
		return 4
	default:
		return 2
	}
}

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePair, ModeQuad:
		return Mode(s), nil
	default:
		return "", ErrUnknownMode
	}
}

type Team string

const (
	TeamLeft  Team = "left"
	TeamRight Team = "right"
)

func (t Team) Opponent() Team {
	if t == TeamLeft {
		return TeamRight
	}
	return TeamLeft
}

// Slot is a participant's fixed positional assignment, set at match
// creation in join order: 0 left-top, 1 right-top, 2 left-bottom,
// 3 right-bottom. Even slots defend the left goal.
type Slot int

func (s Slot) Team() Team {
	if s%2 == 0 {
		return TeamLeft
	}
	return TeamRight
}

type Move string

const (
	MoveUp   Move = "up"
	MoveDown Move = "down"
	MoveStop Move = "stop"
)

func ParseMove(s string) (Move, bool) {
	switch Move(s) {
	case MoveUp, MoveDown, MoveStop:
		return Move(s), true
	default:
		return "", false
	}
}

type Phase string

const (
	PhasePending Phase = "pending"
	PhaseActive  Phase = "active"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Paddle position. X is fixed per slot; Y is the top edge, clamped to
// the field.
type Paddle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type State struct {
	Phase   Phase
	Mode    Mode
	Ball    Ball
	Paddles map[Slot]Paddle
	Score   map[Team]int
	// ServeDir is the horizontal direction of the next serve:
	// -1 toward the left goal, +1 toward the right.
	ServeDir float64
	Winner   Team
	Forfeit  bool
	Cfg      Config
}

type EventType string

const (
	EvtBallBounced   EventType = "BallBounced"
	EvtGoalScored    EventType = "GoalScored"
	EvtGameCompleted EventType = "GameCompleted"
)

type Event struct {
	Type EventType
	Team Team
	Slot Slot
}

func NewState(mode Mode, cfg Config) State {
	s := State{
		Phase:    PhasePending,
		Mode:     mode,
		Paddles:  map[Slot]Paddle{},
		Score:    map[Team]int{TeamLeft: 0, TeamRight: 0},
		ServeDir: 1,
		Cfg:      cfg,
	}
	s.Ball = Ball{X: cfg.CanvasWidth / 2, Y: cfg.CanvasHeight / 2}
	for slot := 0; slot < mode.Quorum(); slot++ {
		s.Paddles[Slot(slot)] = startingPaddle(Slot(slot), mode, cfg)
	}
	return s
}

func startingPaddle(slot Slot, mode Mode, cfg Config) Paddle {
	x := cfg.PaddleMargin
	if slot.Team() == TeamRight {
		x = cfg.CanvasWidth - cfg.PaddleMargin - cfg.PaddleWidth
	}
	y := (cfg.CanvasHeight - cfg.PaddleHeight) / 2
	if mode == ModeQuad {
		// Front pair starts in the upper half, back pair in the lower.
		y = cfg.CanvasHeight/4 - cfg.PaddleHeight/2
		if slot >= 2 {
			y = 3*cfg.CanvasHeight/4 - cfg.PaddleHeight/2
		}
	}
	return Paddle{X: x, Y: y}
}

// Activate starts gameplay: Pending -> Active with the opening serve.
func Activate(s State) State {
	if s.Phase != PhasePending {
		return s
	}
	next := clone(s)
	next.Phase = PhaseActive
	next.Ball = serveBall(s.Cfg, s.ServeDir)
	return next
}

// Serve resumes a paused match: Paused -> Active with the ball served
// toward the side that conceded the last goal.
func Serve(s State) State {
	if s.Phase != PhasePaused {
		return s
	}
	next := clone(s)
	next.Phase = PhaseActive
	next.Ball = serveBall(s.Cfg, s.ServeDir)
	return next
}

// End forces a terminal state. winner may be empty for a
// no-winner outcome (both sides absent past the timeout).
func End(s State, winner Team, forfeit bool) State {
	if s.Phase == PhaseEnded {
		return s
	}
	next := clone(s)
	next.Phase = PhaseEnded
	next.Winner = winner
	next.Forfeit = forfeit
	return next
}

func serveBall(cfg Config, dir float64) Ball {
	return Ball{
		X:  cfg.CanvasWidth / 2,
		Y:  cfg.CanvasHeight / 2,
		DX: dir * cfg.ServeSpeed,
	}
}

// Step advances the simulation by dt seconds, applying one gathered
// input per slot. It is pure: no clocks, no randomness, so identical
// inputs always yield identical trajectories. Phase transitions that
// depend on wall time (pause expiry, activation) belong to the caller.
func Step(s State, inputs map[Slot]Move, dt float64) ([]Event, State) {
	if s.Phase != PhaseActive {
		return nil, s
	}

	next := clone(s)
	var events []Event

	for slot, move := range inputs {
		p, ok := next.Paddles[slot]
		if !ok {
			continue
		}
		switch move {
		case MoveUp:
			p.Y -= s.Cfg.PaddleSpeed * dt
		case MoveDown:
			p.Y += s.Cfg.PaddleSpeed * dt
		}
		p.Y = clamp(p.Y, 0, s.Cfg.CanvasHeight-s.Cfg.PaddleHeight)
		next.Paddles[slot] = p
	}

	b := next.Ball
	b.X += b.DX * dt
	b.Y += b.DY * dt

	// Top/bottom walls reflect the vertical component.
	half := s.Cfg.BallSize / 2
	if b.Y-half < 0 {
		b.Y = half
		b.DY = -b.DY
		events = append(events, Event{Type: EvtBallBounced})
	} else if b.Y+half > s.Cfg.CanvasHeight {
		b.Y = s.Cfg.CanvasHeight - half
		b.DY = -b.DY
		events = append(events, Event{Type: EvtBallBounced})
	}

	// Paddles are only tested on the half the ball is travelling into,
	// so a return can't re-collide with the paddle that just hit it.
	defending := TeamLeft
	if b.DX > 0 {
		defending = TeamRight
	}
	// Fixed slot order keeps quad-mode collision resolution
	// deterministic when two paddles overlap the ball.
	for slot := Slot(0); int(slot) < len(next.Paddles); slot++ {
		if slot.Team() != defending {
			continue
		}
		p := next.Paddles[slot]
		if !overlaps(b, p, s.Cfg) {
			continue
		}
		offset := clamp((b.Y-(p.Y+s.Cfg.PaddleHeight/2))/(s.Cfg.PaddleHeight/2), -1, 1)
		b.DX = -b.DX * speedupFactor
		if mag := abs(b.DX); mag > s.Cfg.ServeSpeed*maxSpeedMultiple {
			b.DX = b.DX / mag * s.Cfg.ServeSpeed * maxSpeedMultiple
		}
		b.DY = offset * s.Cfg.ServeSpeed * deflectRatio
		// Nudge outside the paddle bounds so the next tick can't
		// tunnel back in.
		if defending == TeamLeft {
			b.X = p.X + s.Cfg.PaddleWidth + half
		} else {
			b.X = p.X - half
		}
		events = append(events, Event{Type: EvtBallBounced, Slot: slot, Team: defending})
		break
	}
	next.Ball = b

	// Goals: crossing a goal line scores for the opposing team and
	// freezes play pending the next serve.
	var conceding Team
	switch {
	case b.X+half < 0:
		conceding = TeamLeft
	case b.X-half > s.Cfg.CanvasWidth:
		conceding = TeamRight
	}
	if conceding != "" {
		scorer := conceding.Opponent()
		next.Score[scorer]++
		next.Phase = PhasePaused
		next.Ball = Ball{X: s.Cfg.CanvasWidth / 2, Y: s.Cfg.CanvasHeight / 2}
		if conceding == TeamLeft {
			next.ServeDir = -1
		} else {
			next.ServeDir = 1
		}
		events = append(events, Event{Type: EvtGoalScored, Team: scorer})

		if next.Score[scorer] >= s.Cfg.WinPoint {
			next.Phase = PhaseEnded
			next.Winner = scorer
			events = append(events, Event{Type: EvtGameCompleted, Team: scorer})
		}
	}

	return events, next
}

const (
	speedupFactor    = 1.05
	maxSpeedMultiple = 2.0
	deflectRatio     = 0.75
)

func overlaps(b Ball, p Paddle, cfg Config) bool {
	half := cfg.BallSize / 2
	return b.X+half >= p.X && b.X-half <= p.X+cfg.PaddleWidth &&
		b.Y+half >= p.Y && b.Y-half <= p.Y+cfg.PaddleHeight
}

func clone(s State) State {
	next := s
	next.Paddles = make(map[Slot]Paddle, len(s.Paddles))
	for k, v := range s.Paddles {
		next.Paddles[k] = v
	}
	next.Score = make(map[Team]int, len(s.Score))
	for k, v := range s.Score {
		next.Score[k] = v
	}
	return next
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
