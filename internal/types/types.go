package types

import "github.com/arcadelab/pong-backend/internal/engine"

type SessionType string

const (
	SessionSolo       SessionType = "solo"
	SessionPvP        SessionType = "pvp"
	SessionMulti      SessionType = "multi"
	SessionTournament SessionType = "tournament"
)

func ParseSessionType(s string) (SessionType, bool) {
	switch SessionType(s) {
	case SessionSolo, SessionPvP, SessionMulti, SessionTournament:
		return SessionType(s), true
	default:
		return "", false
	}
}

type ParticipantKind string

const (
	KindRegistered ParticipantKind = "registered"
	KindGuest      ParticipantKind = "guest"
	KindAI         ParticipantKind = "ai"
)

// Participant identifies one queue/session member. ID is opaque and
// unique within any queue or session; UserID is set only for
// registered accounts.
type Participant struct {
	ID     string
	UserID *int64
	Kind   ParticipantKind
}

// ClientMessage is the inbound frame on a live session socket.
type ClientMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id,omitempty"`
	Move          string `json:"move,omitempty"`
}

type PlayerSnapshot struct {
	Slot      int         `json:"slot"`
	Team      engine.Team `json:"team"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Connected bool        `json:"connected"`
}

type GameState struct {
	Players map[string]PlayerSnapshot `json:"players"`
	Ball    engine.Ball               `json:"ball"`
	Score   map[engine.Team]int       `json:"score"`
	Phase   engine.Phase              `json:"phase"`
}

// ServerMessage is the outbound frame on a live session socket:
// "game_state" | "game_over" | "server_message" | "error".
type ServerMessage struct {
	Type    string      `json:"type"`
	Data    *GameState  `json:"data,omitempty"`
	Winner  engine.Team `json:"winner,omitempty"`
	Level   string      `json:"level,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MatchmakingRequest is the inbound frame on the matchmaking socket.
// Type is "join" | "status" | "leave"; Mode applies to "join".
type MatchmakingRequest struct {
	Type          string `json:"type"`
	Mode          string `json:"mode,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
}

// MatchmakingResponse: "queue_joined" | "queue_status" | "game_ready" |
// "error".
type MatchmakingResponse struct {
	Type          string `json:"type"`
	Mode          string `json:"mode,omitempty"`
	Position      int    `json:"position,omitempty"`
	PlayersNeeded int    `json:"players_needed,omitempty"`
	GameID        uint64 `json:"game_id,omitempty"`
	Ticket        string `json:"ticket,omitempty"`
	Message       string `json:"message,omitempty"`
}
