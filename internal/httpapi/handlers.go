package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/registry"
	"github.com/arcadelab/pong-backend/internal/types"
)

type createRequest struct {
	Type         string `json:"type"`
	Participants []struct {
		UserID        *int64 `json:"user_id,omitempty"`
		ParticipantID string `json:"participant_id"`
		IsAI          bool   `json:"is_ai,omitempty"`
	} `json:"participants"`
}

type createResponse struct {
	GameID  uint64            `json:"game_id"`
	Tickets map[string]string `json:"tickets"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: "error", Message: msg})
}

// CreateGame creates a session directly, outside the matchmaking queue:
// tournaments, solo-vs-AI and pre-arranged matches come through here.
func CreateGame(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		stype, ok := types.ParseSessionType(req.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown session type")
			return
		}

		participants := make([]types.Participant, 0, len(req.Participants))
		for _, p := range req.Participants {
			if p.ParticipantID == "" {
				writeError(w, http.StatusBadRequest, "missing participant_id")
				return
			}
			kind := types.KindGuest
			switch {
			case p.IsAI:
				kind = types.KindAI
			case p.UserID != nil:
				kind = types.KindRegistered
			}
			participants = append(participants, types.Participant{
				ID:     p.ParticipantID,
				UserID: p.UserID,
				Kind:   kind,
			})
		}

		sess, tickets, err := reg.Create(stype, participants)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrParticipantCount),
				errors.Is(err, registry.ErrDuplicateSlot):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				log.Error("session creation failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "session creation failed")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createResponse{GameID: sess.ID, Tickets: tickets})
	}
}

// GameConf serves the static per-session field constants clients need
// to render and to interpret coordinates.
func GameConf(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		sess, err := reg.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sess.Conf())
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
