package mmws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/engine"
	"github.com/arcadelab/pong-backend/internal/matchmaker"
	"github.com/arcadelab/pong-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler runs the session-establishment channel: a client joins a
// mode's queue and holds the socket open until quorum fires, at which
// point it receives game_ready with its session id and ticket. Closing
// the socket before that withdraws the participant from the queue.
func Handler(mm *matchmaker.Matchmaker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		write := func(resp types.MatchmakingResponse) error {
			payload, _ := json.Marshal(resp)
			ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
			defer cancel()
			return conn.Write(ctx, websocket.MessageText, payload)
		}
		writeErr := func(msg string) {
			_ = write(types.MatchmakingResponse{Type: "error", Message: msg})
		}

		// First frame must be the join request.
		req, err := readRequest(r.Context(), conn)
		if err != nil {
			return
		}
		if req.Type != "join" || req.ParticipantID == "" {
			writeErr("expected join request")
			return
		}
		mode, err := engine.ParseMode(req.Mode)
		if err != nil {
			writeErr("unknown mode")
			return
		}

		participant := types.Participant{ID: req.ParticipantID, Kind: types.KindGuest}
		res, err := mm.Join(participant, mode)
		if err != nil {
			if errors.Is(err, matchmaker.ErrAlreadyQueued) {
				writeErr("already queued")
				return
			}
			writeErr("join failed")
			return
		}
		defer mm.Leave(req.ParticipantID)

		if err := write(types.MatchmakingResponse{
			Type:          "queue_joined",
			Mode:          string(mode),
			Position:      res.Position,
			PlayersNeeded: res.Needed,
		}); err != nil {
			return
		}

		// Pump further client frames (status polls, explicit leave) so
		// the wait below can also notice a closed socket.
		reads := make(chan types.MatchmakingRequest, 4)
		readErrs := make(chan error, 1)
		go func() {
			for {
				req, err := readRequest(r.Context(), conn)
				if err != nil {
					readErrs <- err
					return
				}
				select {
				case reads <- req:
				case <-r.Context().Done():
					return
				}
			}
		}()

		for {
			select {
			case match := <-res.Ready:
				if match.Err != nil {
					log.Warn("match creation failed for queued participant",
						zap.String("participant_id", req.ParticipantID), zap.Error(match.Err))
					writeErr("match creation failed")
					return
				}
				_ = write(types.MatchmakingResponse{
					Type:   "game_ready",
					Mode:   string(mode),
					GameID: match.GameID,
					Ticket: match.Ticket,
				})
				return

			case q := <-reads:
				switch q.Type {
				case "status":
					position, needed, ok := mm.Status(mode, req.ParticipantID)
					if !ok {
						writeErr("not queued")
						continue
					}
					_ = write(types.MatchmakingResponse{
						Type:          "queue_status",
						Mode:          string(mode),
						Position:      position,
						PlayersNeeded: needed,
					})
				case "leave":
					mm.Leave(req.ParticipantID)
					return
				default:
					writeErr("unknown request")
				}

			case <-readErrs:
				return

			case <-r.Context().Done():
				return
			}
		}
	}
}

func readRequest(ctx context.Context, conn *websocket.Conn) (types.MatchmakingRequest, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return types.MatchmakingRequest{}, err
	}
	var req types.MatchmakingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return types.MatchmakingRequest{Type: "malformed"}, nil
	}
	return req, nil
}
