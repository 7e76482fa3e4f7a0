package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/engine"
	"github.com/arcadelab/pong-backend/internal/registry"
	"github.com/arcadelab/pong-backend/internal/session"
	"github.com/arcadelab/pong-backend/internal/ticket"
	"github.com/arcadelab/pong-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
)

// Handler binds a socket to a (session, participant) pair. The ticket
// in the query string is the only credential: it names the session and
// participant and rejects duplicate binds while a live connection holds
// it. Everything after the bind is enqueue-only — the session loop owns
// all state.
func Handler(reg *registry.Registry, issuer *ticket.Issuer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("ticket")
		if token == "" {
			http.Error(w, "missing ticket", http.StatusBadRequest)
			return
		}

		claim, err := issuer.Redeem(token)
		if err != nil {
			log.Info("ticket rejected", zap.Error(err))
			status := http.StatusUnauthorized
			if errors.Is(err, ticket.ErrInUse) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}

		sess, err := reg.Get(claim.SessionID)
		if err != nil {
			issuer.Release(token)
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if !sess.HasParticipant(claim.ParticipantID) {
			issuer.Release(token)
			http.Error(w, "ticket invalid", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			issuer.Release(token)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerMessage, 8)
		sess.Inbox() <- session.Join{ParticipantID: claim.ParticipantID, Outbox: out}
		defer func() {
			sess.Inbox() <- session.Leave{ParticipantID: claim.ParticipantID}
			// Re-arm the ticket so the reconnect path can redeem it
			// again inside the grace window.
			issuer.Release(token)
		}()

		// Writer: drains the session's broadcasts until the outbox
		// closes (session ended or dropped us as a slow consumer).
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// Outbox closed: the session ended or dropped us. Closing
			// the socket unblocks the reader below.
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		// Reader loop: decode, validate, enqueue. Malformed frames are
		// logged and dropped, never fatal.
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				log.Info("malformed input dropped",
					zap.Uint64("session_id", claim.SessionID), zap.Error(err))
				continue
			}
			if cm.Type != "input" {
				log.Info("unknown message type dropped",
					zap.String("type", cm.Type))
				continue
			}
			move, ok := engine.ParseMove(cm.Move)
			if !ok {
				log.Info("malformed move dropped", zap.String("move", cm.Move))
				continue
			}

			// The bind decides identity; a spoofed participant_id in
			// the frame is ignored.
			sess.Inbox() <- session.FromClient{
				ParticipantID: claim.ParticipantID,
				Move:          move,
			}
		}
	}
}
