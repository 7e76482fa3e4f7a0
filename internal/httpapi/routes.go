package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arcadelab/pong-backend/internal/gateway"
	"github.com/arcadelab/pong-backend/internal/matchmaker"
	"github.com/arcadelab/pong-backend/internal/mmws"
	"github.com/arcadelab/pong-backend/internal/registry"
	"github.com/arcadelab/pong-backend/internal/ticket"
)

func SetupRoutes(reg *registry.Registry, mm *matchmaker.Matchmaker, issuer *ticket.Issuer, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/games", CreateGame(reg, log))
	r.Get("/games/{id}/conf", GameConf(reg))
	r.Get("/matchmaking", mmws.Handler(mm, log))
	r.Get("/ws", gateway.Handler(reg, issuer, log))
	r.Get("/healthz", Healthz)
	return r
}
