package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arcadelab/pong-backend/internal/config"
	"github.com/arcadelab/pong-backend/internal/httpapi"
	"github.com/arcadelab/pong-backend/internal/matchmaker"
	"github.com/arcadelab/pong-backend/internal/persist"
	"github.com/arcadelab/pong-backend/internal/registry"
	"github.com/arcadelab/pong-backend/internal/ticket"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var saver persist.Saver = persist.NopSaver{}
	var closers []func() error
	if cfg.DatabaseURL != "" {
		gs, err := persist.OpenGorm(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		saver = gs
		closers = append(closers, gs.Close)
		logger.Info("match results will be persisted")
	} else {
		logger.Warn("DATABASE_URL unset, match results will not be persisted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer := ticket.NewIssuer(cfg.TicketTTL)
	reg := registry.New(ctx, issuer, cfg.Session, saver, logger)
	mm := matchmaker.New(reg, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(reg, mm, issuer, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		reg.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	for _, c := range closers {
		err = multierr.Append(err, c())
	}
	return err
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
