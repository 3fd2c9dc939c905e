package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lol-draft-room/internal/config"
	"github.com/DoyleJ11/lol-draft-room/internal/httpapi"
	"github.com/DoyleJ11/lol-draft-room/internal/hub"
	"github.com/DoyleJ11/lol-draft-room/internal/lobby"
	"github.com/DoyleJ11/lol-draft-room/internal/logging"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
	"github.com/DoyleJ11/lol-draft-room/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer closeStore()

	h := hub.NewHub(context.Background(), st, log, hub.Options{
		Lobby: lobby.Options{
			StepDuration:   cfg.StepDuration,
			TickInterval:   cfg.TickInterval,
			PersistTimeout: cfg.PersistTimeout,
		},
		SweepInterval: cfg.SweepInterval,
		IdleTTL:       cfg.IdleTTL,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:       h,
		Store:     st,
		Logger:    log,
		WS:        ws.Options{OriginPatterns: cfg.AllowedOrigins},
		StoreInfo: store.DescribeDSN(cfg.DatabaseURL),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		// Lobbies flush their last state before the store closes.
		hubErr := h.Shutdown(shutdownCtx)
		return errors.Join(httpErr, hubErr)
	})
	return g.Wait()
}

func openStore(ctx context.Context, dsn string, log *zap.Logger) (store.Store, func(), error) {
	if dsn == "" {
		log.Warn("DATABASE_URL not set, rooms are kept in memory")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.OpenPostgres(ctx, dsn, log)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}, nil
}
