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

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/hexfog-backend/internal/auth"
	"github.com/DoyleJ11/hexfog-backend/internal/config"
	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/httpapi"
	"github.com/DoyleJ11/hexfog-backend/internal/hub"
	"github.com/DoyleJ11/hexfog-backend/internal/logging"
	"github.com/DoyleJ11/hexfog-backend/internal/presence"
	"github.com/DoyleJ11/hexfog-backend/internal/room"
	"github.com/DoyleJ11/hexfog-backend/internal/seed"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
	"github.com/DoyleJ11/hexfog-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := f.Apply(ctx, st); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		log.Info("seed applied", zap.String("file", cfg.SeedFile), zap.Int("rooms", len(f.Rooms)))
	}

	verifier, err := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		return err
	}

	// The hub outlives ctx so that rooms are shut down after the HTTP
	// server has drained.
	h := hub.NewHub(context.Background(), st, presence.NewRegistry(st), hub.Options{
		Room: room.Options{
			Policy:          engine.RadiusPolicy{Radius: cfg.RevealRadius},
			DisconnectGrace: cfg.DisconnectGrace,
			InboxSize:       cfg.RoomInboxSize,
			Logger:          log.Named("room"),
		},
		IdleAfter: cfg.RoomIdleTimeout,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:      h,
			Store:    st,
			Verifier: verifier,
			WS: ws.Config{
				PingInterval:   cfg.WSPingInterval,
				PingTimeout:    cfg.WSPingTimeout,
				WriteTimeout:   cfg.WSWriteTimeout,
				OutboxSize:     cfg.ClientOutboxSize,
				Rate:           cfg.WSRate,
				Burst:          cfg.WSBurst,
				OriginPatterns: cfg.WSOrigins,
			},
			Log: log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.DatabaseDriver))
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
		serr := srv.Shutdown(shutdownCtx)

		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		select {
		case <-h.Done():
		case <-shutdownCtx.Done():
			serr = multierr.Append(serr, fmt.Errorf("rooms did not stop: %w", shutdownCtx.Err()))
		}
		return serr
	})
	return g.Wait()
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
		return store.OpenGorm(cfg.DatabaseDriver, cfg.DatabaseDSN, log.Named("store"))
	default:
		return store.NewMemory(), nil
	}
}
