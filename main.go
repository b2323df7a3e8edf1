package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"roomchat/internal/auth"
	"roomchat/internal/config"
	"roomchat/internal/http"
	"roomchat/internal/log"
	"roomchat/internal/presence"
	"roomchat/internal/server"
	"roomchat/internal/storage"
)

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	store, err := storage.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tracker := presence.New(
		presence.WithStaleAfter(cfg.StaleAfter),
		presence.WithLogger(logger.With().Str("component", "presence").Logger()),
	)
	srv := server.New(store, tracker, auth.NewService(),
		server.WithLogger(logger.With().Str("component", "server").Logger()),
	)
	if err := srv.Load(ctx); err != nil {
		return err
	}

	apiServer := http.NewAPIServer(srv, cfg.Addr, logger)
	adminServer := http.NewAdminServer(srv, cfg.AdminAddr, logger)

	logger.Info().
		Str("addr", cfg.Addr).
		Str("data_dir", cfg.DataDir).
		Str("store", cfg.Store).
		Msg("starting chat server")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return adminServer.Start()
	})

	g.Go(func() error {
		return apiServer.Start()
	})

	g.Go(func() error {
		return tracker.Run(gCtx, cfg.ExpiryInterval)
	})

	// Wait for context cancellation (signal) or a failed server
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("admin server shutdown error")
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api server shutdown error")
		}
		return nil
	})

	runErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Flush(flushCtx); err != nil {
		logger.Error().Err(err).Msg("final flush failed")
		if runErr == nil {
			runErr = err
		}
	}

	logger.Info().Msg("server stopped")
	return runErr
}

func main() {
	configPath := flag.String("config", "", "path to the config file (listen address and data directory)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
