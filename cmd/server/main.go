package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatline/internal/adapters/httpapi"
	"chatline/internal/config"
	"chatline/internal/core"
	"chatline/internal/hub"
	"chatline/internal/store/badgerstore"
	"chatline/internal/store/memstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	var store core.Store
	if cfg.DataDir != "" {
		bs, err := badgerstore.Open(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open store")
		}
		defer func() {
			if err := bs.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close store")
			}
		}()
		store = bs
	} else {
		log.Warn().Msg("no data_dir configured, history will not survive restarts")
		store = memstore.New()
	}

	h := hub.New(store)

	r := httpapi.SetupRouter(ctx, cfg, h, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("chatline server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
