package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/app"
	"github.com/sourccey/kiosk-relay/internal/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	rt, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kiosk runtime")
	}

	if err := rt.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start network listeners")
	}

	log.Info().
		Str("nickname", cfg.Nickname).
		Str("discovery", cfg.DiscoveryAddr()).
		Str("service", cfg.ServiceAddr()).
		Str("ui", cfg.UIAddr).
		Msg("kiosk host ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down kiosk host")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.UIShutdownTimeout)
	defer shutdownCancel()

	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("kiosk host forced to shutdown")
	}

	log.Info().Msg("kiosk host stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
