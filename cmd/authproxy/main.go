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

	"github.com/waabox/modeldeck/internal/auth"
	"github.com/waabox/modeldeck/internal/config"
	"github.com/waabox/modeldeck/internal/logging"
	"github.com/waabox/modeldeck/internal/proxy"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	cfg, envPath, err := config.LoadProxy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authproxy: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	if envPath != "" {
		log.Info().Str("path", envPath).Msg("loaded .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := proxy.NewMetrics()
	store := proxy.NewStore(cfg.MaxSessions, metrics, log)
	upstream := auth.NewGitHubDeviceFlow(cfg.GitHubClientID, cfg.GitHubScopes, cfg.GitHubBaseURL, cfg.UpstreamTimeout)
	svc := proxy.NewService(upstream, store,
		proxy.WithLogger(log),
		proxy.WithMetrics(metrics),
	)
	go svc.RunSweeper(ctx, cfg.SweepInterval)

	e := proxy.NewServer(proxy.ServerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowScope:     cfg.AllowsScope,
	}, svc, metrics, log)

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("scopes", cfg.ScopeString()).
			Str("version", version).
			Msg("auth proxy listening")
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
