package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/mcdev12/focusroom/go/internal/config"
	"github.com/mcdev12/focusroom/go/internal/status"
)

// startStatusServer serves /health, /status and /metrics in the background
// when status_addr is configured.
func startStatusServer(ctx context.Context, cfg *config.Config, injector do.Injector) {
	if cfg.StatusAddr == "" {
		return
	}
	srv, err := do.Invoke[*status.Server](injector)
	if err != nil {
		log.Warn().Err(err).Msg("failed to build status server")
		return
	}
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status server stopped")
		}
	}()
}
