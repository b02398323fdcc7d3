package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpiface "github.com/sawpanic/chartpulse/internal/interfaces/http"
)

// runServe starts the operator HTTP server with the full report pipeline
// behind POST /reports/generate.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	server, err := httpiface.NewServer(cfg.Operator, rt.store, rt.sink, rt.orch, rt.dbm)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := server.Address()
		log.Info().
			Str("health", fmt.Sprintf("http://%s/health", addr)).
			Str("generate", fmt.Sprintf("http://%s/reports/generate", addr)).
			Str("cache", fmt.Sprintf("http://%s/cache/stats", addr)).
			Str("telemetry", fmt.Sprintf("http://%s/telemetry/stats", addr)).
			Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
			Msg("Operator endpoints available")

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Operator server shutdown complete")
	return nil
}
