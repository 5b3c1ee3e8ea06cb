package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/examscan/examscan/internal/config"
	"github.com/examscan/examscan/internal/home"
	"github.com/examscan/examscan/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the examscan server",
	Long: `Start the examscan HTTP server.

The server provides:
  - POST /documents                      - Upload and process exam scans
  - GET  /jobs/{id}                      - Processing progress
  - GET  /documents/{id}/regions         - Detected regions
  - GET  /documents/{id}/questions       - Extracted questions
  - POST /documents/{id}/corrections     - Manual region corrections
  - GET  /health                         - Health check

Examples:
  examscan serve                     # Start on default 127.0.0.1:8080
  examscan serve --addr :3000        # Bind all interfaces on port 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		configPath := cfgFile
		if configPath == "" && h.ConfigExists() {
			configPath = h.ConfigPath()
		}

		cm, err := config.NewManager(configPath)
		if err != nil {
			return err
		}
		cm.WatchConfig()
		cfg := cm.Get()

		svcs, err := buildServices(cfg, logger)
		if err != nil {
			return err
		}
		svcs.runner.Start(ctx)

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		srv, err := server.New(server.Config{
			Addr:        addr,
			Store:       svcs.store,
			Runner:      svcs.runner,
			Ingestor:    svcs.ingestor,
			Broker:      svcs.broker,
			Diagnostics: svcs.diagnostics,
			Corrector:   svcs.corrector,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
		svcs.runner.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}
