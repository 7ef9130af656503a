package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paularlott/cli"

	"github.com/vistrive/assetnext/internal/api"
	"github.com/vistrive/assetnext/internal/config"
	"github.com/vistrive/assetnext/internal/discovery"
	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/presence"
	"github.com/vistrive/assetnext/internal/storage"
	"github.com/vistrive/assetnext/internal/token"
	"github.com/vistrive/assetnext/internal/worker"
)

// RunServer wires storage, services, and the HTTP layer together and serves
// until SIGINT or SIGTERM.
func RunServer(cfg *config.Config) error {
	store, err := storage.NewSQLiteStorage(cfg.DataDir)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		return err
	}
	defer store.Close()
	log.Info("Storage initialized", "path", cfg.DataDir)

	tokens := token.NewService(cfg.JWTSecret)
	registry := discovery.NewRegistry(store, tokens, cfg.AgentDownloadURL)
	tracker := presence.NewTracker(store)

	scheduler := worker.NewScheduler(store)
	scheduler.Start()
	defer scheduler.Stop()

	mux := http.NewServeMux()
	apiHandler := api.NewHandler(store, registry, tracker, tokens)
	apiHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = api.OperatorAuthMiddleware(tokens, handler)
	handler = api.SecurityHeadersMiddleware(handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn("Graceful shutdown failed, closing", "error", err)
			server.Close()
		}
	}()

	log.Info("Starting AssetNext server", "addr", cfg.ListenAddr)
	log.Info("Discovery API available", "url", "http://localhost"+cfg.ListenAddr+"/api/discovery/")
	log.Info("Presence API available", "url", "http://localhost"+cfg.ListenAddr+"/api/network/")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server error", "error", err)
		return err
	}

	log.Info("Server stopped")
	return nil
}

func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the AssetNext server",
		Description: "Start the HTTP server with the discovery and presence APIs",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				log.Error("Failed to load configuration", "error", err)
				return err
			}

			log.Info("Configuration loaded", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

			return RunServer(cfg)
		},
	}
}
