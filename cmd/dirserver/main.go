package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/config"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/logger"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/server"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/server/historydb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration",
			slog.String("error", err.Error()))
	}

	history, err := historydb.Open(cfg.HistoryDBPath)
	if err != nil {
		logger.Fatal("Failed to open history database",
			slog.String("path", cfg.HistoryDBPath),
			slog.String("error", err.Error()))
	}
	defer history.Close()

	directory := server.NewDirectory()
	engine := server.NewEngine(directory, history, server.DefaultWorkerCount)
	router := server.NewRouter(server.NewHandler(engine))

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("Starting directory server",
			slog.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server",
				slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Stop the job engine first so no new work lands mid-shutdown.
	engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error",
			slog.String("error", err.Error()))
	}

	logger.Info("Server exited")
}
