package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidrelay/vidrelay/internal/api"
	"github.com/vidrelay/vidrelay/internal/api/handler"
	"github.com/vidrelay/vidrelay/internal/auth"
	"github.com/vidrelay/vidrelay/internal/config"
	"github.com/vidrelay/vidrelay/internal/extractor"
	"github.com/vidrelay/vidrelay/internal/notify"
	"github.com/vidrelay/vidrelay/internal/relay"
	"github.com/vidrelay/vidrelay/internal/service"
	"github.com/vidrelay/vidrelay/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vidrelay %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting vidrelay",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The merge pipe cannot run without its remuxing binary; fail at
	// startup rather than per request.
	merge, err := relay.NewMergePipe(cfg.Relay.FFmpegPath, logger)
	if err != nil {
		logger.Error("merge pipe unavailable", "error", err)
		os.Exit(1)
	}

	// Same deal for the metadata extractor: no binary, no downloads.
	ytdlp := extractor.NewYtDlp(cfg.Extractor.Path, cfg.Extractor.Timeout, logger)
	if !ytdlp.Available() {
		logger.Error("metadata extractor not found", "path", cfg.Extractor.Path)
		os.Exit(1)
	}

	events, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize:  cfg.Events.RingBufferSize,
		PersistToSQLite: cfg.Events.PersistToSQLite,
		SQLitePath:      cfg.Events.SQLitePath,
		RetentionDays:   cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		logger.Error("failed to init event journal", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	hub := notify.NewHub(verifier, events, logger)
	ladder := relay.NewLadder(hub, logger)
	direct := relay.NewDirectRelay(cfg.Relay.UserAgent, logger)

	pool := worker.NewPool(worker.Config{
		Workers:   cfg.Extractor.Workers,
		QueueSize: cfg.Extractor.QueueSize,
	}, logger)
	pool.Start()

	streamSvc := service.NewStreamService(ytdlp, pool, direct, merge, ladder, events, logger)
	infoSvc := service.NewInfoService(ytdlp, pool, logger)

	downloadHandler := handler.NewDownloadHandler(streamSvc, logger)
	infoHandler := handler.NewInfoHandler(infoSvc, logger)
	eventHandler := handler.NewEventHandler(events, logger)
	healthHandler := handler.NewHealthHandler(events, ytdlp.Available())

	router := api.NewRouter(downloadHandler, infoHandler, eventHandler, healthHandler, hub.ServeWS)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Prune persisted events daily.
	pruneCtx, cancelPrune := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				if err := events.CleanupOldEvents(pruneCtx); err != nil {
					logger.Warn("event cleanup failed", "error", err)
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelPrune()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
