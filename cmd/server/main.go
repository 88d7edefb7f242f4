package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"dingbot/internal/api"
	"dingbot/internal/api/handlers"
	"dingbot/internal/api/middleware"
	"dingbot/internal/engine/notify"
	"dingbot/internal/pkg/logger"
	"dingbot/internal/pkg/metrics"
	"dingbot/internal/platform/audit"
	"dingbot/internal/platform/auth"
	"dingbot/internal/platform/config"
	"dingbot/internal/platform/database"
	"dingbot/internal/platform/repositories"
	"dingbot/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logCloser := logger.Init(cfg.Logging)
	defer logCloser.Close()

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open robot registry")
	}
	defer db.Close()
	if err := database.Migrate(db, migrations.FS, "global"); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate robot registry")
	}

	queue, err := notify.NewQueue(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}
	defer queue.Close()

	// Repositories and services
	robotRepo := repositories.NewRobotRepository(db)
	auditLog := audit.NewLogger(db)
	m := metrics.New()
	resolver := notify.NewResolver(cfg, robotRepo)
	dispatcher := notify.NewDispatcher(resolver, queue, m)
	tokenSvc := auth.NewTokenService(cfg.JWT)

	if err := config.Watch(*configPath, func(next *config.Config) {
		resolver.Reload(next)
		log.Info().Int("robots", len(next.Robots)).Str("default_robot", next.DefaultRobot).Msg("config reloaded")
	}, func(err error) {
		log.Error().Err(err).Msg("failed to reload config")
	}); err != nil {
		log.Warn().Err(err).Msg("config watch disabled")
	}

	router := api.NewRouter(&api.Dependencies{
		NotifyHandler:  handlers.NewNotifyHandler(dispatcher),
		RobotHandler:   handlers.NewRobotHandler(robotRepo, auditLog, resolver),
		AuditHandler:   handlers.NewAuditHandler(auditLog),
		HealthHandler:  handlers.NewHealthHandler(db, queue),
		MetricsHandler: handlers.NewMetricsHandler(m),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenSvc),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A Redis queue is drained by cmd/worker; the memory queue only lives here.
	workersDone := make(chan struct{})
	if cfg.Queue.Backend == "" || cfg.Queue.Backend == "memory" {
		go func() {
			notify.NewWorkerPool(cfg.Queue.Workers, queue, dispatcher).Run(ctx)
			close(workersDone)
		}()
	} else {
		close(workersDone)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("queue", cfg.Queue.Backend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	<-workersDone
}
