package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"dingbot/internal/api/handlers"
	"dingbot/internal/engine/notify"
	"dingbot/internal/pkg/logger"
	"dingbot/internal/pkg/metrics"
	"dingbot/internal/platform/config"
	"dingbot/internal/platform/database"
	"dingbot/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "Address serving /metrics; empty disables it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logCloser := logger.Init(cfg.Logging)
	defer logCloser.Close()

	if cfg.Queue.Backend != "redis" {
		log.Fatal().Str("backend", cfg.Queue.Backend).Msg("standalone workers need the redis queue backend")
	}

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open robot registry")
	}
	defer db.Close()

	queue := notify.NewRedisQueue(cfg.Queue.Redis)
	defer queue.Close()

	resolver := notify.NewResolver(cfg, repositories.NewRobotRepository(db))
	m := metrics.New()
	dispatcher := notify.NewDispatcher(resolver, queue, m)

	if err := config.Watch(*configPath, resolver.Reload, func(err error) {
		log.Error().Err(err).Msg("failed to reload config")
	}); err != nil {
		log.Warn().Err(err).Msg("config watch disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		srv := newMetricsServer(*metricsAddr, m)
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("metrics server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("redis", cfg.Queue.Redis.Addr).Str("key", cfg.Queue.Redis.Key).Msg("starting notification workers")
	notify.NewWorkerPool(cfg.Queue.Workers, queue, dispatcher).Run(ctx)
}

// newMetricsServer exposes the worker's send metrics; with the redis backend
// every send happens in this process.
func newMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	router := httprouter.New()
	metricsHandler := handlers.NewMetricsHandler(m)
	router.HandlerFunc(http.MethodGet, "/metrics", metricsHandler.Export)

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
