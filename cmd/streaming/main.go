// Command streaming fans metrics and alerts out to live dashboards over
// SSE, reading from the shared message log and the latest-value cache
// (§4.10, §4.12, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/monitoring/pipeline/internal/cache"
	"github.com/monitoring/pipeline/internal/config"
	"github.com/monitoring/pipeline/internal/logging"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/monitoring/pipeline/internal/streamhub"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "console"})
	bootstrap.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting streaming service")

	var cfg config.StreamingConfig
	if err := config.Load(&cfg, &bootstrap); err != nil {
		bootstrap.Fatal().Err(err).Msg("load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		bootstrap.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)
	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheClient := cache.New(cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, logger)
	defer cacheClient.Close()

	hub := streamhub.New(streamhub.Config{BufferSize: cfg.StreamBufferSize}, logger)
	latestReader := streamhub.NewLatestReader(cacheClient, cfg.LatestPollInterval(), cfg.StreamBufferSize, logger)

	brokers := messagelog.ParseBrokers(cfg.KafkaBrokers)
	metricsConsumer, err := messagelog.NewConsumer(messagelog.ConsumerConfig{
		Brokers:       brokers,
		ConsumerGroup: streamhub.MetricsConsumerGroup,
		Topics:        []string{cfg.TopicMetricsRaw},
		OffsetReset:   messagelog.ResetLatest,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create streaming metrics consumer")
	}
	alertsConsumer, err := messagelog.NewConsumer(messagelog.ConsumerConfig{
		Brokers:       brokers,
		ConsumerGroup: streamhub.AlertsConsumerGroup,
		Topics:        []string{cfg.TopicAlerts},
		OffsetReset:   messagelog.ResetLatest,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create streaming alerts consumer")
	}

	hub.Start(ctx, metricsConsumer, alertsConsumer)
	go latestReader.Run(ctx)

	maxSubscribers := streamhub.MaxSubscribers()
	logger.Info().Int("max_subscribers", maxSubscribers).Msg("sized SSE subscriber capacity from container memory limit")

	streamRouter := streamhub.NewRouter(hub, latestReader, cfg.StreamBufferSize, cfg.HeartbeatInterval(), maxSubscribers, cfg.CPURejectThresholdPercent, logger)
	streamRouter.StartCPUGuard(ctx, cfg.CPUSampleInterval())

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	streamRouter.Mount(router)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("streaming HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("streaming HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down streaming service")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
