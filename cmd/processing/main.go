// Command processing drains metrics.raw, runs the Aggregator and Alert
// Engine for every sample, and publishes derived alerts (§4.6-§4.9).
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

	"github.com/monitoring/pipeline/internal/aggregator"
	"github.com/monitoring/pipeline/internal/alertbus"
	"github.com/monitoring/pipeline/internal/alertengine"
	"github.com/monitoring/pipeline/internal/cache"
	"github.com/monitoring/pipeline/internal/config"
	"github.com/monitoring/pipeline/internal/logging"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metricconsumer"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/monitoring/pipeline/internal/rules"
	"github.com/monitoring/pipeline/internal/store"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "console"})
	bootstrap.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting processing service")

	var cfg config.ProcessingConfig
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

	pool, err := store.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	metricStore := store.NewMetricStore(pool)
	alertStore := store.NewAlertStore(pool)
	ruleStore := rules.NewSQLStore(pool)

	producer, err := messagelog.NewProducer(messagelog.ParseBrokers(cfg.KafkaBrokers), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create alerts producer")
	}
	defer producer.Close()
	alertPublisher := alertbus.NewPublisher(producer, cfg.TopicAlerts, logger)

	agg := aggregator.New(cacheClient, metricStore, cfg.CacheTTL(), logger)
	engine := alertengine.New(cacheClient, ruleStore, alertStore, alertPublisher.AsEngineFunc(), logger)
	consumer := metricconsumer.New(agg, engine, logger)

	metricsConsumer, err := messagelog.NewConsumer(messagelog.ConsumerConfig{
		Brokers:       messagelog.ParseBrokers(cfg.KafkaBrokers),
		ConsumerGroup: metricconsumer.ConsumerGroup,
		Topics:        []string{cfg.TopicMetricsRaw},
		OffsetReset:   messagelog.ResetCommitted,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create metrics.raw consumer")
	}

	go func() {
		if err := metricsConsumer.Run(ctx, consumer.Handle); err != nil {
			logger.Error().Err(err).Msg("metrics.raw consumer exited")
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/metrics", metrics.Handler())
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	healthServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: healthMux}
	go func() {
		logger.Info().Str("addr", healthServer.Addr).Msg("processing metrics server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("processing metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down processing service")
	cancel()
	_ = healthServer.Shutdown(context.Background())
}
