// Command notification consumes alerts, throttles duplicates and bursts,
// and dispatches each accepted alert to every configured sink (§4.11).
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

	"github.com/monitoring/pipeline/internal/config"
	"github.com/monitoring/pipeline/internal/logging"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/monitoring/pipeline/internal/notification"
	"github.com/monitoring/pipeline/internal/throttler"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "console"})
	bootstrap.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting notification service")

	var cfg config.NotificationConfig
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

	sinks := []notification.Sink{notification.NewConsoleSink(logger)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notification.NewCircuitSink(notification.NewWebhookSink(cfg.WebhookURL), logger))
	}

	throttle := throttler.New(throttler.Config{
		DuplicateSuppressionMinutes: cfg.ThrottleDuplicateSuppressionMinutes,
		MaxNotificationsPerHour:     cfg.ThrottleMaxPerHour,
	})
	dispatcher := notification.New(throttle, sinks, logger)

	consumer, err := messagelog.NewConsumer(messagelog.ConsumerConfig{
		Brokers:       messagelog.ParseBrokers(cfg.KafkaBrokers),
		ConsumerGroup: notification.ConsumerGroup,
		Topics:        []string{cfg.TopicAlerts},
		OffsetReset:   messagelog.ResetCommitted,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create alerts consumer")
	}

	go func() {
		if err := consumer.Run(ctx, dispatcher.Handle); err != nil {
			logger.Error().Err(err).Msg("alerts consumer exited")
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
		logger.Info().Str("addr", healthServer.Addr).Msg("notification metrics server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("notification metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down notification service")
	cancel()
	_ = healthServer.Shutdown(context.Background())
}
