// Command ingestion runs the HTTP boundary that validates inbound metric
// requests and publishes them to metrics.raw (§6).
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
	"github.com/monitoring/pipeline/internal/config"
	"github.com/monitoring/pipeline/internal/ingestion"
	"github.com/monitoring/pipeline/internal/logging"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metrics"
	"golang.org/x/time/rate"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "console"})
	bootstrap.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting ingestion service")

	var cfg config.IngestionConfig
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

	producer, err := messagelog.NewProducer(messagelog.ParseBrokers(cfg.KafkaBrokers), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create metrics.raw producer")
	}
	defer producer.Close()

	validate := ingestion.NewValidator(ingestion.Config{
		MaxMetricValue:        cfg.MetricsMaxValue,
		AllowedEnvironments:   cfg.AllowedEnvironmentSet(),
		TimestampPastWindow:   cfg.TimestampPastWindow(),
		TimestampFutureWindow: cfg.TimestampFutureWindow(),
	})
	handler := ingestion.NewHandler(validate, producer, cfg.TopicMetricsRaw, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(rateLimit(limiter))
	handler.Mount(router)
	router.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("ingestion HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ingestion HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down ingestion service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

// rateLimit rejects requests once the ingress token bucket is exhausted
// (§6: "rate-limited at ingress").
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
