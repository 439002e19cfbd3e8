// Package main wires the stet service: configuration, storage, the three
// domain services and their HTTP handlers, and the audit outbox relay, all
// under one signal-aware lifecycle. Business logic lives in the internal
// services packages; this file only composes them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/keithrawlingsbrown/stet/internal/audit"
	"github.com/keithrawlingsbrown/stet/internal/audit/relay"
	auditpg "github.com/keithrawlingsbrown/stet/internal/audit/store/postgres"
	"github.com/keithrawlingsbrown/stet/internal/enforcement/alert"
	enforcementhandler "github.com/keithrawlingsbrown/stet/internal/enforcement/handler"
	enforcementmetrics "github.com/keithrawlingsbrown/stet/internal/enforcement/metrics"
	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	enforcementservice "github.com/keithrawlingsbrown/stet/internal/enforcement/service"
	"github.com/keithrawlingsbrown/stet/internal/enforcement/store/heartbeat"
	"github.com/keithrawlingsbrown/stet/internal/jwtauth"
	ledgerhandler "github.com/keithrawlingsbrown/stet/internal/ledger/handler"
	ledgermetrics "github.com/keithrawlingsbrown/stet/internal/ledger/metrics"
	ledgerservice "github.com/keithrawlingsbrown/stet/internal/ledger/service"
	"github.com/keithrawlingsbrown/stet/internal/ledger/store/correction"
	"github.com/keithrawlingsbrown/stet/internal/ledger/store/idempotency"
	"github.com/keithrawlingsbrown/stet/internal/platform/config"
	"github.com/keithrawlingsbrown/stet/internal/platform/httpserver"
	"github.com/keithrawlingsbrown/stet/internal/platform/kafka"
	"github.com/keithrawlingsbrown/stet/internal/platform/logger"
	"github.com/keithrawlingsbrown/stet/internal/platform/metrics"
	"github.com/keithrawlingsbrown/stet/internal/platform/middleware"
	"github.com/keithrawlingsbrown/stet/internal/platform/otel"
	"github.com/keithrawlingsbrown/stet/internal/platform/postgres"
	"github.com/keithrawlingsbrown/stet/internal/platform/redis"
	"github.com/keithrawlingsbrown/stet/internal/ratelimit"
	ratelimitmetrics "github.com/keithrawlingsbrown/stet/internal/ratelimit/metrics"
	recallhandler "github.com/keithrawlingsbrown/stet/internal/recall/handler"
	recallmetrics "github.com/keithrawlingsbrown/stet/internal/recall/metrics"
	recallservice "github.com/keithrawlingsbrown/stet/internal/recall/service"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("stet-api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Setup(ctx, cfg.OTLPEndpoint, cfg.Service, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown failed", "error", err)
		}
	}()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	corrections := correction.NewPostgres(db)
	idempotencyKeys := idempotency.NewPostgres(db)
	heartbeats := heartbeat.NewPostgres(db)
	auditPublisher := audit.NewPublisher(auditpg.New(db))

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	// Alert dedup falls back to process memory when no Redis is configured;
	// multi-replica deployments need Redis or duplicates reappear.
	var alertSink enforcementservice.AlertSink
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		alertSink = alert.NewRedisSink(redisClient.Client, cfg.AlertBucket)
	} else {
		alertSink = alert.NewInMemorySink(cfg.AlertBucket)
	}

	origin := id.Origin{Service: cfg.Service, Version: cfg.Version, Environment: cfg.Environment}
	httpMetrics := metrics.New()

	ledgerService := ledgerservice.New(corrections, idempotencyKeys,
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgermetrics.New()),
		ledgerservice.WithAuditPublisher(auditPublisher),
		ledgerservice.WithTx(newLedgerPostgresTx(db)),
		ledgerservice.WithRetryAttempts(cfg.WriteRetryAttempts),
	)

	recallService := recallservice.New(corrections,
		recallservice.WithLogger(log),
		recallservice.WithMetrics(recallmetrics.New()),
	)

	enforcementService := enforcementservice.New(heartbeats,
		models.Thresholds{HeartbeatInterval: cfg.HeartbeatInterval, GraceMultiplier: cfg.GraceMultiplier},
		enforcementservice.WithLogger(log),
		enforcementservice.WithMetrics(enforcementmetrics.New()),
		enforcementservice.WithAuditPublisher(auditPublisher),
		enforcementservice.WithAlertSink(alertSink),
		enforcementservice.WithServerOrigin(origin),
	)

	limiter := ratelimit.NewMiddleware(
		ratelimit.NewSlidingWindow(cfg.RateLimit.Limit, cfg.RateLimit.Window),
		log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New()),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Latency(httpMetrics))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.TenantResolver)
		if cfg.JWTSigningKey != "" {
			r.Use(jwtauth.Middleware(jwtauth.NewService(cfg.JWTSigningKey, cfg.JWTIssuer), log))
		}
		r.Use(limiter.Limit)

		ledgerhandler.New(ledgerService, log).Register(r)
		recallhandler.New(recallService, log).Register(r)
		enforcementhandler.New(enforcementService, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("stet-api listening",
			"addr", cfg.Addr,
			"version", cfg.Version,
			"environment", cfg.Environment,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.New(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()

		auditRelay := relay.New(db, producer, cfg.Kafka.Topic,
			relay.WithLogger(log),
			relay.WithInterval(cfg.Kafka.PollInterval),
			relay.WithBatchSize(cfg.Kafka.BatchSize),
		)
		g.Go(func() error {
			log.Info("audit relay started", "topic", cfg.Kafka.Topic)
			if err := auditRelay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit relay: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
