package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"opsgate/internal/authz"
	"opsgate/internal/authz/admin"
	"opsgate/internal/authz/catalog"
	authzconfig "opsgate/internal/authz/config"
	authzhandler "opsgate/internal/authz/handler"
	"opsgate/internal/authz/metrics"
	"opsgate/internal/authz/ports"
	decisionstore "opsgate/internal/authz/store/decision"
	"opsgate/internal/platform/config"
	"opsgate/internal/platform/httpserver"
	"opsgate/internal/platform/logger"
	redisplatform "opsgate/internal/platform/redis"
	"opsgate/internal/servicetoken"
	"opsgate/internal/session"
	httpapi "opsgate/internal/transport/http"
	"opsgate/pkg/platform/audit"
	"opsgate/pkg/platform/audit/publisher"
	kafkasink "opsgate/pkg/platform/audit/publishers/kafka"
	memorystore "opsgate/pkg/platform/audit/store/memory"
	postgresstore "opsgate/pkg/platform/audit/store/postgres"
	"opsgate/pkg/platform/middleware/auth"
)

// main wires the decision engine and its backing services. Business logic
// lives in internal packages; everything here is dependency assembly and
// lifecycle.
func main() {
	cfg := config.FromEnv()
	policyCfg := authzconfig.FromEnv()
	log := logger.New()
	ctx := context.Background()

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	var cache authz.DecisionCache
	var oracle ports.SessionOracle
	healthChecks := map[string]httpapi.HealthChecker{}
	if redisClient != nil {
		cache = decisionstore.NewFailoverStore(
			decisionstore.NewRedisStore(redisClient.Client),
			decisionstore.NewInMemoryStore(),
			log,
		)
		oracle = session.NewRedisStore(redisClient.Client)
		healthChecks["redis"] = redisClient
		defer redisClient.Close()
	} else {
		cache = decisionstore.NewInMemoryStore()
		oracle = session.NewInMemoryStore()
	}

	auditStore, closeStore, err := newAuditStore(ctx, cfg)
	if err != nil {
		log.Error("audit store init failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.AuditBuffer),
		publisher.WithLogger(log),
	)
	defer auditor.Close()

	roleCatalog := catalog.Default()
	engine, err := authz.New(roleCatalog,
		authz.WithConfig(policyCfg),
		authz.WithCache(cache),
		authz.WithSessionOracle(oracle),
		authz.WithAuditor(auditor),
		authz.WithMetrics(metrics.New()),
		authz.WithLogger(log),
	)
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	var validator auth.TokenValidator
	if cfg.AuthSigningKey != "" {
		validator = servicetoken.New(cfg.AuthSigningKey, cfg.AuthIssuer, cfg.AuthAudience)
	} else {
		log.Warn("service authentication disabled: OPSGATE_AUTH_SIGNING_KEY not set")
	}

	var adminHandler *admin.Handler
	if cfg.AdminToken != "" {
		adminService, err := admin.New(roleCatalog,
			admin.WithLogger(log),
			admin.WithAuditPublisher(auditor),
		)
		if err != nil {
			log.Error("admin service init failed", "error", err)
			os.Exit(1)
		}
		adminHandler = admin.NewHandler(adminService, log)
	}

	router := httpapi.NewRouter(httpapi.Options{
		AuthzHandler: authzhandler.New(engine, log),
		Logger:       log,
		Validator:    validator,
		AdminHandler: adminHandler,
		AdminToken:   cfg.AdminToken,
		HealthChecks: healthChecks,
	})
	srv := httpserver.New(cfg.Addr, router)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info("starting opsgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server terminated", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// newAuditStore selects the audit sink: Kafka when brokers are configured,
// Postgres when a DSN is configured, in-memory otherwise.
func newAuditStore(ctx context.Context, cfg config.Server) (audit.Store, func(), error) {
	switch {
	case len(cfg.AuditKafkaBrokers) > 0:
		sink, err := kafkasink.New(ctx, cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		closeSink := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sink.Close(closeCtx)
		}
		return sink, closeSink, nil
	case cfg.AuditPostgresDSN != "":
		store, err := postgresstore.New(ctx, cfg.AuditPostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return memorystore.NewInMemoryStore(), func() {}, nil
	}
}
