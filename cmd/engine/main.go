package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/youcloud/sla-engine/internal/api/http"
	"github.com/youcloud/sla-engine/internal/api/http/handlers"
	"github.com/youcloud/sla-engine/internal/auth"
	"github.com/youcloud/sla-engine/internal/config"
	"github.com/youcloud/sla-engine/internal/engine"
	"github.com/youcloud/sla-engine/internal/events"
	"github.com/youcloud/sla-engine/internal/observability"
	"github.com/youcloud/sla-engine/internal/persistence"
	"github.com/youcloud/sla-engine/internal/repository"
	"github.com/youcloud/sla-engine/internal/service"
	"github.com/youcloud/sla-engine/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	slaLogRepo := repository.NewSLALogRepository(pool)
	statusLogRepo := repository.NewStatusLogRepository(pool)
	auditLogRepo := repository.NewAuditLogRepository(pool)
	partnerRepo := repository.NewPartnerRepository(pool)
	ruleRepo := repository.NewEscalationRuleRepository(pool)
	store := repository.NewStore(pool)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger)
	notificationService.RegisterHandlers()

	clock := engine.SystemClock()
	rules := engine.NewRuleResolver(ruleRepo, logger)
	auditRecorder := engine.NewAuditRecorder(statusLogRepo, auditLogRepo, logger)
	repairer := engine.NewRepairer(clock, ticketRepo, slaLogRepo, rules, auditRecorder, metrics, logger)
	webhooks := webhook.NewHTTPDispatcher(cfg.Webhook, metrics, logger)

	eng := engine.New(engine.Dependencies{
		Clock:    clock,
		Store:    store,
		Tickets:  ticketRepo,
		SLALogs:  slaLogRepo,
		Partners: engine.NewPartnerDirectory(partnerRepo),
		Rules:    rules,
		Repairer: repairer,
		Audit:    auditRecorder,
		Webhooks: webhooks,
		Events:   dispatcher,
		Metrics:  metrics,
		Logger:   logger,
		Config:   cfg.Engine,
	})

	sweepLock := persistence.NewSweepLock(redis, cfg.Engine.SweepLockKey)
	controller := engine.NewController(eng, sweepLock, cfg.Engine, logger)
	controller.Start(ctx)

	authService := service.NewAuthService(cfg.Auth)
	authMiddleware := auth.NewMiddleware(authService.TokenManager())
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:    ticketRepo,
		SLALogRepo:    slaLogRepo,
		StatusLogRepo: statusLogRepo,
		PartnerRepo:   partnerRepo,
		AuditLogRepo:  auditLogRepo,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, controller),
		Auth:           handlers.NewAuthHandler(authService),
		Escalation:     handlers.NewEscalationHandler(controller, escalationService),
		Engine:         handlers.NewEngineHandler(controller, metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	controller.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
