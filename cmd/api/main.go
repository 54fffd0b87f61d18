package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/incident-service/internal/api/http"
	"github.com/spec-kit/incident-service/internal/api/http/handlers"
	"github.com/spec-kit/incident-service/internal/bootstrap"
	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/persistence"
	"github.com/spec-kit/incident-service/internal/service"
	"github.com/spec-kit/incident-service/internal/sla"
	"github.com/spec-kit/incident-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calendar, err := bootstrap.LoadCalendar(cfg.SLA)
	if err != nil {
		logger.Fatal("failed to load business calendar", zap.Error(err))
	}
	if year := time.Now().In(calendar.Location()).Year(); !calendar.Covers(year) {
		logger.Warn("holiday table does not cover the current year", zap.Int("year", year), zap.Ints("years", calendar.Years()))
	}
	engine, err := sla.NewEngine(calendar, logger)
	if err != nil {
		logger.Fatal("failed to build sla engine", zap.Error(err))
	}

	backend, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	defer backend.Close()

	dependencies := map[string]handlers.Pinger{backend.Name: backend.Pinger}
	var redis *persistence.Redis
	if cfg.Redis.Addr != "" {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		dependencies["redis"] = redis
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var producer events.Producer
	if cfg.Kafka.Enabled() {
		producer, err = events.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close() //nolint:errcheck
		logger.Info("kafka notifications enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	notificationService := service.NewNotificationService(dispatcher, producer, metrics, logger)

	roster, err := service.LoadRoster(cfg.Assign.RosterFile)
	if err != nil {
		logger.Fatal("failed to load analyst roster", zap.Error(err))
	}
	if len(roster) == 0 {
		logger.Info("no analyst roster configured; auto-assignment disabled")
	}
	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      backend.Store,
		Engine:     engine,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Roster:     roster,
	})
	dashboardService := service.NewDashboardService(backend.Store.Tickets, engine, logger, nil)
	importService := service.NewImportService(backend.Store, engine, metrics, logger, nil)

	var monitor *worker.SLAMonitor
	if cfg.Monitor.Enabled {
		var deduper worker.Deduper
		if redis != nil {
			deduper = worker.NewRedisDeduper(redis.Client, cfg.App.Name+":")
		}
		monitor = worker.NewSLAMonitor(worker.MonitorDependencies{
			Tickets:    backend.Store.Tickets,
			Engine:     engine,
			Dispatcher: dispatcher,
			Deduper:    deduper,
			Metrics:    metrics,
			Logger:     logger.Named("sla-monitor"),
			Config:     cfg.Monitor,
		})
	}
	monitorDone := worker.StartNotificationWorker(ctx, notificationService, monitor, logger)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: max(cfg.App.ImportMaxBytes, fiber.DefaultBodyLimit),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Tickets:   handlers.NewTicketsHandler(ticketService),
		Dashboard: handlers.NewDashboardHandler(dashboardService),
		SLA:       handlers.NewSLAHandler(engine),
		Import:    handlers.NewImportHandler(importService, int64(cfg.App.ImportMaxBytes)),
		Metrics:   metrics.Handler(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger, func() { reloadCalendar(cfg.SLA, engine, logger) })

	cancel()
	<-monitorDone
	_ = app.Shutdown()
}

// reloadCalendar swaps in a freshly loaded holiday table. A broken table is
// logged and the current calendar stays active.
func reloadCalendar(cfg config.SLAConfig, engine *sla.Engine, logger *zap.Logger) {
	calendar, err := bootstrap.LoadCalendar(cfg)
	if err != nil {
		logger.Error("calendar reload failed; keeping current calendar", zap.Error(err))
		return
	}
	if err := engine.SwapCalendar(calendar); err != nil {
		logger.Error("calendar swap failed", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger, onReload func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			onReload()
			continue
		}
		logger.Info("shutting down", zap.String("signal", sig.String()))
		return
	}
}
