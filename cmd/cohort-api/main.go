package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/cohort-api/internal/broker"
	"github.com/dimitrije/cohort-api/internal/config"
	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/handlers"
	"github.com/dimitrije/cohort-api/internal/jobs"
	"github.com/dimitrije/cohort-api/internal/logging"
	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/realtime"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	b := newBroker(cfg, rdb, logger)
	defer func() { _ = b.Close() }()

	reg, err := metrics.NewRegistry()
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	metricsServer := metrics.NewServer(cfg.MetricsAddr, reg, logger.Named("metrics"))
	metricsServer.Start()

	dispatcher := realtime.NewDispatcher(b, logger.Named("dispatcher"))
	scheduler := jobs.NewScheduler(rdb, logger.Named("scheduler"))

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry)
	userService := services.NewUserService(db)
	teamService := services.NewTeamService(db)
	themeService := services.NewThemeService(db)
	notificationService := services.NewNotificationService(db, cfg.BaseURL)
	assignmentService := services.NewAssignmentService(teamService, themeService, notificationService, logger.Named("assignment"))
	requestService := services.NewRequestService(db, userService, teamService, themeService, notificationService, dispatcher, logger.Named("requests"))
	phaseService := services.NewPhaseService(db, scheduler, userService, assignmentService, notificationService, dispatcher, logger.Named("phases"))

	worker := jobs.NewServer(rdb, cfg.QueueConcurrency, logger)
	if err := worker.Start(jobs.NewMux(phaseService, logger)); err != nil {
		logger.Fatal("failed to start job worker", zap.Error(err))
	}

	userHandler := handlers.NewUserHandler(userService)
	requestHandler := handlers.NewRequestHandler(requestService, logger)
	phaseHandler := handlers.NewPhaseHandler(phaseService, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationService, userService, b, jwtService, cfg.CatchupLimit, logger)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	handlers.Routes{
		JWT:           jwtService,
		Users:         userService,
		User:          userHandler,
		Requests:      requestHandler,
		Phases:        phaseHandler,
		Notifications: notificationHandler,
	}.Register(app.Group("/api/v1"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	worker.Shutdown()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}

func newBroker(cfg *config.Config, rdb redis.UniversalClient, logger *zap.Logger) broker.Broker {
	switch cfg.Broker {
	case "local":
		local := broker.NewLocal()
		go local.Run()
		logger.Info("using in-process broker")
		return local
	default:
		logger.Info("using redis broker", zap.String("addr", cfg.Redis.Addr))
		return broker.NewRedis(rdb)
	}
}
