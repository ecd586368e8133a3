package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/dimitrije/cohort-api/internal/broker"
	"github.com/dimitrije/cohort-api/internal/config"
	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/jobs"
	"github.com/dimitrije/cohort-api/internal/logging"
	"github.com/dimitrije/cohort-api/internal/realtime"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// run-phase fires a phase trigger by hand, e.g. after a failed batch was
// fixed. It is as idempotent as the scheduled trigger.
func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: run-phase <phase-key>")
		os.Exit(1)
	}

	phaseKey := os.Args[1]

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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	// Connected clients still get pushed notifications when the redis
	// broker is in use; with the local broker only the stored rows remain.
	var b broker.Broker = broker.NewRedis(rdb)
	if cfg.Broker == "local" {
		local := broker.NewLocal()
		go local.Run()
		b = local
	}
	defer func() { _ = b.Close() }()

	userService := services.NewUserService(db)
	teamService := services.NewTeamService(db)
	themeService := services.NewThemeService(db)
	notificationService := services.NewNotificationService(db, cfg.BaseURL)
	assignmentService := services.NewAssignmentService(teamService, themeService, notificationService, logger.Named("assignment"))
	phaseService := services.NewPhaseService(
		db,
		jobs.NewScheduler(rdb, logger.Named("scheduler")),
		userService,
		assignmentService,
		notificationService,
		realtime.NewDispatcher(b, logger.Named("dispatcher")),
		logger.Named("phases"),
	)

	result, err := phaseService.Fire(ctx, phaseKey)
	if err != nil {
		logger.Fatal("phase run failed", zap.String("phase", phaseKey), zap.Error(err))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
