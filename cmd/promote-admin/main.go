package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dimitrije/cohort-api/internal/config"
	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/logging"
	"github.com/dimitrije/cohort-api/internal/services"
	"go.uber.org/zap"
)

// promote-admin grants super admin to an existing user. Super admins can
// manage phases and receive the phase run reports.
func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: promote-admin <email>")
		os.Exit(1)
	}

	email := os.Args[1]

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

	err = services.NewUserService(db).PromoteSuperAdmin(ctx, email)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		logger.Fatal("no user with that email", zap.String("email", email))
	case err != nil:
		logger.Fatal("failed to promote user", zap.Error(err))
	}

	fmt.Printf("Successfully promoted %s to super admin\n", email)
}
