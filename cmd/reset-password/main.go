package main

import (
	"os"

	"go-fleet-console/internal/config"
	"go-fleet-console/internal/repository"
	"go-fleet-console/pkg/database"
	"go-fleet-console/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	email := pflag.String("email", "admin@example.com", "account to reset")
	password := pflag.String("password", "admin123", "new password")
	pflag.Parse()

	// 1. Load config
	cfg, err := config.Load()
	log := logger.New(os.Getenv("APP_ENV"))
	defer log.Sync()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	// 2. Setup Database
	db, err := database.ConnectDB(cfg.Database.DSN(), log, false)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	userRepo := repository.NewUserRepo(db)

	// 3. Find user
	user, err := userRepo.FindByEmail(*email)
	if err != nil {
		log.Fatal("user not found", zap.String("email", *email), zap.Error(err))
	}

	// 4. Hash new password
	if err := user.SetPassword(*password); err != nil {
		log.Fatal("hash password", zap.Error(err))
	}

	// 5. Update, signing out every open session
	if err := userRepo.UpdatePassword(user.ID, user.Password); err != nil {
		log.Fatal("update password", zap.Error(err))
	}
	if err := userRepo.UpdateTokenVersion(user.ID, uuid.New().String()); err != nil {
		log.Fatal("rotate sessions", zap.Error(err))
	}

	log.Info("password reset", zap.String("email", *email), zap.String("role", user.RoleCode()))
}
