// Command create-user provisions an evaluator account.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/models"
	"github.com/noah-isme/cbta-eval-api/internal/repository"
	"github.com/noah-isme/cbta-eval-api/internal/service"
	"github.com/noah-isme/cbta-eval-api/pkg/config"
	"github.com/noah-isme/cbta-eval-api/pkg/database"
	"github.com/noah-isme/cbta-eval-api/pkg/logger"
)

func main() {
	var (
		email    string
		password string
		fullName string
		role     string
	)
	flag.StringVar(&email, "email", "", "account email")
	flag.StringVar(&password, "password", os.Getenv("CREATE_USER_PASSWORD"), "account password (min 8 characters)")
	flag.StringVar(&fullName, "name", "", "full name")
	flag.StringVar(&role, "role", string(models.RoleInstructor), "ADMIN or INSTRUCTOR")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	auth := service.NewAuthService(repository.NewUserRepository(db), validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	user, err := auth.CreateUser(ctx, models.CreateUserRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
		FullName: strings.TrimSpace(fullName),
		Role:     models.UserRole(strings.ToUpper(strings.TrimSpace(role))),
	})
	if err != nil {
		logr.Fatal("create user", zap.Error(err))
	}
	logr.Info("user created", zap.String("id", user.ID), zap.String("email", user.Email), zap.String("role", string(user.Role)))
}
