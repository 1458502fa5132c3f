package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"college-auth/internal/config"
	apphttp "college-auth/internal/http"
	"college-auth/internal/password"
	"college-auth/internal/repository"
	"college-auth/internal/repository/postgres"
	"college-auth/internal/repository/sqlite"
	"college-auth/internal/service"
	"college-auth/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.Log.Level, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, closeStore, err := buildUserRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup credential store: %v", err)
	}
	defer closeStore()

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	hasher := password.NewBcryptHasher(cfg.Auth.BcryptCost)

	if err := service.BootstrapAdmin(ctx, userRepo, hasher, service.BootstrapOptions{
		Enabled:      cfg.Auth.BootstrapAdmin,
		PasswordPath: cfg.Auth.AdminPasswordPath,
	}, logger); err != nil {
		logger.Fatalf("bootstrap admin: %v", err)
	}

	tokens, err := token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.TokenTTL(), cfg.Auth.Issuer)
	if err != nil {
		logger.Fatalf("setup token issuer: %v", err)
	}

	registration := service.NewRegistrationService(userRepo, hasher, service.RegistrationPolicy{
		DefaultRole:       cfg.Auth.DefaultRole,
		SignupRoles:       cfg.Auth.SignupRoles,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	}, logger)
	auth := service.NewAuthService(userRepo, hasher, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(registration, auth, tokens, cfg.CORS.AllowedOrigins, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildUserRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.UserRepository, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("using sqlite credential store at %s", cfg.Database.Path)
		return sqlite.NewUserRepository(db), func() { _ = db.Close() }, nil
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres credential store")
		return postgres.NewUserRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
