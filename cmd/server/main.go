package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/ai"
	"github.com/iliyamo/vkm-portal/internal/config"
	"github.com/iliyamo/vkm-portal/internal/database"
	"github.com/iliyamo/vkm-portal/internal/handler"
	"github.com/iliyamo/vkm-portal/internal/identity"
	"github.com/iliyamo/vkm-portal/internal/logging"
	"github.com/iliyamo/vkm-portal/internal/middleware"
	"github.com/iliyamo/vkm-portal/internal/queue"
	"github.com/iliyamo/vkm-portal/internal/repository"
	"github.com/iliyamo/vkm-portal/internal/router"
	"github.com/iliyamo/vkm-portal/internal/service"
	"github.com/iliyamo/vkm-portal/internal/utils"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL)
	modelSvc := ai.NewClient(cfg.ModelAPIURL, cfg.ModelAPIKey, cfg.ModelAPITimeout, logger.Named("recommender"))

	deps := service.Deps{
		Users:       repository.NewUserRepo(db),
		Modules:     repository.NewModuleRepo(db),
		Tokens:      tokens,
		Recommender: modelSvc,
		Trainer:     modelSvc,
		Logger:      logger,
		BcryptCost:  cfg.BcryptCost,
		TopN:        cfg.RecommendTopN,
	}
	ms := identity.NewMicrosoftVerifier(cfg.MSAuthorityURL, cfg.MSTenantID, cfg.MSClientID,
		identity.NewMemoryKeyCache(), &http.Client{Timeout: cfg.MSKeysTimeout})
	if ms.Configured() {
		deps.Verifier = ms
	} else {
		logger.Info("microsoft login disabled (MS_TENANT_ID/MS_CLIENT_ID not set)")
	}
	if cfg.EventsEnabled {
		deps.Events = queue.NewPublisher(cfg.RabbitMQURL)
		go func() {
			if err := queue.StartActivityConsumer(ctx, cfg.RabbitMQURL, cfg.ActivityLogDir, logger.Named("activity")); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("activity consumer stopped", zap.Error(err))
			}
		}()
	}
	svc := service.NewAuthService(deps)

	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	err = svc.SeedAdmin(seedCtx, service.SeedAdminInput{
		Email:    cfg.SeedAdminEmail,
		Username: cfg.SeedAdminUsername,
		Password: cfg.SeedAdminPassword,
		Role:     cfg.SeedAdminRole,
	})
	cancelSeed()
	if err != nil {
		logger.Error("admin seed failed", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = utils.RequestValidator{}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.Metrics())
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.HeaderAPIKey},
	}))
	e.Use(echomw.BodyLimit("1M"))

	rd := router.Deps{
		Auth:      handler.NewAuthHandler(svc, logger),
		Modules:   handler.NewModuleHandler(svc, logger),
		Admin:     handler.NewAdminHandler(svc, logger),
		DB:        db,
		Tokens:    tokens,
		Keys:      cfg.ServiceKeys,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Logger:    logger,
	}
	router.RegisterRoutes(e, rd)
	router.RegisterAPI(e, rd)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	svc.Wait()
}
