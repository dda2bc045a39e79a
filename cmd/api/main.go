package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-progression-api/internal/config"
	"github.com/noah-isme/gema-progression-api/internal/database"
	"github.com/noah-isme/gema-progression-api/internal/handler"
	"github.com/noah-isme/gema-progression-api/internal/middleware"
	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/repository"
	"github.com/noah-isme/gema-progression-api/internal/router"
	"github.com/noah-isme/gema-progression-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Node{},
		&models.Skill{},
		&models.Unit{},
		&models.Path{},
		&models.Progress{},
		&models.SkillProgress{},
		&models.UnitProgress{},
		&models.Profile{},
		&models.TelemetryEvent{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	nodeRepo := repository.NewNodeRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	skillProgressRepo := repository.NewSkillProgressRepository(db)
	unitProgressRepo := repository.NewUnitProgressRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	pathRepo := repository.NewPathRepository(db)
	telemetryRepo := repository.NewTelemetryRepository(db, cfg.TelemetryRetention)

	telemetryService := service.NewTelemetryService(telemetryRepo, logger)
	ledger := service.NewGamificationService(db, profileRepo, telemetryService, cfg.DailyGoalBonusXP, logger)
	reportService := service.NewPathReportService(pathRepo, nodeRepo, progressRepo, redisClient, cfg.ReportCacheTTL, logger)
	progressionService := service.NewProgressionService(
		db,
		nodeRepo,
		progressRepo,
		skillProgressRepo,
		unitProgressRepo,
		ledger,
		telemetryService,
		reportService,
		validate,
		logger,
	)
	pathService := service.NewPathService(pathRepo, nodeRepo, validate, logger)

	healthHandler := handler.NewHealthHandler(cfg, db, redisClient)
	progressionHandler := handler.NewProgressionHandler(progressionService, logger)
	pathHandler := handler.NewPathHandler(pathService, reportService, logger)
	profileHandler := handler.NewProfileHandler(ledger, logger)
	telemetryHandler := handler.NewTelemetryHandler(telemetryService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		HealthHandler:      healthHandler,
		ProgressionHandler: progressionHandler,
		PathHandler:        pathHandler,
		ProfileHandler:     profileHandler,
		TelemetryHandler:   telemetryHandler,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
