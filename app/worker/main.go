package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldDispatch/app/worker/router"
	"fieldDispatch/business/bandit"
	"fieldDispatch/business/extraction"
	"fieldDispatch/business/pipeline"
	"fieldDispatch/internal/repository/composer"
	"fieldDispatch/internal/repository/openai"
	psqlRepo "fieldDispatch/internal/repository/postgres"
	redisRepo "fieldDispatch/internal/repository/redis"
	"fieldDispatch/internal/rest"
	"fieldDispatch/pkg/config"
	"fieldDispatch/pkg/database"
	redisdb "fieldDispatch/pkg/database/redis"
	"fieldDispatch/pkg/logger"
	"fieldDispatch/pkg/metrics"
	"fieldDispatch/pkg/utils"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting Field Dispatch Worker", "version", cfg.App.Version)

	utils.InitJWT(cfg.JWT.SecretKey)
	metrics.Init()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	logger.Info("Database connected successfully")

	redisClient, err := redisdb.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisdb.CloseRedisClient(redisClient)

	logger.Info("Redis connected successfully")

	// Init external capabilities
	extractionRepo := openai.NewExtractionRepository(openai.ExtractionConfig{
		Endpoint: cfg.Extraction.Endpoint,
		APIKey:   cfg.Extraction.APIKey,
		Model:    cfg.Extraction.Model,
		Timeout:  cfg.Extraction.Timeout,
	})

	composerRepo := composer.NewComposerRepository(composer.ComposerConfig{
		Endpoint:          cfg.Composer.Endpoint,
		BasicAuthUsername: cfg.Composer.BasicAuthUsername,
		BasicAuthPassword: cfg.Composer.BasicAuthPassword,
	})

	// Init repo
	ticketRepo := psqlRepo.NewTicketRepository(db)
	decisionRepo := psqlRepo.NewDecisionRepository(db)
	banditStateRepo := psqlRepo.NewBanditStateRepository(db)
	technicianRepo := psqlRepo.NewTechnicianContextRepository(db)
	txManager := psqlRepo.NewTransactionManager(db)

	guard := redisRepo.NewIdempotencyGuard(redisClient, cfg.Broker.LeaseWindow)

	broker, err := redisRepo.NewStreamBroker(
		context.Background(),
		redisClient,
		cfg.Broker.Stream,
		cfg.Broker.Group,
		cfg.Broker.DeadLetter,
		cfg.Broker.LeaseWindow,
	)
	if err != nil {
		logger.Fatal("Failed to initialize stream broker", "error", err)
	}

	// Init service
	banditConfig := bandit.DefaultConfig()
	banditConfig.Alpha = cfg.Bandit.Alpha

	extractionService := extraction.NewService(extractionRepo, cfg.Bandit.ConfidenceThreshold, cfg.Extraction.MaxRetries)
	banditService := bandit.NewService(banditStateRepo, decisionRepo, banditConfig)
	pipelineService := pipeline.NewService(
		extractionService,
		banditService,
		ticketRepo,
		technicianRepo,
		txManager,
		guard,
		broker,
		composerRepo,
	)

	pool := pipeline.NewPool(pipelineService, banditService, cfg.Broker.WorkerCount, cfg.Bandit.RewardTimeout)
	pool.Start(context.Background())

	// Init handler
	eventsHandler := rest.NewEventsHandler(broker)
	ticketsHandler := rest.NewTicketsHandler(ticketRepo)
	techniciansHandler := rest.NewTechniciansHandler(technicianRepo)
	feedbackHandler := rest.NewFeedbackHandler(banditService, cfg.Bandit.RewardTimeout)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(echomiddleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupEventRoutes(api, eventsHandler)
	router.SetupTicketRoutes(api, ticketsHandler)
	router.SetupTechnicianRoutes(api, techniciansHandler)
	router.SetupFeedbackRoutes(api, feedbackHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop taking new events first, then finish the ones in flight
	pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Worker stopped")
}
