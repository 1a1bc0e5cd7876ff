package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/config"
	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/handlers"
	"github.com/SAP-F-2025/exam-attempt-service/internal/metrics"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/memory"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/storage"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
	"github.com/SAP-F-2025/exam-attempt-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := utils.NewJSONLogger(utils.NewLogWriter(cfg.LogFile), cfg.LogLevel)
	slog.SetDefault(slogLogger)
	logger := utils.NewSlogLogger(slogLogger)

	shutdownTracer, err := pkg.InitTracer(cfg.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	metrics.Init()

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", "error", err)
			redisClient = nil
		}
	}

	// Initialize repositories
	var db *gorm.DB
	var repo repositories.Repository
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		repo = memory.New()
	default:
		db, err = pkg.InitDatabase(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}

		repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
			DB:          db,
			RedisClient: redisClient,
			Users: casdoor.NewUserCasdoor(casdoor.CasdoorConfig{
				Endpoint:         cfg.Casdoor.Endpoint,
				ClientID:         cfg.Casdoor.ClientID,
				ClientSecret:     cfg.Casdoor.ClientSecret,
				Certificate:      cfg.Casdoor.Cert,
				OrganizationName: cfg.Casdoor.Organization,
				ApplicationName:  cfg.Casdoor.Application,
			}, redisClient),
		})
		if err := repoManager.Initialize(); err != nil {
			log.Fatalf("Failed to initialize repositories: %v", err)
		}
		repo = repoManager.GetRepository()
	}

	// Event publisher
	var publisher events.EventPublisher = events.NewLogEventPublisher(slogLogger)
	if cfg.Kafka.Enabled() {
		kafkaPublisher, err := events.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
		publisher = kafkaPublisher
	}

	// Report archive (optional)
	var reports storage.ReportStorage
	if cfg.Minio.Enabled() {
		minioStorage, err := storage.NewMinioReportStorage(cfg.Minio)
		if err != nil {
			log.Fatalf("Failed to initialize report storage: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := minioStorage.EnsureBucket(ctx); err != nil {
			logger.Warn("Report bucket check failed", "error", err)
		}
		cancel()
		reports = minioStorage
	}

	// Initialize validator
	validator := validator.New()

	// Initialize services
	smConfig := services.ServiceManagerConfig{
		SubmitGracePeriod: cfg.SubmitGracePeriod,
		Publisher:         publisher,
		Reports:           reports,
	}
	if redisClient != nil {
		smConfig.Cache = cache.NewCacheManager(redisClient)
	}
	serviceManager := services.NewServiceManager(db, repo, slogLogger, validator, smConfig)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	authMiddleware := handlers.NewCasdoorAuthMiddleware(cfg.Casdoor, repo.User(), logger)
	handlerManager := handlers.NewHandlerManager(serviceManager, logger, authMiddleware, cfg.AutosaveRatePerMinute)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", cfg.StorageDriver,
			"kafka", cfg.Kafka.Enabled(),
			"report_archive", reports != nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Closes the publisher and the repository (database and Redis)
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}
	if db == nil && redisClient != nil {
		redisClient.Close()
	}

	if err := shutdownTracer(ctx); err != nil {
		logger.Error("Failed to flush traces", "error", err)
	}

	logger.Info("Server exited")
}
