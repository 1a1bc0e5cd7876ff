package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/storage"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// Attempt engine tuning
	SubmitGracePeriod time.Duration

	// Optional collaborators; nil values fall back to in-process defaults
	Publisher events.EventPublisher
	Cache     *cache.CacheManager
	Reports   storage.ReportStorage
	Clock     func() time.Time
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	attemptService    AttemptService
	gradingService    GradingService
	statisticsService StatisticsService
	examService       ExamService
	exportService     ExportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// NewDefaultServiceManager wires services with a log-only publisher and no cache or report storage
func NewDefaultServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) ServiceManager {
	return NewServiceManager(db, repo, logger, validator, ServiceManagerConfig{
		SubmitGracePeriod: DefaultSubmitGrace,
	})
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.config.Validate(); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	sm.initializeServices()

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) initializeServices() {
	publisher := sm.config.Publisher
	if publisher == nil {
		publisher = events.NewLogEventPublisher(sm.logger)
	}

	sm.statisticsService = NewStatisticsService(sm.repo, sm.db, sm.logger, sm.config.Cache)
	sm.logger.Info("Statistics service initialized")

	attemptOpts := []AttemptOption{
		WithSubmitGrace(sm.config.SubmitGracePeriod),
		WithStatistics(sm.statisticsService),
	}
	if sm.config.Clock != nil {
		attemptOpts = append(attemptOpts, WithClock(sm.config.Clock))
	}
	sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, publisher, attemptOpts...)
	sm.logger.Info("Attempt service initialized", "submit_grace", sm.config.SubmitGracePeriod)

	sm.gradingService = NewGradingService(sm.db, sm.repo, sm.logger, sm.validator, publisher, sm.statisticsService)
	sm.logger.Info("Grading service initialized")

	sm.examService = NewExamService(sm.repo, sm.db, sm.logger, sm.validator)
	sm.logger.Info("Exam service initialized")

	sm.exportService = NewExportService(sm.statisticsService, sm.config.Reports, sm.logger)
	sm.logger.Info("Export service initialized", "archive_enabled", sm.config.Reports != nil)
}

// Service getters
func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.gradingService
}

func (sm *serviceManager) Statistics() StatisticsService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.statisticsService
}

func (sm *serviceManager) Exam() ExamService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.examService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.exportService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	if sm.config.Cache != nil {
		if err := sm.config.Cache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache health check failed: %w", err)
		}
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.config.Publisher != nil {
		if err := sm.config.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// Validate validates the service manager configuration
func (config *ServiceManagerConfig) Validate() error {
	if config.SubmitGracePeriod < 0 {
		return fmt.Errorf("submit grace period cannot be negative")
	}
	return nil
}
