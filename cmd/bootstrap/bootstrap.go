package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-scheduler/config"
	deliveryHttp "clinic-scheduler/internal/delivery/http"
	"clinic-scheduler/internal/delivery/http/handler"
	"clinic-scheduler/internal/delivery/http/middleware"
	"clinic-scheduler/internal/infrastructure/cache"
	"clinic-scheduler/internal/infrastructure/database"
	"clinic-scheduler/internal/repository"
	"clinic-scheduler/internal/service"
	"clinic-scheduler/internal/usecase"
	"clinic-scheduler/pkg/jwt"
	"clinic-scheduler/pkg/metrics"
	"clinic-scheduler/pkg/validator"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	serviceName       = "clinic_scheduler"
	shutdownTimeout   = 10 * time.Second
	cacheWarmupBudget = 30 * time.Second
)

// App holds all dependencies for the application
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	RedisClient *redis.Client
	Server      *http.Server

	// stoppers end background goroutines (lock sweeper, rate-limit sweeper) on shutdown
	stoppers []func()
}

// New creates a new App instance with all dependencies initialized
func New() (*App, error) {
	app := &App{}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	log := setupLogger(cfg.Log)
	log.Info("Configuration loaded successfully")

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DB, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db
	log.Info("Database connected successfully")

	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(cfg.DB, log); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.RedisClient = redisClient
	log.Info("Redis connected successfully")

	// Initialize all layers
	if err := app.initializeServer(log); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// setupLogger configures the logrus logger
func setupLogger(cfg config.LogConfig) *logrus.Logger {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	return logrus.StandardLogger()
}

// initializeServer wires repositories, services, usecases and handlers into the HTTP server
func (app *App) initializeServer(log *logrus.Logger) error {
	cfg := app.Config

	jwtService := jwt.NewJWTService(cfg.JWT)
	customValidator := validator.NewValidator()
	collector := metrics.NewCollector(serviceName)

	// Initialize repositories
	transactor := repository.NewTransactor(app.DB)
	appointmentRepo := repository.NewAppointmentRepository(app.DB)
	doctorRepo := repository.NewDoctorRepository(app.DB)
	patientRepo := repository.NewPatientRepository(app.DB)

	// Initialize services
	policy, err := usecase.NewAvailabilityPolicy(cfg.Scheduling)
	if err != nil {
		return fmt.Errorf("invalid scheduling config: %w", err)
	}

	var hoursCache service.HoursCache
	if cfg.Scheduling.CacheWorkingHours {
		workingHoursCache := service.NewWorkingHoursCache(app.RedisClient, log, cfg.Scheduling.WorkingHoursTTL, collector)
		warmupCtx, cancel := context.WithTimeout(context.Background(), cacheWarmupBudget)
		if err := workingHoursCache.SyncOnStartup(warmupCtx, doctorRepo); err != nil {
			// A cold cache only costs extra store reads.
			log.Warnf("Failed to warm working hours cache: %+v", err)
		}
		cancel()
		hoursCache = workingHoursCache
	}

	var locker service.SlotLocker
	switch cfg.Scheduling.LockBackend {
	case config.LockBackendRedis:
		locker = service.NewRedisSlotLocker(app.RedisClient, log, cfg.Scheduling.LockTTL, cfg.Scheduling.LockWait)
	default:
		localLocker := service.NewLocalSlotLocker(log, cfg.Scheduling.LockWait)
		app.stoppers = append(app.stoppers, localLocker.Stop)
		locker = localLocker
	}
	log.Infof("Slot locker backend: %s", cfg.Scheduling.LockBackend)

	accessPolicy := service.NewAccessPolicy(doctorRepo, patientRepo, log)
	tokenStore := cache.NewRedisTokenStore(app.RedisClient)

	// Initialize usecases
	checker := usecase.NewAvailabilityChecker(log, doctorRepo, appointmentRepo, hoursCache, policy, collector)
	appointmentUsecase := usecase.NewAppointmentUsecase(log, transactor, appointmentRepo, doctorRepo, patientRepo, checker, locker, accessPolicy, collector)
	doctorScheduleUsecase := usecase.NewDoctorScheduleUsecase(log, doctorRepo, hoursCache, accessPolicy)

	// Initialize handlers
	appointmentHandler := handler.NewAppointmentHandler(appointmentUsecase, customValidator, log)
	doctorScheduleHandler := handler.NewDoctorScheduleHandler(doctorScheduleUsecase, customValidator, log)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, tokenStore, accessPolicy, log)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.App.CORSOrigin)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	app.stoppers = append(app.stoppers, rateLimiter.Stop)

	// Initialize router
	router := deliveryHttp.NewRouter(appointmentHandler, doctorScheduleHandler, authMiddleware, corsMiddleware, rateLimiter, collector)

	app.Server = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.App.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run starts the HTTP server and handles graceful shutdown
func (app *App) Run() {
	go func() {
		logrus.Infof("Server starting on port %s", app.Config.App.Port)
		logrus.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	app.waitForShutdown()
}

// waitForShutdown blocks until an interrupt signal is received
func (app *App) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	app.Close()

	logrus.Info("Server shutdown complete")
}

// Close stops background workers and closes all connections
func (app *App) Close() {
	for _, stop := range app.stoppers {
		stop()
	}
	app.stoppers = nil

	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
