package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IANDYI/glucose-diary/internal/adapters/handler"
	"github.com/IANDYI/glucose-diary/internal/adapters/middleware"
	"github.com/IANDYI/glucose-diary/internal/adapters/repository"
	"github.com/IANDYI/glucose-diary/internal/adapters/websocket"
	"github.com/IANDYI/glucose-diary/internal/config"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/IANDYI/glucose-diary/internal/core/services"
	"github.com/IANDYI/glucose-diary/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	// Open the diary storage
	blobStore, err := openBlobStore(cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer blobStore.Close()

	recordRepo := repository.NewRecordRepository(blobStore, cfg.StorageKey,
		repository.WithBreaker(repository.BreakerSettings("storage",
			cfg.CircuitBreakerMaxRequests, cfg.CircuitBreakerInterval, cfg.CircuitBreakerTimeout)),
		repository.WithRepositoryLogger(logger.Named(log, "repository")),
	)

	store := services.NewRecordStore(recordRepo,
		services.WithLocation(cfg.Location),
		services.WithLogger(logger.Named(log, "store")),
	)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Load(loadCtx)
	loadCancel()
	if err != nil {
		log.Fatal("failed to load diary", zap.Error(err))
	}
	log.Info("diary loaded", zap.Int("records", store.Len()), zap.String("timezone", cfg.Location.String()))

	// Initialize RabbitMQ publisher, messaging is optional
	var alertPublisher ports.AlertPublisher
	var rabbitMQPublisher *repository.RabbitMQPublisher
	if cfg.MessagingEnabled() {
		rabbitMQPublisher, err = repository.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.AlertsQueueName,
			repository.BreakerSettings("rabbitmq",
				cfg.CircuitBreakerMaxRequests, cfg.CircuitBreakerInterval, cfg.CircuitBreakerTimeout),
			logger.Named(log, "alerts"),
		)
		if err != nil {
			log.Fatal("failed to initialize RabbitMQ publisher", zap.Error(err))
		}
		defer rabbitMQPublisher.Close()
		alertPublisher = rabbitMQPublisher
	} else {
		log.Info("RABBITMQ_URL not set, glucose alerts and record imports are disabled")
	}

	// Live feed of diary changes
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hub := websocket.NewHub(logger.Named(log, "feed"))
	go hub.Run(hubCtx)

	diaryService := services.NewDiaryService(store, alertPublisher, logger.Named(log, "diary"),
		services.WithChangeNotifier(hub),
	)

	if cfg.SeedSampleData && store.Len() == 0 {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
		count, err := diaryService.ResetToSampleData(seedCtx)
		seedCancel()
		if err != nil {
			log.Fatal("failed to seed sample data", zap.Error(err))
		}
		log.Info("empty diary seeded with sample data", zap.Int("records", count))
	}

	// Initialize RabbitMQ consumer for record imports.
	// Each replica runs its own consumer; RabbitMQ distributes messages round-robin.
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if cfg.MessagingEnabled() {
		importConsumer, err := repository.NewRecordImportConsumer(cfg.RabbitMQURL, cfg.ImportQueueName, diaryService, logger.Named(log, "imports"))
		if err != nil {
			log.Fatal("failed to initialize RabbitMQ record import consumer", zap.Error(err))
		}
		defer importConsumer.Close()

		go func() {
			if err := importConsumer.StartConsuming(consumerCtx); err != nil {
				log.Error("record import consumer error", zap.Error(err))
			}
		}()
	}

	// Initialize handlers
	handler.RegisterDiaryMetrics()
	recordHandler := handler.NewRecordHandler(diaryService, cfg.Location, logger.Named(log, "http"))
	healthHandler := handler.NewHealthHandler(recordRepo, logger.Named(log, "health"))

	// Initialize JWT middleware
	var authMiddleware *middleware.AuthMiddleware
	if cfg.AuthDisabled {
		authMiddleware = middleware.NewDisabledAuthMiddleware(logger.Named(log, "auth"))
	} else {
		authMiddleware = middleware.NewAuthMiddleware(cfg.JWTPublicKey, logger.Named(log, "auth"))
	}
	defer authMiddleware.Stop()

	wsHandler := handler.NewWebSocketHandler(hub, authMiddleware, logger.Named(log, "feed"))

	anyRole := []string{middleware.RoleOwner, middleware.RoleViewer}

	// Setup HTTP router
	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible, no auth required)
	mux.HandleFunc("GET /metrics", handler.Metrics)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)
	mux.HandleFunc("GET /health/live", healthHandler.Live)

	// Read endpoints - OWNER and VIEWER
	mux.HandleFunc("GET /records", authMiddleware.RequireAnyRole(anyRole, recordHandler.ListRecords))
	mux.HandleFunc("GET /records/{record_id}", authMiddleware.RequireAnyRole(anyRole, recordHandler.GetRecord))
	mux.HandleFunc("GET /days", authMiddleware.RequireAnyRole(anyRole, recordHandler.ListDays))
	mux.HandleFunc("GET /days/{date}", authMiddleware.RequireAnyRole(anyRole, recordHandler.GetDay))
	mux.HandleFunc("POST /records/validate", authMiddleware.RequireAnyRole(anyRole, recordHandler.ValidateRecord))

	// Live feed - OWNER and VIEWER, authenticated by the handler (header or ?token=)
	mux.HandleFunc("GET /ws", wsHandler.HandleWebSocket)

	// Write endpoints - OWNER only
	mux.HandleFunc("POST /records", authMiddleware.RequireRole(middleware.RoleOwner, recordHandler.CreateRecord))
	mux.HandleFunc("PUT /records/{record_id}", authMiddleware.RequireRole(middleware.RoleOwner, recordHandler.UpdateRecord))
	mux.HandleFunc("DELETE /records/{record_id}", authMiddleware.RequireRole(middleware.RoleOwner, recordHandler.DeleteRecord))
	mux.HandleFunc("DELETE /records", authMiddleware.RequireRole(middleware.RoleOwner, recordHandler.ClearRecords))
	mux.HandleFunc("POST /records/sample", authMiddleware.RequireRole(middleware.RoleOwner, recordHandler.ResetToSampleData))

	// Wrap mux with metrics middleware to track all HTTP requests
	router := middleware.MetricsMiddleware(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting glucose diary service", zap.String("port", cfg.Port), zap.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Stop taking imports before the HTTP server drains
	consumerCancel()
	hubCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("server exited")
}

// openBlobStore opens the store selected by STORAGE_DRIVER
func openBlobStore(cfg *config.Config, log *zap.Logger) (repository.BlobStore, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := config.ConnectDatabase(cfg.DatabaseURL, 5, 2*time.Second, logger.Named(log, "database"))
		if err != nil {
			return nil, err
		}
		if err := config.InitDatabase(db, logger.Named(log, "database")); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewPostgresBlobStore(db), nil
	case config.DriverRedis:
		store, err := repository.NewRedisBlobStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := repository.NewFileSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
