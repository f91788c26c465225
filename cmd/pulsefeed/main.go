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

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed/internal/accounts"
	"github.com/pulsefeed/pulsefeed/internal/config"
	"github.com/pulsefeed/pulsefeed/internal/database"
	"github.com/pulsefeed/pulsefeed/internal/library"
	"github.com/pulsefeed/pulsefeed/internal/notifications"
	"github.com/pulsefeed/pulsefeed/internal/posts"
	"github.com/pulsefeed/pulsefeed/internal/server"
	"github.com/pulsefeed/pulsefeed/pkg/logger"
	"github.com/pulsefeed/pulsefeed/pkg/metrics"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Set up tracing
	traceShutdown, err := setupTracing(cfg.Environment)
	if err != nil {
		zapLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background())

	// Connect to PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis
	rdb, err := database.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Create notification hub and services
	hub := notifications.NewHub(zapLogger)

	notificationSvc, err := notifications.NewService(zapLogger, db, hub)
	if err != nil {
		zapLogger.Fatal("Failed to create notifications service", zap.Error(err))
	}

	accountsSvc, err := accounts.NewService(zapLogger, db, rdb, notificationSvc, accounts.Options{
		TokenCacheTTL: cfg.Auth.TokenCacheTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
		TOTPIssuer:    cfg.Auth.TOTPIssuer,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create accounts service", zap.Error(err))
	}

	postsSvc, err := posts.NewService(zapLogger, db, notificationSvc)
	if err != nil {
		zapLogger.Fatal("Failed to create posts service", zap.Error(err))
	}

	librarySvc, err := library.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create library service", zap.Error(err))
	}

	// Schedule DB pool metrics collection every 30s
	tickerDB := time.NewTicker(30 * time.Second)
	go func() {
		for range tickerDB.C {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				metrics.DBOpenConns.WithLabelValues("postgres").Set(float64(stats.OpenConnections))
				metrics.DBIdleConns.WithLabelValues("postgres").Set(float64(stats.Idle))
				metrics.DBInUseConns.WithLabelValues("postgres").Set(float64(stats.InUse))
			}
		}
	}()

	// Create API server
	apiServer := server.NewServer(zapLogger, cfg, accountsSvc, postsSvc, notificationSvc, librarySvc, hub, rdb)

	// Start services
	if err := notificationSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start notifications service", zap.Error(err))
	}
	if err := accountsSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start accounts service", zap.Error(err))
	}
	if err := postsSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start posts service", zap.Error(err))
	}
	if err := librarySvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start library service", zap.Error(err))
	}

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// Stop services
	if err := librarySvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop library service", zap.Error(err))
	}
	if err := postsSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop posts service", zap.Error(err))
	}
	if err := accountsSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop accounts service", zap.Error(err))
	}
	if err := notificationSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop notifications service", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		zapLogger.Error("Failed to close Redis client", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}

// setupTracing installs a global tracer provider. Spans go to stdout; a
// collector exporter can be swapped in without touching callers.
func setupTracing(environment string) (func(context.Context) error, error) {
	opts := []stdouttrace.Option{}
	if environment == "development" {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
