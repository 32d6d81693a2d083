package main

import (
	"context"   // context package is needed for Redis operations
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal notification
	"syscall"   // Termination signal
	"time"      // Timeouts

	"remittance_system/internal/api"        // Custom package for API handlers
	"remittance_system/internal/config"     // Custom package for configuration
	"remittance_system/internal/db"         // Custom package for storage
	"remittance_system/internal/events"     // Custom package for lifecycle events
	"remittance_system/internal/jobs"       // Custom package for cron jobs
	"remittance_system/internal/service"    // Custom package for remittance operations
	"remittance_system/internal/settlement" // Custom package for deferred settlement
	"remittance_system/internal/tenant"     // Custom package for tenancy

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

const shutdownTimeout = 15 * time.Second

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	log := logrus.StandardLogger()

	// Connect to the platform database holding the tenant registry
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	platform, err := db.Open(ctx, cfg.DSN())
	cancel()
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Lifecycle events, dropped when no broker is configured
	var publisher events.Publisher = events.NopPublisher{Log: log}
	if cfg.RabbitMQURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		publisher = rp
	}

	// Tenancy: registry cached in Redis, resolver, connection router
	registry := tenant.NewCachedRegistry(tenant.NewGormRegistry(platform), redisClient, cfg.TenantCacheTTL, log)
	resolver := tenant.NewResolver(registry, tenant.Mode(cfg.TenancyMode), cfg.DSN(), cfg.TenantResolveTimeout)
	router := db.NewRouter(db.Open, log, db.WithDialTimeout(cfg.ConnDialTimeout))

	// Services
	queue := settlement.NewQueue(log, cfg.SettlementWorkers)
	payments := service.NewPayments(queue, cfg.SettlementDelay, publisher, log)
	queue.Start(payments.SettlementHandler(router))

	scheduler := jobs.NewScheduler(jobs.Config{
		EvictSchedule: cfg.ConnEvictSchedule,
		MaxIdle:       cfg.ConnMaxIdle,
		SweepSchedule: cfg.SettlementSweepSchedule,
	}, registry, resolver, router, payments, log)
	if err := scheduler.Start(); err != nil {
		logrus.Fatalf("failed to schedule jobs: %v", err)
	}
	go scheduler.RecoverSettlements() // Re-queue settlements left pending by the previous process

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	api.RegisterRoutes(r, api.Deps{
		Resolver:     resolver,
		Router:       router,
		Redis:        redisClient,
		JWTSecret:    cfg.JWTSecret,
		Transactions: service.NewTransactions(publisher, log),
		Payments:     payments,
		Withdrawals:  service.NewWithdrawals(publisher, log),
		Wallets:      service.NewWallets(publisher, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running") // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for a termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	// Stop accepting requests, then background work, then close connections
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithField("error", err.Error()).Warn("HTTP shutdown incomplete")
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		logrus.WithField("error", err.Error()).Warn("Settlement queue shutdown incomplete")
	}
	if err := router.Shutdown(shutdownCtx); err != nil {
		logrus.WithField("error", err.Error()).Warn("Connection router shutdown incomplete")
	}
	publisher.Close()
	_ = redisClient.Close()
	if sqlDB, err := platform.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logrus.Info("Server stopped")
}
