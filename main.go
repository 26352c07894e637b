package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/config"
	"stockalert/models"
	"stockalert/pkg/logger"
	"stockalert/routes"
	"stockalert/scheduler"
	"stockalert/services"
	"stockalert/services/mailer"
	"stockalert/services/pricefeed"
)

func main() {
	log, err := logger.New(os.Getenv("ENVIRONMENT"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.LoadConfig(log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal("database initialization failed", zap.Error(err))
	}

	if err := runMigrations(db); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}
	if err := models.SeedStocks(db); err != nil {
		log.Warn("could not seed stock catalog", zap.Error(err))
	}

	mail := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.AdminEmail, log)
	stream := services.NewQuoteStream(log)
	feed := pricefeed.NewClient(cfg.PriceAPIURL, cfg.PriceAPITimeout, log)
	quotes := services.NewQuoteService(db, feed, mail, stream, cfg.RefreshInterval, log)

	accessLog, err := services.NewAccessLogger(cfg.MongoURI, log)
	if err != nil {
		log.Warn("remote access logging unavailable", zap.Error(err))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog.Middleware())
	setupHealthEndpoints(router, db)
	routes.SetupRoutes(router, db, cfg, quotes, stream, mail, log)

	jobScheduler := scheduler.NewScheduler(db, quotes, mail, cfg.ScanInterval, log)
	jobScheduler.Start()

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	gracefulShutdown(server, jobScheduler, mail, stream, accessLog, db, log)
}

// runMigrations runs all database migrations.
func runMigrations(db *gorm.DB) error {
	if err := models.MigrateUserModels(db); err != nil {
		return err
	}
	return models.MigrateStockModels(db)
}

// setupHealthEndpoints registers liveness and readiness probes.
func setupHealthEndpoints(router *gin.Engine, db *gorm.DB) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// gracefulShutdown stops background work before closing the server so
// in-flight scan passes and notification emails can finish.
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, mail *mailer.Mailer, stream *services.QuoteStream, accessLog *services.AccessLogger, db *gorm.DB, log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))

	jobScheduler.Stop()
	mail.Close()
	stream.Shutdown()
	accessLog.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("shutdown complete")
}
