package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/threattrace/threattrace/internal/auth"
	"github.com/threattrace/threattrace/internal/config"
	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/email"
	"github.com/threattrace/threattrace/internal/handler"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/middleware"
	"github.com/threattrace/threattrace/internal/repository"
	"github.com/threattrace/threattrace/internal/router"
	"github.com/threattrace/threattrace/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting ThreatTrace security monitor")

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Initialize repositories
	auditRepo := repository.NewAuditRepository(db)
	blockRepo := repository.NewBlockedIPRepository(db)
	userRepo := repository.NewUserRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	// Optional alert email channel
	var sender email.Sender
	if cfg.Alerts.Email.Enabled {
		gmailSender, err := email.NewGmailSender(
			context.Background(),
			cfg.Alerts.Email.ClientID,
			cfg.Alerts.Email.ClientSecret,
			cfg.Alerts.Email.RefreshToken,
			cfg.Alerts.Email.SenderAddress,
			cfg.Alerts.Email.SenderName,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize alert email sender")
		}
		sender = gmailSender
		log.Info().Str("admin", cfg.Alerts.Email.AdminAddress).Msg("alert email channel enabled")
	}

	// Initialize services in dependency order: alerts, containment, anomaly, ledger
	alertSvc := service.NewAlertService(alertRepo, rdb, sender, cfg.Alerts, log)
	containmentSvc := service.NewContainmentService(blockRepo, userRepo, log)
	anomalySvc := service.NewAnomalyService(auditRepo, containmentSvc, alertSvc, cfg.Anomaly, log)
	auditSvc := service.NewAuditService(auditRepo, anomalySvc, alertSvc, log)
	log.Info().Msg("audit pipeline initialized")

	// Initialize token validation
	tokenSvc, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}

	// Initialize HTTP layer
	h := handler.New(db, rdb, log, auditSvc, alertSvc, blockRepo, userRepo, alertRepo)
	mw := middleware.New(blockRepo, userRepo, auditSvc, log)
	r := router.New(h, mw, log, tokenSvc, cfg.Auth.AdminRole)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
