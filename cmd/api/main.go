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

	"meikon/internal/billing"
	"meikon/internal/config"
	"meikon/internal/database"
	"meikon/internal/logger"
	"meikon/internal/router"
	"meikon/internal/validator"
)

// @title           MEIKon API
// @version         1.0
// @description     Cash book, inventory and subscription billing for Brazilian micro-entrepreneurs (MEI).

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

// @securityDefinitions.apikey OperatorKey
// @in header
// @name X-API-Key

const shutdownTimeout = 15 * time.Second

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	stripe, mp := billing.NewProviders(appConfig)
	if stripe == nil {
		log.Warn("STRIPE_SECRET_KEY not set, Stripe checkout and webhooks are disabled")
	}
	if mp == nil {
		log.Warn("MERCADOPAGO_ACCESS_TOKEN not set, MercadoPago checkout and notifications are disabled")
	}

	engine := router.New(router.Options{
		JWTSecret:      appConfig.JWTSecret,
		OperatorAPIKey: appConfig.OperatorAPIKey,
		AllowedOrigin:  appConfig.AppURL,
	}, router.NewServices(dbManager.DB(), appConfig, stripe, mp))

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting MEIKon API on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
