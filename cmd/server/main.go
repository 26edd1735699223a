// Package main runs the Corpulate API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/corpulate/platform/internal/app"
	"github.com/corpulate/platform/internal/app/auth"
	"github.com/corpulate/platform/internal/app/httpapi"
	"github.com/corpulate/platform/internal/app/storage/postgres"
	"github.com/corpulate/platform/internal/config"
	"github.com/corpulate/platform/internal/mailer"
	"github.com/corpulate/platform/internal/platform/cache"
	"github.com/corpulate/platform/internal/platform/database"
	"github.com/corpulate/platform/internal/platform/migrations"
	"github.com/corpulate/platform/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// .env is optional; variables may come from the environment directly.
		logger.NewDefault("server").WithError(err).Warn("could not load .env file")
	}

	log := logger.NewDefault("server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stores app.Stores
	var healthCheck func(ctx context.Context) error
	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Error("database connection failed")
			os.Exit(1)
		}
		defer db.Close()

		if err := migrations.Apply(ctx, db); err != nil {
			log.WithError(err).Error("migrations failed")
			os.Exit(1)
		}

		store := postgres.New(db)
		stores = app.Stores{Users: store, Packages: store, AddOns: store, Requests: store}
		healthCheck = database.HealthCheck(db)
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	opts := app.Options{Tokens: auth.NewTokenManager(cfg.JWTSecret)}

	if cfg.RedisAddr != "" {
		opts.Cache = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	} else {
		log.Info("REDIS_ADDR not set; stats caching disabled")
	}

	if cfg.MailConfigured() {
		smtp, err := mailer.NewSMTP(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log)
		if err != nil {
			log.WithError(err).Warn("SMTP setup failed; emails disabled")
		} else {
			opts.Mailer = smtp
		}
	} else {
		log.Info("SMTP_HOST not set; emails disabled")
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		log.WithError(err).Error("application setup failed")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("application start failed")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application, httpapi.Options{
		Logger:         log,
		Mailer:         opts.Mailer,
		HealthCheck:    healthCheck,
		AllowedOrigins: cfg.AllowedOrigins,
		RatePerSecond:  cfg.RatePerSecond,
		RateBurst:      cfg.RateBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop error")
	}
	log.Info("server stopped")
}
