package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/psicare/platform/cmd/mainconfig"
	"github.com/psicare/platform/internal/api/router"
	appconfig "github.com/psicare/platform/internal/config"
	"github.com/psicare/platform/internal/directory"
	"github.com/psicare/platform/internal/http/handlers"
	"github.com/psicare/platform/internal/notify"
	"github.com/psicare/platform/internal/observability/metrics"
	"github.com/psicare/platform/internal/payments"
	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/pkg/logging"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting psicare booking API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The directory may live in a separate database; default to the
	// main one.
	dirURL := cfg.DirectoryURL
	if dirURL == "" {
		dirURL = cfg.DatabaseURL
	}
	dirDB, err := sql.Open("postgres", dirURL)
	if err != nil {
		logger.Error("failed to open directory database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = dirDB.Close() }()
	dirRepo := directory.NewRepository(dirDB)

	// Redis is optional; without it listings are served uncached.
	var cache *scheduling.ListCache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = scheduling.NewListCache(redis.NewClient(opts), cfg.CacheTTL, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	schedMetrics := metrics.NewSchedulingMetrics(registry)

	repo := scheduling.NewRepository(pool)
	checker := scheduling.NewChecker(repo)

	// Notification pipeline: queue, email sender, publisher, worker.
	queue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize notification queue", "error", err)
		os.Exit(1)
	}
	emailSender := buildEmailSender(ctx, cfg, logger)
	publisher := notify.NewPublisher(queue, logger)
	worker := notify.NewWorker(notify.WorkerConfig{
		Queue:    queue,
		Email:    emailSender,
		Contacts: dirRepo,
		Workers:  cfg.NotifyWorkers,
		Logger:   logger,
	})
	go func() { _ = worker.Run(ctx) }()

	var paymentCreator scheduling.PaymentCreator
	if client := payments.NewGatewayClient(cfg.PaymentGatewayBaseURL, cfg.PaymentGatewayAPIKey, logger); client != nil {
		paymentCreator = client
	} else {
		paymentCreator = payments.NewStubCreator(logger)
	}

	svc := scheduling.NewService(scheduling.Config{
		Repo:      repo,
		Checker:   checker,
		Directory: dirRepo,
		Notifier:  publisher,
		Payments:  paymentCreator,
		Cache:     cache,
		Metrics:   schedMetrics,
		Logger:    logger,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		Appointments:       handlers.NewAppointmentsHandler(svc, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SessionJWTSecret:   cfg.SessionJWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildQueue picks SQS when a queue URL is configured, otherwise the
// in-process queue.
func buildQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.Queue, error) {
	if cfg.UseMemoryQueue || cfg.NotifyQueueURL == "" {
		logger.Info("using in-memory notification queue")
		return notify.NewMemoryQueue(256), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("using SQS notification queue", "queue_url", cfg.NotifyQueueURL)
	return notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL), nil
}

// buildEmailSender picks the configured provider and degrades to the
// stub sender when none is usable.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	useSendGrid := cfg.EmailProvider == "sendgrid" || (cfg.EmailProvider == "auto" && cfg.SendGridAPIKey != "")
	if useSendGrid {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFrom,
			FromName:  cfg.SendGridName,
		}, logger); s != nil {
			return s
		}
	}

	useSES := cfg.EmailProvider == "ses" || (cfg.EmailProvider == "auto" && cfg.SESFromEmail != "")
	if useSES {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for SES, falling back to stub sender", "error", err)
		} else if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			return s
		}
	}

	logger.Info("email delivery disabled, using stub sender")
	return notify.NewStubEmailSender(logger)
}
