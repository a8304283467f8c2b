// The notify-worker binary consumes appointment events from SQS and
// sends the emails. Deployments that use the in-memory queue run the
// worker inside the API process instead.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/psicare/platform/cmd/mainconfig"
	appconfig "github.com/psicare/platform/internal/config"
	"github.com/psicare/platform/internal/directory"
	"github.com/psicare/platform/internal/notify"
	"github.com/psicare/platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).WithComponent("notify-worker")
	logger.Info("starting notification worker", "env", cfg.Env)

	if cfg.NotifyQueueURL == "" {
		logger.Error("NOTIFY_QUEUE_URL is required")
		os.Exit(1)
	}

	dirURL := cfg.DirectoryURL
	if dirURL == "" {
		dirURL = cfg.DatabaseURL
	}
	if dirURL == "" {
		logger.Error("DATABASE_URL or DIRECTORY_DATABASE_URL is required")
		os.Exit(1)
	}
	dirDB, err := sql.Open("postgres", dirURL)
	if err != nil {
		logger.Error("failed to open directory database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = dirDB.Close() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var sender notify.EmailSender
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFrom,
		FromName:  cfg.SendGridName,
	}, logger); s != nil {
		sender = s
	} else if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
		FromName:  cfg.SESFromName,
	}, logger); s != nil {
		sender = s
	} else {
		sender = notify.NewStubEmailSender(logger)
	}

	worker := notify.NewWorker(notify.WorkerConfig{
		Queue:    notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL),
		Email:    sender,
		Contacts: directory.NewRepository(dirDB),
		Workers:  cfg.NotifyWorkers,
		Logger:   logger,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		stop()
	}()

	_ = worker.Run(ctx)
	logger.Info("worker stopped")
}
