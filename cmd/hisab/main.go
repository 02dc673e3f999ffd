package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/auth"
	"hisab/internal/cache"
	"hisab/internal/cli"
	"hisab/internal/events"
	apphttp "hisab/internal/http"
	"hisab/internal/log"
	"hisab/internal/notify"
	"hisab/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitRepository(logger, cfg)
	defer repo.Close()
	logger.Info("Repository initialized", "backend", cfg.DataBackend)

	bus := events.NewBus()

	// Summary cache, invalidated by change events
	summaries := services.NewSummaryCache(cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	cacheManager := cache.NewManager(logger.Logger)
	cacheManager.Register(summaries)
	cacheManager.StartCleanup(10 * time.Minute)

	svc := apphttp.Services{
		Users:     services.NewUserService(repo),
		Expenses:  services.NewExpenseService(repo, repo, bus),
		Budgets:   services.NewBudgetService(repo, repo, bus),
		Groups:    services.NewMembershipService(repo, repo, repo, bus),
		Parents:   services.NewParentService(repo, repo, repo, repo, bus),
		Analytics: services.NewAnalyticsService(repo, repo, repo, repo, summaries, bus),
	}

	// Forward change events to the broker for hisab-worker
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, events stay in-process", log.FieldError, err)
		} else {
			amqpClient = client
			amqp.NewBridge(amqpClient).Attach(bus)
			logger.Info("AMQP event forwarding enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - budget alerts rely on the worker's scheduled sweep")
	}

	var mailer *notify.Mailer
	if cfg.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser, Password: cfg.SMTPPassword, From: cfg.SMTPFrom,
		}, repo, repo)
		mailer.Attach(bus)
		logger.Info("Invite e-mails enabled", "smtp_host", cfg.SMTPHost)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), apphttp.Options{
		Ready:  repo.Ping,
		Logger: logger.WithComponent(log.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if mailer != nil {
			mailer.Wait()
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting hisab server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
