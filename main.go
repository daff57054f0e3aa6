package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"eve-market-watch/internal/auth"
	"eve-market-watch/internal/config"
	"eve-market-watch/internal/db"
	"eve-market-watch/internal/esi"
	"eve-market-watch/internal/jobs"
	"eve-market-watch/internal/logger"
)

var version = "dev"

func main() {
	logger.Banner(version)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Config", fmt.Sprintf("Failed to load config: %v", err))
		os.Exit(1)
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("DB", fmt.Sprintf("Failed to open database: %v", err))
		os.Exit(1)
	}
	defer database.Close()

	client := esi.NewClient()
	sso := &auth.SSOConfig{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	tokens := auth.NewTokenProvider(database, sso)

	parser := jobs.NewMarketParser(database, client, tokens)
	checker := jobs.NewWatchChecker(database)
	notifier := jobs.NewNotificationCreater(database)
	reconciler := jobs.NewReconciler(database, client, tokens)

	pipeline := func() {
		logger.Section("Market parse")
		if err := parser.Run(); err != nil {
			logger.Error("Parser", fmt.Sprintf("Run failed: %v", err))
			return
		}
		if err := checker.Run(); err != nil {
			logger.Error("Checker", fmt.Sprintf("Run failed: %v", err))
			return
		}
		if err := notifier.Run(); err != nil {
			logger.Error("Notifier", fmt.Sprintf("Run failed: %v", err))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.ParseSpec, pipeline); err != nil {
		logger.Error("Scheduler", fmt.Sprintf("Bad parse spec %q: %v", cfg.ParseSpec, err))
		os.Exit(1)
	}
	if _, err := c.AddFunc(cfg.ReconcileSpec, func() {
		logger.Section("Reconcile")
		if err := reconciler.Run(); err != nil {
			logger.Error("Reconciler", fmt.Sprintf("Run failed: %v", err))
		}
	}); err != nil {
		logger.Error("Scheduler", fmt.Sprintf("Bad reconcile spec %q: %v", cfg.ReconcileSpec, err))
		os.Exit(1)
	}

	// Outbound mail only works with a configured sender account.
	if cfg.MailCharacterID > 0 && cfg.MailRefreshToken != "" {
		mailSSO := &auth.SSOConfig{ClientID: cfg.MailClientID, ClientSecret: cfg.MailClientSecret}
		mailTokens := auth.NewTokenCache(mailSSO, cfg.MailRefreshToken)
		sender := jobs.NewMailSender(database, client, mailTokens, cfg.MailCharacterID)
		if _, err := c.AddFunc(cfg.MailSpec, func() {
			if err := sender.Run(); err != nil {
				logger.Error("Mailer", fmt.Sprintf("Run failed: %v", err))
			}
		}); err != nil {
			logger.Error("Scheduler", fmt.Sprintf("Bad mail spec %q: %v", cfg.MailSpec, err))
			os.Exit(1)
		}
	} else {
		logger.Warn("Mailer", "No outbound mail account configured, mails will stay queued")
	}

	c.Start()
	defer c.Stop()
	logger.Stats("Parse interval", cfg.ParseSpec)
	logger.Stats("Mail interval", cfg.MailSpec)
	logger.Stats("Reconcile interval", cfg.ReconcileSpec)

	// Populate snapshots right away instead of waiting for the first tick.
	go pipeline()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Main", "Shutting down")
}
