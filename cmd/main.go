package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pressroom/internal/activity"
	"pressroom/internal/bootstrap"
	"pressroom/internal/collab"
	"pressroom/internal/config"
	"pressroom/internal/notify"
	"pressroom/internal/pipeline"
	"pressroom/internal/repository"
	"pressroom/internal/router"
	"pressroom/internal/scheduler"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Repositories ---
	workspaceRepo := repository.NewWorkspaceRepository(db)
	jobRepo := repository.NewJobRepository(db)
	executionRepo := repository.NewExecutionRepository(db)

	// A previous process may have died mid-run; fail those executions and
	// release their guards before the tick loop starts.
	if released, err := jobRepo.RecoverOrphans(time.Now()); err != nil {
		logger.Fatal("Failed to recover orphaned executions", zap.Error(err))
	} else if released > 0 {
		logger.Warn("Recovered orphaned executions from a previous process", zap.Int64("jobs_released", released))
	}

	// --- Collaborator clients ---
	collabCfg := collab.Config{
		ScraperURL:   cfg.Collaborators.ScraperURL,
		GeneratorURL: cfg.Collaborators.GeneratorURL,
		DeliveryURL:  cfg.Collaborators.DeliveryURL,
		APIKey:       cfg.Collaborators.APIKey,
		Timeout:      cfg.Scheduler.ActionTimeout,
	}

	// --- Failure alerts (optional) ---
	notifier, err := notify.NewTelegramNotifier(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID, logger)
	if err != nil {
		logger.Fatal("Failed to create alert notifier", zap.Error(err))
	}
	if notifier == nil {
		logger.Info("Failure alerting disabled (no ALERT_BOT_TOKEN configured)")
	}

	// --- Pipeline runner ---
	runnerDeps := pipeline.Deps{
		Executions: executionRepo,
		Jobs:       jobRepo,
		Scraper:    collab.NewHTTPScraper(collabCfg),
		Generator:  collab.NewHTTPGenerator(collabCfg),
		Sender:     collab.NewHTTPSender(collabCfg),
	}
	if notifier != nil {
		runnerDeps.Notifier = notifier
	}
	runner := pipeline.NewRunner(runnerDeps, cfg.Scheduler.ActionTimeout, logger)

	// --- Activity feed cache ---
	cache, cacheErr := activity.NewCache(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, cfg.Scheduler.ActivityTTL)
	if cacheErr != nil {
		logger.Warn("Redis unavailable for activity cache, using in-memory fallback", zap.Error(cacheErr))
	}
	feed := activity.NewFeed(executionRepo, cache, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	router.Setup(e, router.Deps{
		Workspaces: workspaceRepo,
		Jobs:       jobRepo,
		Executions: executionRepo,
		Runner:     runner,
		Feed:       feed,
		Logger:     logger,
		APIKey:     cfg.API.Key,
	})

	// --- Scheduler ---
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	sched := scheduler.New(scheduler.Config{TickInterval: cfg.Scheduler.TickInterval}, jobRepo, runner, logger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(schedCtx)
	}()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting Pressroom server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop the scheduler first so it drains in-flight executions, then wait
	// for any run-now executions still going.
	stopScheduler()
	<-schedDone
	runner.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, "production")
	if err != nil {
		return err
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		return err
	}
	logger.Info("Schema migration and default seed completed")
	return nil
}
