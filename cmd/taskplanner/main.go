package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"task-planner/internal/bot"
	"task-planner/internal/clock"
	"task-planner/internal/config"
	"task-planner/internal/logging"
	"task-planner/internal/metrics"
	"task-planner/internal/reminder"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "task planner: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	loc := cfg.Location()
	clk := clock.System(loc)
	m := metrics.New()

	scheduler := service.NewSchedulerService(loc, logger)
	alarm := service.NewCronAlarm(scheduler, cfg.RemindersEnabled, logger)
	reminders := reminder.NewScheduler(alarm, clk, logger).WithObserver(m)

	taskSvc := service.NewTaskService(taskRepo, reminders, clk, logger)
	statsSvc := service.NewStatsService(taskRepo, clk)
	reminderSvc := service.NewReminderService(taskRepo)

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Deps{
		Users:  userRepo,
		Tasks:  taskSvc,
		Stats:  statsSvc,
		Digest: reminderSvc,
		NewTracker: func() *service.Tracker {
			return service.NewTracker(taskRepo, clk, cfg.TickInterval, logger).WithObserver(m)
		},
		Config:  &cfg,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	alarm.SetDeliverer(telegramBot.DeliverReminder)

	if _, err := scheduler.ScheduleDaily(cfg.DigestAt, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("daily digest", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule daily digest: %w", err)
	}
	if _, err := scheduler.ScheduleEvery(time.Minute, func() { m.RemindersPending(alarm.Armed()) }); err != nil {
		return fmt.Errorf("schedule reminder gauge: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	armed, err := taskSvc.RearmPending(ctx)
	switch {
	case errors.Is(err, reminder.ErrPermissionNeeded):
		logger.Info("reminders disabled, nothing re-armed")
	case err != nil:
		logger.Warn("re-arm reminders", zap.Error(err))
	default:
		logger.Info("reminders re-armed", zap.Int("count", armed))
	}

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, m, logger)
		server.Start()
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				logger.Warn("metrics shutdown", zap.Error(err))
			}
		}()
	}

	logger.Info("task planner bot started", zap.String("timezone", loc.String()))
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped with error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
