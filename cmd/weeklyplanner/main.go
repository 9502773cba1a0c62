package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"weekly-planner/internal/bot"
	"weekly-planner/internal/config"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := newLogger(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	weeklyRepo := repository.NewWeeklyTaskRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	weeklySvc := service.NewWeeklyTaskService(weeklyRepo, taskRepo)
	summarySvc := service.NewSummaryService(taskRepo)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, weeklySvc, summarySvc, logger.With().Str("component", "bot").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("bot")
	}

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleDaily(cfg.GenerateTime, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := telegramBot.GenerateForAllUsers(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduled generation")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule generation")
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info().Str("generate_at", cfg.GenerateTime).Msg("weekly planner bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("bot stopped with error")
	}
	logger.Info().Msg("shutdown complete")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
