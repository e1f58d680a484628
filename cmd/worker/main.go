package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/logger"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes check-in notifications and confirms them against the ledger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log, "worker")

	if err := run(cfg); err != nil {
		slog.Error("worker failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.App) error {
	if cfg.QueueBackend != config.QueueRedis {
		return errors.New("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
	}
	if cfg.StoreBackend == config.StoreMemory {
		return errors.New("worker cannot share a memory store with the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.SQLitePath
	if cfg.StoreBackend == config.StorePostgres {
		dsn = cfg.DatabaseURL
	}
	repos, err := store.Open(ctx, cfg.StoreBackend, dsn)
	if err != nil {
		return err
	}
	defer repos.Close()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	if err := redisClient.WaitReady(ctx, 2*time.Second); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	slog.Info("worker started, waiting for check-ins")
	err = queue.HandleCheckIns(ctx, q, func(ctx context.Context, c queue.CheckIn) error {
		return confirm(ctx, repos.Attendance, c)
	})
	slog.Info("worker stopped")
	return err
}

// confirm verifies that a notified check-in was persisted as announced.
func confirm(ctx context.Context, repo attendance.Repository, c queue.CheckIn) error {
	rec, err := repo.Get(ctx, c.RecordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", c.RecordID, err)
	}
	if rec.UserID != c.UserID || rec.Date != c.Date {
		return fmt.Errorf("record %s does not match notification", c.RecordID)
	}
	slog.Info("check-in confirmed",
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"user_name", rec.UserName,
		"date", rec.Date,
		"check_in_time", rec.CheckInTime,
	)
	return nil
}
