package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/faceclient"
	"faceattend/internal/frame"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logger"
	"faceattend/internal/queue"
	"faceattend/internal/session"
	"faceattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log, "api")

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		slog.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App) error {
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
	slog.Info("store opened", "backend", cfg.StoreBackend)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == config.QueueRedis {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	} else {
		mem := queue.NewInMemory(64)
		q = mem
		// Without a shared queue there is no separate worker process.
		go func() {
			_ = queue.HandleCheckIns(ctx, mem, func(_ context.Context, c queue.CheckIn) error {
				slog.Info("check-in confirmed", "record_id", c.RecordID, "user_id", c.UserID, "date", c.Date)
				return nil
			})
		}()
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if err := face.Load(ctx); err != nil {
		// Sessions refuse to start until the process is restarted.
		slog.Error("face model unavailable", "url", cfg.FaceServiceURL, "err", err)
	} else {
		slog.Info("face model ready", "skip", cfg.FaceSkip)
	}

	users := enrollment.NewService(repos.Users, face, cfg.MaxFrameDim)
	ledger := attendance.NewLedger(repos.Attendance, loc)
	frames := frame.NewBuffer(cfg.FrameMaxAge)
	sess := session.NewController(face, users, ledger, frames, session.Config{
		PresenceInterval: cfg.PresenceInterval,
		MatchInterval:    cfg.MatchInterval,
		Threshold:        cfg.MatchThreshold,
	})
	defer sess.Close()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	go queue.RelayCheckIns(ctx, q, events)

	h := handler.New(users, ledger, sess, frames, cfg.SummaryDays, cfg.MaxFrameDim)
	h.AddHealthCheck("db", repos.Healthy)
	h.AddHealthCheck("model", func(context.Context) bool { return face.Ready() })
	if cfg.QueueBackend == config.QueueRedis {
		h.AddHealthCheck("redis", redisClient.Healthy)
	}

	var limiter httpmiddleware.Limiter
	if redisClient != nil {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		bucket := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		go sweep(ctx, bucket)
		limiter = bucket
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics", "/api/session/frame"},
	}))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)
	h.Routes(r.Group("/api"), httpmiddleware.RateLimit(limiter))

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/session/events is a long-lived stream.
		IdleTimeout: 60 * time.Second,
	}
	srv.RegisterOnShutdown(h.CloseStreams)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = sess.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server forced shutdown", "err", err)
	}
	slog.Info("server exited")
	return nil
}

func sweep(ctx context.Context, b *httpmiddleware.TokenBucket) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Sweep()
		}
	}
}
