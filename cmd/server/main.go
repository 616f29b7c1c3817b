package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/app"
	"github.com/mamadbah2/agrimatch/internal/config"
	"github.com/mamadbah2/agrimatch/internal/scheduler"
	"github.com/mamadbah2/agrimatch/internal/server/handlers"
	"github.com/mamadbah2/agrimatch/internal/server/router"
	"github.com/mamadbah2/agrimatch/internal/watcher"
	"github.com/mamadbah2/agrimatch/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init matching engine", zap.Error(err))
	}
	defer func() {
		if err := engine.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	sched, err := scheduler.NewScheduler(scheduler.Options{
		SweepSchedule:    cfg.Matching.SweepSchedule,
		StaleAfter:       cfg.Matching.StaleAfter,
		SnapshotSchedule: cfg.Reporting.CronSchedule,
		Timezone:         cfg.Reporting.Timezone,
		Region:           cfg.Matching.DefaultRegion,
	}, engine.Repo, engine.Process, engine.Reporting, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	watchDone := make(chan struct{})
	if cfg.Matching.WatchEnabled && engine.Repo.SupportsChangeStreams() {
		source := watcher.SourceFunc(func(ctx context.Context, token bson.Raw) (watcher.Stream, error) {
			stream, err := engine.Repo.WatchPending(ctx, token)
			if err != nil {
				return nil, err
			}
			return stream, nil
		})
		w := watcher.New(source, engine.Process, cfg.Matching.Concurrency, baseLogger.Named("watcher"))
		go func() {
			defer close(watchDone)
			_ = w.Run(ctx)
		}()
	} else {
		close(watchDone)
		baseLogger.Warn("change stream trigger disabled, relying on the stale sweep",
			zap.Bool("watch_enabled", cfg.Matching.WatchEnabled),
			zap.Bool("change_streams", engine.Repo.SupportsChangeStreams()))
	}

	h := router.Handlers{
		Batches: handlers.NewBatchHandler(engine.Batches, baseLogger.Named("handlers.batches")),
		Impact:  handlers.NewImpactHandler(engine.Reporting, cfg.Matching.DefaultRegion, baseLogger.Named("handlers.impact")),
	}
	if engine.Messaging != nil {
		h.Messages = handlers.NewMessageHandler(engine.Messaging, baseLogger.Named("handlers.messages"))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.New(h, baseLogger.Named("router")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}

	// In-flight runs finish their writes under their own reserve.
	<-watchDone
}
