// Package watcher turns waste batch change events into orchestrator runs.
package watcher

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/agrimatch/internal/retry"
)

const defaultReopenDelay = 5 * time.Second

// Stream yields ids of batches that entered pending.
type Stream interface {
	Next(ctx context.Context) bool
	BatchID() (string, error)
	ResumeToken() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// Source opens a stream, resuming after resumeToken when it is non-nil.
type Source interface {
	WatchPending(ctx context.Context, resumeToken bson.Raw) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, resumeToken bson.Raw) (Stream, error)

func (f SourceFunc) WatchPending(ctx context.Context, resumeToken bson.Raw) (Stream, error) {
	return f(ctx, resumeToken)
}

// Handler processes one batch.
type Handler func(ctx context.Context, batchID string) error

// Watcher dispatches one handler call per event with bounded concurrency.
type Watcher struct {
	source      Source
	handle      Handler
	concurrency int
	reopenDelay time.Duration
	logger      *zap.Logger
}

// New builds a watcher. concurrency below 1 means 1.
func New(source Source, handle Handler, concurrency int, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Watcher{
		source:      source,
		handle:      handle,
		concurrency: concurrency,
		reopenDelay: defaultReopenDelay,
		logger:      logger,
	}
}

// Run consumes events until ctx is cancelled, reopening the stream after errors. It waits for
// in-flight handlers before returning.
func (w *Watcher) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(w.concurrency)

	var token bson.Raw
	for ctx.Err() == nil {
		stream, err := w.source.WatchPending(ctx, token)
		if err != nil {
			w.logger.Warn("failed to open change stream", zap.Error(err), zap.Duration("retry_in", w.reopenDelay))
			if retry.Sleep(ctx, w.reopenDelay) != nil {
				break
			}
			continue
		}
		w.logger.Info("watching for pending batches", zap.Bool("resumed", token != nil))

		token = w.consume(ctx, stream, &g, token)

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			w.logger.Warn("change stream interrupted", zap.Error(err), zap.Duration("retry_in", w.reopenDelay))
		}
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_ = stream.Close(closeCtx)
		cancel()

		if retry.Sleep(ctx, w.reopenDelay) != nil {
			break
		}
	}

	_ = g.Wait()
	w.logger.Info("watcher stopped")
	return nil
}

func (w *Watcher) consume(ctx context.Context, stream Stream, g *errgroup.Group, token bson.Raw) bson.Raw {
	for stream.Next(ctx) {
		if t := stream.ResumeToken(); t != nil {
			token = t
		}
		id, err := stream.BatchID()
		if err != nil {
			w.logger.Warn("skipping undecodable change event", zap.Error(err))
			continue
		}

		g.Go(func() error {
			if err := w.handle(ctx, id); err != nil {
				w.logger.Error("batch processing failed", zap.String("batch_id", id), zap.Error(err))
			}
			return nil
		})
	}
	return token
}
