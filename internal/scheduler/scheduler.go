package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

const (
	sweepTimeout    = 10 * time.Minute
	snapshotTimeout = 2 * time.Minute
	defaultLimit    = 100
)

// PendingLister finds batches the trigger path missed.
type PendingLister interface {
	ListStalePending(ctx context.Context, before time.Time, limit int64) ([]models.WasteBatch, error)
}

// Snapshotter records a periodic impact snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, region string) (models.ImpactMetrics, error)
}

// Processor runs one batch through the orchestrator.
type Processor func(ctx context.Context, batchID string) error

// Options configures the jobs.
type Options struct {
	SweepSchedule    string
	StaleAfter       time.Duration
	SweepLimit       int64
	SnapshotSchedule string
	Timezone         string
	Region           string
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	store    PendingLister
	process  Processor
	snapshot Snapshotter
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. Overlapping runs of the same job are skipped.
func NewScheduler(opts Options, store PendingLister, process Processor, snapshot Snapshotter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SweepLimit <= 0 {
		opts.SweepLimit = defaultLimit
	}

	loc := time.UTC
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", opts.Timezone, err)
		}
		loc = l
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	return &Scheduler{
		cron:     c,
		store:    store,
		process:  process,
		snapshot: snapshot,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Start registers the jobs and starts the scheduler. Empty schedules disable their job.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("sweep", s.opts.SweepSchedule),
		zap.String("snapshot", s.opts.SnapshotSchedule))

	if s.opts.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.opts.SweepSchedule, s.runSweep); err != nil {
			return fmt.Errorf("schedule stale sweep %q: %w", s.opts.SweepSchedule, err)
		}
	}
	if s.opts.SnapshotSchedule != "" && s.snapshot != nil {
		if _, err := s.cron.AddFunc(s.opts.SnapshotSchedule, s.runSnapshot); err != nil {
			return fmt.Errorf("schedule impact snapshot %q: %w", s.opts.SnapshotSchedule, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Sweep processes every batch that has been pending longer than StaleAfter and returns how
// many it handed to the processor.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.StaleAfter)
	stale, err := s.store.ListStalePending(ctx, cutoff, s.opts.SweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale batches: %w", err)
	}

	for i, b := range stale {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		if err := s.process(ctx, b.ID); err != nil {
			s.logger.Error("stale batch processing failed", zap.String("batch_id", b.ID), zap.Error(err))
		}
	}
	return len(stale), nil
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("stale sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("stale sweep processed batches", zap.Int("count", n))
	}
}

func (s *Scheduler) runSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if _, err := s.snapshot.Snapshot(ctx, s.opts.Region); err != nil {
		s.logger.Error("impact snapshot failed", zap.String("region", s.opts.Region), zap.Error(err))
	}
}
