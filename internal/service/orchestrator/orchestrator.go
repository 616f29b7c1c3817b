// Package orchestrator runs one waste batch end to end: candidate lookup, model or
// heuristic decision, derived metrics, and the paired AIMatch/batch writes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/llm"
	"github.com/mamadbah2/agrimatch/internal/matching"
	"github.com/mamadbah2/agrimatch/internal/retry"
)

const (
	currencyINR      = "INR"
	country          = "India"
	heuristicModel   = "heuristic"
	anonymousFarmer  = "Anonymous Farmer"
	unknownSeason    = "Unknown"
	defaultAgentName = "ECOX Punjab Agent v1.0"
)

// ErrInterrupted is returned when the caller's context ends before a batch could be
// settled. The batch is left pending for a later sweep.
var ErrInterrupted = errors.New("batch processing interrupted")

// Store is the persistence the orchestrator needs.
type Store interface {
	GetBatch(ctx context.Context, id string) (models.WasteBatch, error)
	ListActiveIndustries(ctx context.Context, region string) ([]models.Industry, error)
	FindMatch(ctx context.Context, id string) (models.AIMatch, error)
	CommitMatch(ctx context.Context, m models.AIMatch, outcome models.BatchOutcome) error
	TransitionBatch(ctx context.Context, id string, generation int, outcome models.BatchOutcome) error
}

// Invoker obtains an accepted model response.
type Invoker interface {
	Invoke(ctx context.Context, modelIDs []string, req llm.Request, accept func(text string) error) (llm.Result, error)
}

// Observer is told about every batch the orchestrator settles. match is nil for failures.
// Observers log their own errors; they never affect batch state.
type Observer interface {
	Settled(ctx context.Context, batch models.WasteBatch, match *models.AIMatch)
}

// Config tunes a run.
type Config struct {
	Models []string
	// Request carries the generation controls; the prompt is filled per batch.
	Request       llm.Request
	Budget        time.Duration
	WriteReserve  time.Duration
	WriteAttempts int
	WriteBackoff  retry.Backoff
	DefaultRegion string
	DefaultOrigin models.Location
	AgentName     string
}

// Result describes what a run did.
type Result struct {
	BatchID string
	Status  models.BatchStatus
	MatchID string
	Source  models.DecisionSource
	// Reason is the recorded error for match_failed batches.
	Reason string
	// Skipped is true when the batch was already terminal and nothing was written.
	Skipped bool
}

// Orchestrator processes batches. It is safe for concurrent use; runs share no mutable state.
type Orchestrator struct {
	store     Store
	policy    Invoker
	cfg       Config
	observers []Observer
	now       func() time.Time
	newRunID  func() string
	sleep     retry.Sleeper
	logger    *zap.Logger
}

// New wires an orchestrator.
func New(store Store, policy Invoker, cfg Config, logger *zap.Logger, observers ...Observer) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 110 * time.Second
	}
	if cfg.WriteReserve <= 0 || cfg.WriteReserve >= cfg.Budget {
		cfg.WriteReserve = cfg.Budget / 10
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 3
	}
	if cfg.WriteBackoff == (retry.Backoff{}) {
		cfg.WriteBackoff = retry.Backoff{Initial: 200 * time.Millisecond, Multiplier: 2, Max: 2 * time.Second}
	}
	cfg.WriteBackoff = cfg.WriteBackoff.Normalize()
	if cfg.AgentName == "" {
		cfg.AgentName = defaultAgentName
	}

	return &Orchestrator{
		store:     store,
		policy:    policy,
		cfg:       cfg,
		observers: observers,
		now:       time.Now,
		newRunID:  func() string { return uuid.NewString() },
		sleep:     retry.Sleep,
		logger:    logger,
	}
}

// Process handles one batch. Replays for terminal batches are no-ops. An error is returned
// only when the outcome could not be persisted; decision failures are recorded on the batch
// and reported through Result.
func (o *Orchestrator) Process(ctx context.Context, batchID string) (Result, error) {
	started := o.now()
	logger := o.logger.With(zap.String("batch_id", batchID))

	decideCtx, cancel := context.WithTimeout(ctx, o.cfg.Budget-o.cfg.WriteReserve)
	defer cancel()

	batch, err := o.store.GetBatch(decideCtx, batchID)
	if err != nil {
		return Result{BatchID: batchID}, fmt.Errorf("load batch: %w", err)
	}
	if batch.Status.Terminal() {
		logger.Info("batch already settled, skipping", zap.String("status", string(batch.Status)))
		return Result{
			BatchID: batchID,
			Status:  batch.Status,
			MatchID: batch.MatchID,
			Source:  models.DecisionSource(batch.DecisionSource),
			Skipped: true,
		}, nil
	}
	logger = logger.With(zap.Int("generation", batch.Generation))

	matchID := models.MatchID(batch.ID, batch.Generation)
	existing, err := o.store.FindMatch(decideCtx, matchID)
	switch {
	case err == nil:
		logger.Info("decision already recorded, completing transition", zap.String("match_id", matchID))
		return o.complete(ctx, batch, existing, logger)
	case !errors.Is(err, models.ErrMatchNotFound):
		return Result{BatchID: batchID}, fmt.Errorf("check recorded match: %w", err)
	}

	region := o.region(batch)
	industries, err := o.store.ListActiveIndustries(decideCtx, region)
	if err != nil {
		if ctx.Err() != nil {
			return o.leavePending(ctx, batch, logger)
		}
		return o.fail(ctx, batch, fmt.Errorf("load industries: %w", err), logger)
	}

	sc, err := matching.NewContext(batch, region, o.cfg.DefaultOrigin, industries)
	if err != nil {
		logger.Warn("no eligible industries", zap.String("region", region))
		return o.fail(ctx, batch, err, logger)
	}

	d, err := o.decide(decideCtx, sc, logger)
	// A shutdown mid-run says nothing about the batch; only a model decision already
	// in hand is worth recording.
	if ctx.Err() != nil && (err != nil || d.source != models.SourceModel) {
		return o.leavePending(ctx, batch, logger)
	}
	if err != nil {
		return o.fail(ctx, batch, err, logger)
	}

	m := o.buildMatch(batch, sc, d, started)
	return o.complete(ctx, batch, m, logger)
}

func (o *Orchestrator) leavePending(ctx context.Context, batch models.WasteBatch, logger *zap.Logger) (Result, error) {
	logger.Warn("run interrupted, leaving batch pending", zap.Error(ctx.Err()))
	return Result{BatchID: batch.ID, Status: batch.Status},
		fmt.Errorf("batch %s: %w: %w", batch.ID, ErrInterrupted, ctx.Err())
}

type decision struct {
	models.MatchDecision
	source      models.DecisionSource
	model       string
	attempts    []models.Attempt
	modelsTried []string
}

func (o *Orchestrator) decide(ctx context.Context, sc matching.ScoringContext, logger *zap.Logger) (decision, error) {
	scores, err := matching.Score(sc)
	if err != nil {
		return decision{}, err
	}
	prompt, err := matching.BuildPrompt(sc, scores)
	if err != nil {
		return decision{}, fmt.Errorf("build prompt: %w", err)
	}

	req := o.cfg.Request
	req.Prompt = prompt

	var accepted models.MatchDecision
	res, err := o.policy.Invoke(ctx, o.cfg.Models, req, func(text string) error {
		parsed, err := matching.ParseDecision(text)
		if err != nil {
			return err
		}
		bound, err := matching.Bind(sc, parsed)
		if err != nil {
			return err
		}
		accepted = bound
		return nil
	})
	if err == nil {
		return decision{
			MatchDecision: accepted,
			source:        models.SourceModel,
			model:         res.Model,
			attempts:      res.Attempts,
			modelsTried:   res.ModelsTried,
		}, nil
	}

	ex, ok := llm.AsExhausted(err)
	if !ok {
		return decision{}, fmt.Errorf("invoke models: %w", err)
	}
	if !ex.AllQuota {
		return decision{}, fmt.Errorf("no usable model decision: %w", ex)
	}

	logger.Warn("models quota exhausted, using heuristic decision",
		zap.Strings("models", ex.Models), zap.Int("attempts", len(ex.Attempts)), zap.Bool("deadline", ex.Deadline))
	h, err := matching.Decide(sc)
	if err != nil {
		return decision{}, err
	}
	return decision{
		MatchDecision: h,
		source:        models.SourceHeuristic,
		model:         heuristicModel,
		attempts:      ex.Attempts,
		modelsTried:   ex.Models,
	}, nil
}

func (o *Orchestrator) buildMatch(batch models.WasteBatch, sc matching.ScoringContext, d decision, started time.Time) models.AIMatch {
	qty := batch.QuantityKg
	co2, pm25 := matching.Impact(qty)
	now := o.now()

	farmerName := batch.FarmerName
	if farmerName == "" {
		farmerName = anonymousFarmer
	}
	season := batch.Season
	if season == "" {
		season = unknownSeason
	}

	return models.AIMatch{
		ID:                  models.MatchID(batch.ID, batch.Generation),
		RunID:               o.newRunID(),
		WasteBatchID:        batch.ID,
		Generation:          batch.Generation,
		FarmerID:            batch.FarmerID,
		FarmerName:          farmerName,
		IndustryID:          d.IndustryID,
		IndustryName:        d.IndustryName,
		PricePerKg:          d.PricePerKg,
		TotalValue:          d.PricePerKg * qty,
		Currency:            currencyINR,
		Reasoning:           d.Reasoning,
		MatchScore:          d.MatchScore,
		Factors:             d.Factors,
		LogisticsNote:       d.LogisticsNote,
		EnvironmentalImpact: d.EnvironmentalImpact,
		DistanceKm:          d.DistanceKm,
		DecisionTimeSeconds: math.Round(now.Sub(started).Seconds()*100) / 100,
		CO2SavedTons:        co2,
		PM25PreventedKg:     pm25,
		Region:              sc.Submission.Region,
		District:            batch.Location.District,
		State:               sc.Submission.Region,
		Country:             country,
		Status:              models.MatchAutonomousPending,
		AgentName:           o.cfg.AgentName,
		AIModel:             d.model,
		DecisionSource:      d.source,
		ModelsTried:         d.modelsTried,
		Attempts:            d.attempts,
		WasteType:           batch.WasteType,
		WasteQuantityKg:     qty,
		WasteLocation:       sc.Submission.Location,
		WastePhotoURL:       batch.PhotoURL,
		WasteSeason:         season,
		CreatedAt:           now,
	}
}

// complete records m (unless it already exists) and settles the batch from it.
func (o *Orchestrator) complete(ctx context.Context, batch models.WasteBatch, m models.AIMatch, logger *zap.Logger) (Result, error) {
	writeCtx, cancel := o.writeContext(ctx)
	defer cancel()

	err := retry.Do(writeCtx, o.cfg.WriteAttempts, o.cfg.WriteBackoff, o.sleep, func(ctx context.Context) error {
		err := o.store.CommitMatch(ctx, m, models.MatchedOutcome(m, o.now()))
		if errors.Is(err, models.ErrDuplicateMatch) {
			recorded, ferr := o.store.FindMatch(ctx, m.ID)
			if ferr != nil {
				return ferr
			}
			m = recorded
			err = o.store.TransitionBatch(ctx, batch.ID, batch.Generation, models.MatchedOutcome(m, o.now()))
		}
		return permanentIfSettled(err)
	})

	switch {
	case err == nil:
	case errors.Is(err, models.ErrStatusConflict):
		logger.Info("batch settled concurrently", zap.String("match_id", m.ID))
		return o.current(ctx, batch.ID)
	default:
		logger.Error("failed to persist decision", zap.String("match_id", m.ID), zap.Error(err))
		res, ferr := o.fail(ctx, batch, fmt.Errorf("persist decision: %w", err), logger)
		if ferr != nil {
			return res, ferr
		}
		return res, fmt.Errorf("persist decision %s: %w", m.ID, err)
	}

	outcome := models.MatchedOutcome(m, o.now())
	outcome.Apply(&batch)
	logger.Info("batch matched",
		zap.String("match_id", m.ID),
		zap.String("status", string(outcome.Status)),
		zap.String("industry_id", m.IndustryID),
		zap.String("source", string(m.DecisionSource)),
		zap.Float64("total_value", m.TotalValue))
	o.notify(ctx, batch, &m)

	return Result{BatchID: batch.ID, Status: outcome.Status, MatchID: m.ID, Source: m.DecisionSource}, nil
}

// fail moves the batch to match_failed with cause recorded.
func (o *Orchestrator) fail(ctx context.Context, batch models.WasteBatch, cause error, logger *zap.Logger) (Result, error) {
	outcome := models.FailedOutcome(cause, o.now())

	writeCtx, cancel := o.writeContext(ctx)
	defer cancel()

	err := retry.Do(writeCtx, o.cfg.WriteAttempts, o.cfg.WriteBackoff, o.sleep, func(ctx context.Context) error {
		return permanentIfSettled(o.store.TransitionBatch(ctx, batch.ID, batch.Generation, outcome))
	})
	switch {
	case err == nil:
	case errors.Is(err, models.ErrStatusConflict):
		logger.Info("batch settled concurrently")
		return o.current(ctx, batch.ID)
	default:
		logger.Error("failed to record batch failure", zap.NamedError("cause", cause), zap.Error(err))
		return Result{BatchID: batch.ID}, fmt.Errorf("record failure for batch %s: %w", batch.ID, err)
	}

	outcome.Apply(&batch)
	logger.Warn("batch match failed", zap.String("reason", outcome.Error))
	o.notify(ctx, batch, nil)

	return Result{BatchID: batch.ID, Status: models.StatusMatchFailed, Reason: outcome.Error}, nil
}

// current reports the state another run left the batch in.
func (o *Orchestrator) current(ctx context.Context, batchID string) (Result, error) {
	readCtx, cancel := o.writeContext(ctx)
	defer cancel()

	b, err := o.store.GetBatch(readCtx, batchID)
	if err != nil {
		return Result{BatchID: batchID}, fmt.Errorf("reload batch: %w", err)
	}
	return Result{
		BatchID: batchID,
		Status:  b.Status,
		MatchID: b.MatchID,
		Source:  models.DecisionSource(b.DecisionSource),
		Reason:  b.Error,
		Skipped: true,
	}, nil
}

func (o *Orchestrator) notify(ctx context.Context, batch models.WasteBatch, m *models.AIMatch) {
	if len(o.observers) == 0 {
		return
	}
	notifyCtx, cancel := o.writeContext(ctx)
	defer cancel()
	for _, obs := range o.observers {
		obs.Settled(notifyCtx, batch, m)
	}
}

// writeContext detaches from the caller's cancellation so started writes can finish.
func (o *Orchestrator) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.WriteReserve)
}

func (o *Orchestrator) region(b models.WasteBatch) string {
	if state := strings.TrimSpace(b.Location.State); state != "" {
		return state
	}
	return o.cfg.DefaultRegion
}

func permanentIfSettled(err error) error {
	if errors.Is(err, models.ErrStatusConflict) || errors.Is(err, models.ErrBatchNotFound) || errors.Is(err, models.ErrInvalidTransition) {
		return retry.Permanent(err)
	}
	return err
}
