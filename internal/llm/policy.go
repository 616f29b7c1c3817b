// Package llm obtains matching decisions from generative models. It owns the
// retry/fallback policy across an ordered model list and the routing of model
// identifiers to provider clients.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/retry"
	"github.com/mamadbah2/agrimatch/pkg/clients/throttle"
)

// Request carries the prompt and generation controls for one completion.
type Request struct {
	Prompt      string
	Temperature float64
	TopK        int
	TopP        float64
	MaxTokens   int
	JSON        bool
}

// Generator produces raw completion text for a model identifier.
type Generator interface {
	Generate(ctx context.Context, model string, req Request) (string, error)
}

// Config tunes the invocation policy.
type Config struct {
	MaxAttempts int
	Backoff     retry.Backoff
	CallTimeout time.Duration
}

// Result is a successful invocation.
type Result struct {
	Model       string
	Text        string
	Attempts    []models.Attempt
	ModelsTried []string
}

// ExhaustedError is returned when no model produced an accepted response.
type ExhaustedError struct {
	AllQuota bool
	Deadline bool
	Attempts []models.Attempt
	Models   []string
}

func (e *ExhaustedError) Error() string {
	kind := "interrupted"
	switch {
	case e.AllQuota:
		kind = "quota-only"
	case e.hadHard():
		kind = "hard failure"
	}
	msg := fmt.Sprintf("all models exhausted (%s) after %d attempts across [%s]", kind, len(e.Attempts), strings.Join(e.Models, ", "))
	if e.Deadline {
		msg += ": deadline reached"
	}
	if n := len(e.Attempts); n > 0 && e.Attempts[n-1].Message != "" {
		msg += ": last error: " + e.Attempts[n-1].Message
	}
	return msg
}

func (e *ExhaustedError) hadHard() bool {
	for _, a := range e.Attempts {
		if Outcome(a.Outcome) == OutcomeHard {
			return true
		}
	}
	return false
}

// AsExhausted unwraps an ExhaustedError.
func AsExhausted(err error) (*ExhaustedError, bool) {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// Reduce classifies an attempt log: it is quota-only when at least one attempt hit a
// quota limit and none failed hard. Cancelled attempts do not count either way.
func Reduce(attempts []models.Attempt) bool {
	sawQuota := false
	for _, a := range attempts {
		switch Outcome(a.Outcome) {
		case OutcomeHard:
			return false
		case OutcomeQuota:
			sawQuota = true
		}
	}
	return sawQuota
}

// Policy retries quota failures per model with backoff and falls through the model list.
type Policy struct {
	gen    Generator
	cfg    Config
	sleep  retry.Sleeper
	now    func() time.Time
	logger *zap.Logger
}

// NewPolicy wires a policy around a generator.
func NewPolicy(gen Generator, cfg Config, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	cfg.Backoff = cfg.Backoff.Normalize()

	return &Policy{
		gen:    gen,
		cfg:    cfg,
		sleep:  retry.Sleep,
		now:    time.Now,
		logger: logger,
	}
}

// WithSleeper replaces the backoff sleeper.
func (p *Policy) WithSleeper(s retry.Sleeper) *Policy {
	p.sleep = s
	return p
}

// Invoke walks modelIDs in order. accept validates the raw text; a rejection counts as a
// hard failure for that model. Backoff only happens between retries of the same model
// after a quota failure, and is skipped entirely when it would overrun ctx's deadline.
func (p *Policy) Invoke(ctx context.Context, modelIDs []string, req Request, accept func(text string) error) (Result, error) {
	var (
		attempts []models.Attempt
		tried    []string
		deadline bool
	)

models:
	for _, model := range modelIDs {
		if ctx.Err() != nil {
			deadline = true
			break
		}
		tried = append(tried, model)

		for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
			rec, text := p.call(ctx, model, attempt, req, accept)
			attempts = append(attempts, rec)

			switch Outcome(rec.Outcome) {
			case OutcomeSuccess:
				p.logger.Info("model decision accepted", zap.String("model", model), zap.Int("attempt", attempt))
				return Result{Model: model, Text: text, Attempts: attempts, ModelsTried: tried}, nil
			case OutcomeCancelled:
				deadline = true
				break models
			case OutcomeHard:
				p.logger.Warn("model attempt failed hard, moving to next model",
					zap.String("model", model), zap.Int("attempt", attempt), zap.String("error", rec.Message))
				continue models
			}

			if ctx.Err() != nil {
				deadline = true
				break models
			}
			if attempt == p.cfg.MaxAttempts {
				p.logger.Warn("model quota retries exhausted", zap.String("model", model), zap.Int("attempts", attempt))
				break
			}

			delay := p.cfg.Backoff.Delay(attempt)
			if dl, ok := ctx.Deadline(); ok && p.now().Add(delay).After(dl) {
				p.logger.Warn("backoff would overrun deadline, abandoning retries", zap.String("model", model), zap.Duration("delay", delay))
				deadline = true
				break models
			}
			p.logger.Info("model quota limited, backing off",
				zap.String("model", model), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if err := p.sleep(ctx, delay); err != nil {
				deadline = true
				break models
			}
		}
	}

	return Result{}, &ExhaustedError{
		AllQuota: Reduce(attempts),
		Deadline: deadline,
		Attempts: attempts,
		Models:   tried,
	}
}

func (p *Policy) call(ctx context.Context, model string, attempt int, req Request, accept func(string) error) (models.Attempt, string) {
	start := p.now()
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	text, err := p.gen.Generate(callCtx, model, req)
	cancel()

	rec := models.Attempt{
		Model:     model,
		Attempt:   attempt,
		StartedAt: start,
		Duration:  p.now().Sub(start).Seconds(),
	}

	switch {
	case err != nil && ctx.Err() != nil && interrupted(err):
		rec.Outcome = string(OutcomeCancelled)
		rec.Message = err.Error()
	case err != nil:
		rec.Outcome = string(Classify(err))
		rec.Quota = rec.Outcome == string(OutcomeQuota)
		rec.Message = err.Error()
	case accept != nil:
		if verr := accept(text); verr != nil {
			rec.Outcome = string(OutcomeHard)
			rec.Message = verr.Error()
			break
		}
		fallthrough
	default:
		rec.Outcome = string(OutcomeSuccess)
		rec.Success = true
	}
	return rec, text
}

// interrupted reports whether err is the caller's context ending rather than a provider
// answer that happened to arrive as the context closed.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, throttle.ErrWait)
}
