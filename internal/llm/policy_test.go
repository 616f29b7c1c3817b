package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/api/googleapi"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/retry"
)

type scriptedReply struct {
	text string
	err  error
}

// scriptedGenerator replays per-model replies and records the call sequence.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string][]scriptedReply
	calls   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, model string, _ Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, model)
	queue := g.replies[model]
	if len(queue) == 0 {
		return "", errors.New("unexpected call to " + model)
	}
	reply := queue[0]
	if len(queue) > 1 {
		g.replies[model] = queue[1:]
	}
	return reply.text, reply.err
}

type sleepRecorder struct {
	sleeps []time.Duration
	// callsAtSleep records how many model calls had happened when each sleep started.
	callsAtSleep []int
	gen          *scriptedGenerator
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	s.callsAtSleep = append(s.callsAtSleep, len(s.gen.calls))
	return nil
}

var (
	quotaErr = &googleapi.Error{Code: 429, Message: "Resource has been exhausted (e.g. check quota)."}
	hardErr  = errors.New("API key not valid. Please pass a valid API key.")
)

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     retry.Backoff{Initial: time.Second, Multiplier: 2, Max: 3 * time.Second},
		CallTimeout: time.Second,
	}
}

func newTestPolicy(t *testing.T, gen *scriptedGenerator) (*Policy, *sleepRecorder) {
	rec := &sleepRecorder{gen: gen}
	p := NewPolicy(gen, testConfig(), zaptest.NewLogger(t)).WithSleeper(rec.sleep)
	return p, rec
}

func TestInvokeFirstAttemptSucceeds(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{
		"gemini-2.0-flash": {{text: `{"ok":true}`}},
	}}
	p, rec := newTestPolicy(t, gen)

	res, err := p.Invoke(context.Background(), []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Request{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "gemini-2.0-flash" || res.Text != `{"ok":true}` {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Attempts) != 1 || !res.Attempts[0].Success {
		t.Errorf("expected one successful attempt, got %+v", res.Attempts)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("expected no backoff, got %v", rec.sleeps)
	}
}

func TestInvokeQuotaOnlyExhaustion(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{
		"gemini-2.0-flash": {{err: quotaErr}},
		"gemini-1.5-flash": {{err: quotaErr}},
	}}
	p, rec := newTestPolicy(t, gen)

	_, err := p.Invoke(context.Background(), []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Request{}, nil)
	ex, ok := AsExhausted(err)
	if !ok {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !ex.AllQuota {
		t.Error("expected quota-only exhaustion")
	}
	if ex.Deadline {
		t.Error("did not expect deadline flag")
	}
	if len(ex.Attempts) != 6 {
		t.Fatalf("expected 3 attempts per model, got %d", len(ex.Attempts))
	}
	if len(ex.Models) != 2 {
		t.Errorf("expected both models tried, got %v", ex.Models)
	}
	for i, a := range ex.Attempts {
		if !a.Quota || a.Success || a.Outcome != string(OutcomeQuota) {
			t.Errorf("attempt %d: unexpected record %+v", i, a)
		}
	}

	expected := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}
	if len(rec.sleeps) != len(expected) {
		t.Fatalf("expected sleeps %v, got %v", expected, rec.sleeps)
	}
	for i := range expected {
		if rec.sleeps[i] != expected[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, expected[i], rec.sleeps[i])
		}
	}
	// No sleep may separate the last try of the first model from the first try of the next.
	for _, calls := range rec.callsAtSleep {
		if calls == 3 {
			t.Errorf("backoff happened between models")
		}
	}
}

func TestInvokeHardErrorSkipsToNextModelWithoutDelay(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{
		"gemini-2.0-flash":        {{err: hardErr}},
		"claude-3-haiku-20240307": {{text: "{}"}},
	}}
	p, rec := newTestPolicy(t, gen)

	res, err := p.Invoke(context.Background(), []string{"gemini-2.0-flash", "claude-3-haiku-20240307"}, Request{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "claude-3-haiku-20240307" {
		t.Errorf("expected fallback model, got %s", res.Model)
	}
	if len(gen.calls) != 2 || gen.calls[0] != "gemini-2.0-flash" {
		t.Errorf("expected exactly one call to the primary, got %v", gen.calls)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("expected no backoff after hard error, got %v", rec.sleeps)
	}
	if res.Attempts[0].Outcome != string(OutcomeHard) || res.Attempts[0].Quota {
		t.Errorf("unexpected first attempt %+v", res.Attempts[0])
	}
	if len(res.ModelsTried) != 2 {
		t.Errorf("expected two models tried, got %v", res.ModelsTried)
	}
}

func TestInvokeMixedFailuresAreNotQuotaOnly(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{
		"gemini-2.0-flash": {{err: quotaErr}},
		"gemini-1.5-flash": {{err: hardErr}},
	}}
	p, _ := newTestPolicy(t, gen)

	_, err := p.Invoke(context.Background(), []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Request{}, nil)
	ex, ok := AsExhausted(err)
	if !ok {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.AllQuota {
		t.Error("hard failure must prevent quota-only classification")
	}
	if len(ex.Attempts) != 4 {
		t.Errorf("expected 3 quota attempts and 1 hard attempt, got %d", len(ex.Attempts))
	}
}

func TestInvokeRejectedOutputIsHardFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{
		"gemini-2.0-flash": {{text: `{"matchScore":150}`}},
		"gemini-1.5-flash": {{text: `{"matchScore":150}`}},
	}}
	p, rec := newTestPolicy(t, gen)

	reject := func(string) error { return errors.New("matchScore 150 outside [0,100]") }
	_, err := p.Invoke(context.Background(), []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Request{}, reject)

	ex, ok := AsExhausted(err)
	if !ok {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.AllQuota {
		t.Error("validation failures must not count as quota exhaustion")
	}
	if len(gen.calls) != 2 {
		t.Errorf("expected one call per model, got %v", gen.calls)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("expected no backoff, got %v", rec.sleeps)
	}
}

func TestInvokeStopsWhenBackoffWouldOverrunDeadline(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{
		"gemini-2.0-flash": {{err: quotaErr}},
		"gemini-1.5-flash": {{text: "{}"}},
	}}
	cfg := testConfig()
	cfg.Backoff = retry.Backoff{Initial: time.Hour, Multiplier: 2, Max: time.Hour}
	rec := &sleepRecorder{gen: gen}
	p := NewPolicy(gen, cfg, zaptest.NewLogger(t)).WithSleeper(rec.sleep)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := p.Invoke(ctx, []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Request{}, nil)
	ex, ok := AsExhausted(err)
	if !ok {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !ex.Deadline || !ex.AllQuota {
		t.Errorf("expected deadline quota-only exhaustion, got %+v", ex)
	}
	if len(ex.Attempts) != 1 || len(rec.sleeps) != 0 {
		t.Errorf("expected a single attempt and no sleep, got %d attempts and %v", len(ex.Attempts), rec.sleeps)
	}
}

func TestInvokeCancelledContext(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string][]scriptedReply{}}
	p, _ := newTestPolicy(t, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Invoke(ctx, []string{"gemini-2.0-flash"}, Request{}, nil)
	ex, ok := AsExhausted(err)
	if !ok {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !ex.Deadline || ex.AllQuota || len(ex.Attempts) != 0 {
		t.Errorf("unexpected exhaustion %+v", ex)
	}
	if len(gen.calls) != 0 {
		t.Errorf("expected no model calls, got %v", gen.calls)
	}
}

// cancellingGenerator ends the caller's context while the provider call is in flight
// and still returns the provider's error.
type cancellingGenerator struct {
	cancel context.CancelFunc
	err    error
	calls  int
}

func (g *cancellingGenerator) Generate(_ context.Context, _ string, _ Request) (string, error) {
	g.calls++
	g.cancel()
	return "", g.err
}

func TestInvokeParentCancelledMidCallKeepsProviderOutcome(t *testing.T) {
	testCases := []struct {
		name         string
		err          error
		expected     Outcome
		allQuota     bool
		expectedKind string
	}{
		{name: "quota reply", err: quotaErr, expected: OutcomeQuota, allQuota: true, expectedKind: "quota-only"},
		{name: "hard reply", err: hardErr, expected: OutcomeHard, allQuota: false, expectedKind: "hard failure"},
		{name: "context error", err: context.Canceled, expected: OutcomeCancelled, allQuota: false, expectedKind: "interrupted"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			gen := &cancellingGenerator{cancel: cancel, err: tc.err}
			rec := &sleepRecorder{gen: &scriptedGenerator{}}
			p := NewPolicy(gen, testConfig(), zaptest.NewLogger(t)).WithSleeper(rec.sleep)

			_, err := p.Invoke(ctx, []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Request{}, nil)
			ex, ok := AsExhausted(err)
			if !ok {
				t.Fatalf("expected ExhaustedError, got %v", err)
			}
			if gen.calls != 1 || len(rec.sleeps) != 0 {
				t.Errorf("expected one call and no backoff, got %d calls and %v", gen.calls, rec.sleeps)
			}
			if len(ex.Attempts) != 1 || Outcome(ex.Attempts[0].Outcome) != tc.expected {
				t.Fatalf("expected a single %s attempt, got %+v", tc.expected, ex.Attempts)
			}
			if !ex.Deadline || ex.AllQuota != tc.allQuota {
				t.Errorf("unexpected exhaustion %+v", ex)
			}
			if !strings.Contains(ex.Error(), "("+tc.expectedKind+")") {
				t.Errorf("expected %q in %q", tc.expectedKind, ex.Error())
			}
		})
	}
}

func TestExhaustedErrorKind(t *testing.T) {
	quota := models.Attempt{Outcome: string(OutcomeQuota), Quota: true}
	hard := models.Attempt{Outcome: string(OutcomeHard), Message: "bad key"}
	cancelled := models.Attempt{Outcome: string(OutcomeCancelled)}

	testCases := []struct {
		name     string
		err      *ExhaustedError
		expected string
	}{
		{name: "quota only", err: &ExhaustedError{AllQuota: true, Attempts: []models.Attempt{quota}}, expected: "(quota-only)"},
		{name: "hard attempt", err: &ExhaustedError{Attempts: []models.Attempt{quota, hard}}, expected: "(hard failure)"},
		{name: "only cancelled", err: &ExhaustedError{Deadline: true, Attempts: []models.Attempt{cancelled}}, expected: "(interrupted)"},
		{name: "no attempts", err: &ExhaustedError{Deadline: true}, expected: "(interrupted)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); !strings.Contains(got, tc.expected) {
				t.Errorf("expected %q in %q", tc.expected, got)
			}
		})
	}
}

func TestReduce(t *testing.T) {
	quota := models.Attempt{Outcome: string(OutcomeQuota), Quota: true}
	hard := models.Attempt{Outcome: string(OutcomeHard)}
	cancelled := models.Attempt{Outcome: string(OutcomeCancelled)}

	testCases := []struct {
		name     string
		attempts []models.Attempt
		expected bool
	}{
		{name: "empty log", attempts: nil, expected: false},
		{name: "all quota", attempts: []models.Attempt{quota, quota}, expected: true},
		{name: "quota then cancelled", attempts: []models.Attempt{quota, cancelled}, expected: true},
		{name: "only cancelled", attempts: []models.Attempt{cancelled}, expected: false},
		{name: "quota and hard", attempts: []models.Attempt{quota, hard}, expected: false},
		{name: "only hard", attempts: []models.Attempt{hard}, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reduce(tc.attempts); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}
