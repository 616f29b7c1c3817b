package mongodb

import (
	"errors"
	"testing"
	"time"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

func TestOutcomeSet(t *testing.T) {
	at := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

	matched := outcomeSet(models.BatchOutcome{
		Status:          models.StatusMatchPending,
		MatchID:         "b1-g0",
		MatchedIndustry: "Punjab Bio Energy",
		EstimatedValue:  2500,
		DecisionSource:  models.SourceHeuristic,
		At:              at,
	})
	if matched["status"] != models.StatusMatchPending || matched["matchId"] != "b1-g0" {
		t.Errorf("unexpected matched set %v", matched)
	}
	if _, ok := matched["error"]; ok {
		t.Error("matched outcome must not set error")
	}
	if matched["matchedAt"] != at {
		t.Errorf("expected matchedAt %v, got %v", at, matched["matchedAt"])
	}

	failed := outcomeSet(models.FailedOutcome(errors.New("no candidates"), at))
	if failed["status"] != models.StatusMatchFailed || failed["error"] != "no candidates" {
		t.Errorf("unexpected failed set %v", failed)
	}
	if _, ok := failed["matchId"]; ok {
		t.Error("failed outcome must not set matchId")
	}
}

func TestOutcomeFieldsCoverOutcomeSet(t *testing.T) {
	cleared := map[string]bool{}
	for _, f := range outcomeFields {
		cleared[f] = true
	}

	at := time.Now()
	sets := []map[string]any{
		outcomeSet(models.BatchOutcome{Status: models.StatusMatched, MatchID: "m", At: at}),
		outcomeSet(models.FailedOutcome(errors.New("x"), at)),
	}
	for _, set := range sets {
		for field := range set {
			if field != "status" && !cleared[field] {
				t.Errorf("reset does not clear %s", field)
			}
		}
	}
}
