package models

import (
	"errors"
	"fmt"
	"time"
)

// BatchStatus is the lifecycle state of a WasteBatch.
type BatchStatus string

const (
	StatusPending      BatchStatus = "pending"
	StatusMatched      BatchStatus = "matched"
	StatusMatchPending BatchStatus = "match_pending"
	StatusMatchFailed  BatchStatus = "match_failed"
	StatusCollected    BatchStatus = "collected"
	StatusDelivered    BatchStatus = "delivered"
)

// ErrInvalidTransition is returned for transitions the engine may not perform.
var ErrInvalidTransition = errors.New("invalid batch status transition")

// Terminal reports whether the engine must leave a batch in this status untouched.
// Only pending batches are processed; collected/delivered belong to external actors.
func (s BatchStatus) Terminal() bool {
	return s != StatusPending
}

// CheckTransition validates an engine-driven transition.
func CheckTransition(from, to BatchStatus) error {
	if from != StatusPending {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	switch to {
	case StatusMatched, StatusMatchPending, StatusMatchFailed:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
}

// BatchOutcome carries the entry-action fields of a terminal transition.
type BatchOutcome struct {
	Status          BatchStatus
	MatchID         string
	MatchedIndustry string
	EstimatedValue  float64
	CO2SavedTons    float64
	PM25PreventedKg float64
	AIModel         string
	DecisionSource  DecisionSource
	Error           string
	At              time.Time
}

// MatchedOutcome builds the outcome for a persisted match. Heuristic decisions land in
// match_pending so they stay distinguishable from model-sourced ones.
func MatchedOutcome(m AIMatch, at time.Time) BatchOutcome {
	status := StatusMatched
	if m.DecisionSource == SourceHeuristic {
		status = StatusMatchPending
	}
	return BatchOutcome{
		Status:          status,
		MatchID:         m.ID,
		MatchedIndustry: m.IndustryName,
		EstimatedValue:  m.TotalValue,
		CO2SavedTons:    m.CO2SavedTons,
		PM25PreventedKg: m.PM25PreventedKg,
		AIModel:         m.AIModel,
		DecisionSource:  m.DecisionSource,
		At:              at,
	}
}

// FailedOutcome builds the outcome for a failed submission.
func FailedOutcome(cause error, at time.Time) BatchOutcome {
	msg := "matching failed"
	if cause != nil {
		msg = cause.Error()
	}
	return BatchOutcome{Status: StatusMatchFailed, Error: msg, At: at}
}

// Validate enforces the matchId/error invariants of the target status.
func (o BatchOutcome) Validate() error {
	if err := CheckTransition(StatusPending, o.Status); err != nil {
		return err
	}
	switch o.Status {
	case StatusMatched, StatusMatchPending:
		if o.MatchID == "" {
			return fmt.Errorf("%w: %s requires a match id", ErrInvalidTransition, o.Status)
		}
		if o.Error != "" {
			return fmt.Errorf("%w: %s must not carry an error", ErrInvalidTransition, o.Status)
		}
	case StatusMatchFailed:
		if o.Error == "" {
			return fmt.Errorf("%w: match_failed requires an error", ErrInvalidTransition)
		}
		if o.MatchID != "" {
			return fmt.Errorf("%w: match_failed must not carry a match id", ErrInvalidTransition)
		}
	}
	return nil
}

// Apply mutates b to reflect the outcome. Stores use it to keep in-memory copies consistent.
func (o BatchOutcome) Apply(b *WasteBatch) {
	at := o.At
	b.Status = o.Status
	if o.Status == StatusMatchFailed {
		b.Error = o.Error
		b.FailedAt = &at
		return
	}
	value, co2, pm25 := o.EstimatedValue, o.CO2SavedTons, o.PM25PreventedKg
	b.MatchID = o.MatchID
	b.MatchedIndustry = o.MatchedIndustry
	b.EstimatedValue = &value
	b.CO2SavedTons = &co2
	b.PM25PreventedKg = &pm25
	b.AIModel = o.AIModel
	b.DecisionSource = string(o.DecisionSource)
	b.MatchedAt = &at
}

// ResetForRetrigger returns b to pending, clearing every field tied to the previous outcome.
func ResetForRetrigger(b *WasteBatch, at time.Time) {
	b.Status = StatusPending
	b.Generation++
	b.RetriggeredAt = &at
	b.MatchID = ""
	b.MatchedIndustry = ""
	b.EstimatedValue = nil
	b.CO2SavedTons = nil
	b.PM25PreventedKg = nil
	b.AIModel = ""
	b.DecisionSource = ""
	b.Error = ""
	b.MatchedAt = nil
	b.FailedAt = nil
}
