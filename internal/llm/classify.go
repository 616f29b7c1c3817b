package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/mamadbah2/agrimatch/pkg/clients/throttle"
)

// Outcome classifies one model attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeQuota     Outcome = "quota_error"
	OutcomeHard      Outcome = "hard_error"
	OutcomeCancelled Outcome = "cancelled"
)

// StatusCoder is implemented by provider errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

var quotaMarkers = []string{
	"429",
	"quota",
	"rate limit",
	"rate_limit",
	"ratelimit",
	"rate-limit",
	"resource_exhausted",
	"resource exhausted",
	"too many requests",
}

var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"RESOURCE_EXHAUSTED":    true,
}

// Classify decides whether a provider error is a transient quota/rate-limit failure.
// This is the only place that inspects provider error formats; it needs revisiting
// whenever a provider changes how it reports throttling.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	// The local limiter gave up before any request was sent; the provider never throttled us.
	if errors.Is(err, throttle.ErrWait) {
		return OutcomeHard
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests {
			return OutcomeQuota
		}
		for _, item := range gerr.Errors {
			if quotaReasons[item.Reason] {
				return OutcomeQuota
			}
		}
	}

	var coder StatusCoder
	if errors.As(err, &coder) && coder.HTTPStatus() == http.StatusTooManyRequests {
		return OutcomeQuota
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return OutcomeQuota
		}
	}
	return OutcomeHard
}
