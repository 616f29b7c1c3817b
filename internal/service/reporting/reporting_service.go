package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/repository/sheets"
)

const dateLayout = "2006-01-02"

// MatchLister reads persisted matches.
type MatchLister interface {
	ListMatchesByRegion(ctx context.Context, region string) ([]models.AIMatch, error)
}

// OperatorNotifier delivers a text summary to the operator.
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, body string) error
}

// Service computes impact metrics over persisted matches.
type Service struct {
	store    MatchLister
	ledger   sheets.Ledger
	notifier OperatorNotifier
	now      func() time.Time
	logger   *zap.Logger
}

// NewService wires a new reporting service instance. ledger and notifier may be nil.
func NewService(store MatchLister, ledger sheets.Ledger, notifier OperatorNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = sheets.NopLedger{}
	}
	return &Service{store: store, ledger: ledger, notifier: notifier, now: time.Now, logger: logger}
}

// Impact reduces every AIMatch in region into ImpactMetrics.
func (s *Service) Impact(ctx context.Context, region string) (models.ImpactMetrics, error) {
	matches, err := s.store.ListMatchesByRegion(ctx, region)
	if err != nil {
		return models.ImpactMetrics{}, fmt.Errorf("load matches: %w", err)
	}
	return Aggregate(region, matches, s.now()), nil
}

// Snapshot computes the region's metrics, appends them to the ledger and sends the operator a
// summary. Ledger and notification failures are logged; only the computation can fail.
func (s *Service) Snapshot(ctx context.Context, region string) (models.ImpactMetrics, error) {
	metrics, err := s.Impact(ctx, region)
	if err != nil {
		return metrics, err
	}

	if err := s.ledger.RecordImpact(ctx, metrics); err != nil {
		s.logger.Warn("failed to append impact snapshot", zap.String("region", region), zap.Error(err))
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyOperator(ctx, Summary(metrics)); err != nil {
			s.logger.Warn("failed to send impact summary", zap.String("region", region), zap.Error(err))
		}
	}

	s.logger.Info("impact snapshot recorded",
		zap.String("region", region),
		zap.Int("matches", metrics.TotalMatches),
		zap.Float64("waste_tons", metrics.TotalWasteTons))
	return metrics, nil
}

// Aggregate sums and averages matches. Averages are zero when there are no matches.
func Aggregate(region string, matches []models.AIMatch, at time.Time) models.ImpactMetrics {
	out := models.ImpactMetrics{
		Region:      region,
		BySource:    map[models.DecisionSource]int{},
		GeneratedAt: at,
	}

	var confidence, seconds float64
	for _, m := range matches {
		out.TotalWasteKg += m.WasteQuantityKg
		out.TotalValue += m.TotalValue
		out.TotalCO2Tons += m.CO2SavedTons
		out.TotalPM25Kg += m.PM25PreventedKg
		confidence += m.MatchScore
		seconds += m.DecisionTimeSeconds

		source := m.DecisionSource
		if source == "" {
			source = models.SourceModel
		}
		out.BySource[source]++
	}

	out.TotalMatches = len(matches)
	out.TotalWasteKg = round2(out.TotalWasteKg)
	out.TotalWasteTons = round2(out.TotalWasteKg / 1000)
	out.TotalValue = round2(out.TotalValue)
	out.TotalCO2Tons = round2(out.TotalCO2Tons)
	out.TotalPM25Kg = round2(out.TotalPM25Kg)
	if n := float64(len(matches)); n > 0 {
		out.AvgConfidence = int(math.Round(confidence / n))
		out.AvgDecisionSeconds = round2(seconds / n)
	}
	return out
}

// Summary renders metrics for a WhatsApp message.
func Summary(m models.ImpactMetrics) string {
	if m.TotalMatches == 0 {
		return fmt.Sprintf("Impact %s (%s): no matches yet.", m.Region, m.GeneratedAt.Format(dateLayout))
	}
	return fmt.Sprintf(
		"Impact %s (%s): %d matches, %.2f tons diverted, Rs %.2f to farmers, %.2f tons CO2 and %.2f kg PM2.5 avoided. "+
			"Avg confidence %d, avg decision %.2fs, %d heuristic.",
		m.Region, m.GeneratedAt.Format(dateLayout), m.TotalMatches, m.TotalWasteTons, m.TotalValue,
		m.TotalCO2Tons, m.TotalPM25Kg, m.AvgConfidence, m.AvgDecisionSeconds, m.BySource[models.SourceHeuristic])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
