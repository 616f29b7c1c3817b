package sheets

import (
	"context"
	"strings"
	"time"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

const (
	matchesRange = "Matches!A:L"
	impactRange  = "Impact!A:I"
)

// Ledger mirrors persisted matches and impact snapshots for operators.
type Ledger interface {
	RecordMatch(ctx context.Context, m models.AIMatch) error
	RecordImpact(ctx context.Context, metrics models.ImpactMetrics) error
}

// MatchLedger writes ledger rows through a RowWriter.
type MatchLedger struct {
	writer RowWriter
}

// NewMatchLedger wraps writer.
func NewMatchLedger(writer RowWriter) *MatchLedger {
	return &MatchLedger{writer: writer}
}

// RecordMatch appends one row per AIMatch.
func (l *MatchLedger) RecordMatch(ctx context.Context, m models.AIMatch) error {
	return l.writer.WriteRow(ctx, matchesRange, MatchRow(m))
}

// RecordImpact appends one row per impact snapshot.
func (l *MatchLedger) RecordImpact(ctx context.Context, metrics models.ImpactMetrics) error {
	return l.writer.WriteRow(ctx, impactRange, ImpactRow(metrics))
}

// MatchRow lays out an AIMatch across columns A..L.
func MatchRow(m models.AIMatch) []interface{} {
	return []interface{}{
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.ID,
		m.WasteBatchID,
		m.FarmerName,
		m.IndustryName,
		m.WasteType,
		m.WasteQuantityKg,
		m.PricePerKg,
		m.TotalValue,
		m.MatchScore,
		string(m.DecisionSource),
		strings.Join(m.ModelsTried, ","),
	}
}

// ImpactRow lays out a snapshot across columns A..I.
func ImpactRow(im models.ImpactMetrics) []interface{} {
	return []interface{}{
		im.GeneratedAt.UTC().Format(time.RFC3339),
		im.Region,
		im.TotalMatches,
		im.TotalWasteTons,
		im.TotalValue,
		im.TotalCO2Tons,
		im.TotalPM25Kg,
		im.AvgConfidence,
		im.AvgDecisionSeconds,
	}
}

// NopLedger discards every record.
type NopLedger struct{}

func (NopLedger) RecordMatch(context.Context, models.AIMatch) error { return nil }

func (NopLedger) RecordImpact(context.Context, models.ImpactMetrics) error { return nil }
