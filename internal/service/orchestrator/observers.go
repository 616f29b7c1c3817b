package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/repository/sheets"
)

// LedgerObserver mirrors recorded matches into the operator ledger.
type LedgerObserver struct {
	ledger sheets.Ledger
	logger *zap.Logger
}

// NewLedgerObserver wraps ledger.
func NewLedgerObserver(ledger sheets.Ledger, logger *zap.Logger) *LedgerObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerObserver{ledger: ledger, logger: logger}
}

// Settled implements Observer. Failed batches have no match and are not mirrored.
func (l *LedgerObserver) Settled(ctx context.Context, _ models.WasteBatch, m *models.AIMatch) {
	if m == nil {
		return
	}
	if err := l.ledger.RecordMatch(ctx, *m); err != nil {
		l.logger.Warn("failed to mirror match to ledger", zap.String("match_id", m.ID), zap.Error(err))
	}
}
