package sheets

import (
	"context"
	"testing"
	"time"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

type recordedRow struct {
	sheetRange string
	values     []interface{}
}

type fakeWriter struct {
	rows []recordedRow
}

func (f *fakeWriter) WriteRow(_ context.Context, sheetRange string, values []interface{}) error {
	f.rows = append(f.rows, recordedRow{sheetRange: sheetRange, values: values})
	return nil
}

func TestMatchLedgerRecordMatch(t *testing.T) {
	w := &fakeWriter{}
	ledger := NewMatchLedger(w)

	m := models.AIMatch{
		ID:              "b1-g0",
		WasteBatchID:    "b1",
		FarmerName:      "Gurpreet",
		IndustryName:    "Punjab Bio Energy",
		WasteType:       "paddy_straw",
		WasteQuantityKg: 1000,
		PricePerKg:      2.5,
		TotalValue:      2500,
		MatchScore:      82,
		DecisionSource:  models.SourceModel,
		ModelsTried:     []string{"gemini-2.0-flash", "gemini-1.5-flash"},
		CreatedAt:       time.Date(2024, 11, 2, 8, 30, 0, 0, time.UTC),
	}
	if err := ledger.RecordMatch(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.rows) != 1 || w.rows[0].sheetRange != matchesRange {
		t.Fatalf("expected one row in %s, got %+v", matchesRange, w.rows)
	}
	row := w.rows[0].values
	if len(row) != 12 {
		t.Fatalf("expected 12 columns, got %d", len(row))
	}
	if row[0] != "2024-11-02T08:30:00Z" || row[1] != "b1-g0" || row[10] != "model" {
		t.Errorf("unexpected row %v", row)
	}
	if row[11] != "gemini-2.0-flash,gemini-1.5-flash" {
		t.Errorf("unexpected models column %v", row[11])
	}
}

func TestMatchLedgerRecordImpact(t *testing.T) {
	w := &fakeWriter{}
	ledger := NewMatchLedger(w)

	err := ledger.RecordImpact(context.Background(), models.ImpactMetrics{Region: "Punjab", TotalMatches: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.rows) != 1 || w.rows[0].sheetRange != impactRange || len(w.rows[0].values) != 9 {
		t.Fatalf("unexpected impact row %+v", w.rows)
	}
	if w.rows[0].values[1] != "Punjab" || w.rows[0].values[2] != 3 {
		t.Errorf("unexpected impact row %v", w.rows[0].values)
	}
}
