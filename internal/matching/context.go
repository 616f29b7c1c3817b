// Package matching holds the deterministic parts of the waste-matching engine:
// the shared scoring context, the heuristic scorer, prompt construction and
// decision parsing. Nothing here performs I/O.
package matching

import (
	"errors"
	"strings"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/geo"
)

// ErrNoCandidates signals that no active industry is eligible for a submission.
var ErrNoCandidates = errors.New("no eligible candidates: no active industries in region")

const (
	// Emission factors per tonne of residue diverted from open-field burning.
	co2TonsPerTonne   = 4.0
	pm25KgPerTonne    = 1.5
	defaultPricePerKg = 2.5
)

// Submission is the subset of a WasteBatch the scorers reason over.
type Submission struct {
	BatchID       string          `json:"batchId"`
	FarmerID      string          `json:"farmerId"`
	WasteType     string          `json:"wasteType"`
	QuantityKg    float64         `json:"quantityKg"`
	MoistureLevel string          `json:"moistureLevel,omitempty"`
	Season        string          `json:"season,omitempty"`
	Location      models.Location `json:"location"`
	Region        string          `json:"region"`
}

// ScoringContext is the single view of a submission and its candidates that both the
// model prompt and the heuristic scorer are built from.
type ScoringContext struct {
	Submission Submission
	Candidates []models.Candidate
}

// NewContext computes per-candidate distances and filters out inactive or out-of-region
// industries. origin replaces a batch location that carries no coordinates.
func NewContext(batch models.WasteBatch, region string, origin models.Location, industries []models.Industry) (ScoringContext, error) {
	loc := batch.Location
	if loc.IsZero() {
		loc.Lat, loc.Lng = origin.Lat, origin.Lng
	}

	sc := ScoringContext{
		Submission: Submission{
			BatchID:       batch.ID,
			FarmerID:      batch.FarmerID,
			WasteType:     batch.WasteType,
			QuantityKg:    batch.QuantityKg,
			MoistureLevel: batch.MoistureLevel,
			Season:        batch.Season,
			Location:      loc,
			Region:        region,
		},
	}

	for _, ind := range industries {
		if !Eligible(ind, region) {
			continue
		}
		sc.Candidates = append(sc.Candidates, models.Candidate{
			Industry:   ind,
			DistanceKm: geo.DistanceKm(loc.Lat, loc.Lng, ind.Location.Lat, ind.Location.Lng),
		})
	}

	if len(sc.Candidates) == 0 {
		return sc, ErrNoCandidates
	}
	return sc, nil
}

// Eligible reports whether an industry can receive waste from the given region.
func Eligible(ind models.Industry, region string) bool {
	return ind.IsActive && strings.EqualFold(strings.TrimSpace(ind.Location.State), strings.TrimSpace(region))
}

// Candidate returns the candidate with the given industry id.
func (sc ScoringContext) Candidate(industryID string) (models.Candidate, bool) {
	for _, c := range sc.Candidates {
		if c.Industry.ID == industryID {
			return c, true
		}
	}
	return models.Candidate{}, false
}

// Impact returns the environmental totals for a quantity of residue.
func Impact(quantityKg float64) (co2SavedTons, pm25PreventedKg float64) {
	tonnes := quantityKg / 1000
	return tonnes * co2TonsPerTonne, tonnes * pm25KgPerTonne
}
