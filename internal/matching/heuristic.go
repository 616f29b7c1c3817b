package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// Factor weights of the heuristic total. Quality is reported but not weighted.
const (
	weightType      = 0.40
	weightProximity = 0.30
	weightDemand    = 0.20
	weightPrice     = 0.10

	referencePricePerKg = 4.0
)

var moistureQuality = map[string]float64{
	"low":    95,
	"medium": 85,
	"high":   65,
}

// CandidateScore is the heuristic breakdown for one candidate.
type CandidateScore struct {
	IndustryID   string  `json:"industryId"`
	IndustryName string  `json:"industryName"`
	DistanceKm   float64 `json:"distanceKm"`
	Type         float64 `json:"typeScore"`
	Proximity    float64 `json:"proximityScore"`
	DemandFit    float64 `json:"demandFitScore"`
	Quality      float64 `json:"qualityScore"`
	Price        float64 `json:"priceScore"`
	Total        float64 `json:"totalScore"`
}

// Score computes heuristic scores for every candidate and returns them best first.
// Ties resolve by smaller distance, then by industry id.
func Score(sc ScoringContext) ([]CandidateScore, error) {
	if len(sc.Candidates) == 0 {
		return nil, ErrNoCandidates
	}

	quality := QualityScore(sc.Submission.MoistureLevel)
	scores := make([]CandidateScore, 0, len(sc.Candidates))
	for _, c := range sc.Candidates {
		s := CandidateScore{
			IndustryID:   c.Industry.ID,
			IndustryName: c.Industry.Name,
			DistanceKm:   c.DistanceKm,
			Type:         TypeScore(c.Industry.PreferredWasteTypes, sc.Submission.WasteType),
			Proximity:    ProximityScore(c.DistanceKm),
			DemandFit:    DemandFitScore(sc.Submission.QuantityKg, c.Industry.MonthlyCapacityKg()),
			Quality:      quality,
			Price:        PriceScore(c.Industry.PriceRange),
		}
		s.Total = math.Round(weightType*s.Type + weightProximity*s.Proximity + weightDemand*s.DemandFit + weightPrice*s.Price)
		scores = append(scores, s)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.IndustryID < b.IndustryID
	})

	return scores, nil
}

// Decide produces a MatchDecision from the best heuristic candidate.
func Decide(sc ScoringContext) (models.MatchDecision, error) {
	scores, err := Score(sc)
	if err != nil {
		return models.MatchDecision{}, err
	}

	best := scores[0]
	chosen, _ := sc.Candidate(best.IndustryID)

	price := chosen.Industry.PriceRange.Midpoint()
	if price <= 0 {
		price = defaultPricePerKg
	}
	price = math.Round(price*100) / 100

	_, pm25 := Impact(sc.Submission.QuantityKg)

	return models.MatchDecision{
		IndustryID:   best.IndustryID,
		IndustryName: best.IndustryName,
		PricePerKg:   price,
		Reasoning: fmt.Sprintf(
			"Heuristic fallback selected %s with a weighted score of %.0f out of %d candidates. "+
				"Waste type fit %.0f, proximity %.0f at %.1f km, demand fit %.0f, price %.0f.",
			best.IndustryName, best.Total, len(scores), best.Type, best.Proximity, best.DistanceKm, best.DemandFit, best.Price),
		MatchScore: best.Total,
		Factors: models.MatchFactors{
			ProximityScore: best.Proximity,
			DemandFitScore: best.DemandFit,
			QualityScore:   best.Quality,
			PriceScore:     best.Price,
		},
		DistanceKm:          best.DistanceKm,
		LogisticsNote:       LogisticsNote(best.DistanceKm),
		EnvironmentalImpact: fmt.Sprintf("Prevents %.2fkg PM2.5 by diverting %.0f kg of %s from field burning", pm25, sc.Submission.QuantityKg, sc.Submission.WasteType),
	}, nil
}

// TypeScore is 100 when the waste type is preferred, 30 when it is not, and 60 when the
// industry states no preference.
func TypeScore(preferred []string, wasteType string) float64 {
	if len(preferred) == 0 {
		return 60
	}
	want := strings.TrimSpace(wasteType)
	for _, p := range preferred {
		if strings.EqualFold(strings.TrimSpace(p), want) {
			return 100
		}
	}
	return 30
}

// ProximityScore loses two points per kilometre, floored at zero.
func ProximityScore(distanceKm float64) float64 {
	return math.Max(0, 100-2*distanceKm)
}

// DemandFitScore relates the batch size to monthly capacity. Unknown capacity scores 70;
// the result never drops below 10.
func DemandFitScore(quantityKg, capacityKg float64) float64 {
	if capacityKg <= 0 {
		return 70
	}
	score := math.Min(100, math.Round(quantityKg/capacityKg*100))
	return math.Max(10, score)
}

// QualityScore maps the moisture descriptor to a quality score.
func QualityScore(moisture string) float64 {
	if q, ok := moistureQuality[strings.ToLower(strings.TrimSpace(moisture))]; ok {
		return q
	}
	return 80
}

// PriceScore maps the price band midpoint linearly against ₹4/kg, capped at 100.
func PriceScore(r models.PriceRange) float64 {
	return math.Min(100, r.Midpoint()/referencePricePerKg*100)
}

// LogisticsNote classifies transport distance into the bands used in the prompt.
func LogisticsNote(distanceKm float64) string {
	switch {
	case distanceKm < 20:
		return fmt.Sprintf("Excellent logistics: %.1f km, same-day pickup feasible", distanceKm)
	case distanceKm <= 50:
		return fmt.Sprintf("Good logistics: %.1f km, standard tractor-trolley transport", distanceKm)
	default:
		return fmt.Sprintf("Long haul: %.1f km, consolidate loads to keep transport viable", distanceKm)
	}
}
