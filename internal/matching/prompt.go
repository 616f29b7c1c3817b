package matching

import (
	"encoding/json"
	"fmt"
	"strings"
)

type promptCandidate struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Type                string          `json:"type,omitempty"`
	City                string          `json:"city,omitempty"`
	DistanceKm          float64         `json:"distanceKm"`
	MonthlyDemandKg     float64         `json:"monthlyDemandKg,omitempty"`
	PreferredWasteTypes []string        `json:"preferredWasteTypes"`
	PriceRange          [2]float64      `json:"priceRangePerKg"`
	ReferenceScores     *CandidateScore `json:"referenceScores,omitempty"`
}

// BuildPrompt renders the model prompt from the scoring context. The heuristic breakdown
// is embedded as reference data so both decision paths reason over the same numbers.
func BuildPrompt(sc ScoringContext, reference []CandidateScore) (string, error) {
	byID := make(map[string]CandidateScore, len(reference))
	for _, s := range reference {
		byID[s.IndustryID] = s
	}

	candidates := make([]promptCandidate, 0, len(sc.Candidates))
	for _, c := range sc.Candidates {
		pc := promptCandidate{
			ID:                  c.Industry.ID,
			Name:                c.Industry.Name,
			Type:                c.Industry.Type,
			City:                c.Industry.Location.City,
			DistanceKm:          c.DistanceKm,
			MonthlyDemandKg:     c.Industry.MonthlyCapacityKg(),
			PreferredWasteTypes: c.Industry.PreferredWasteTypes,
			PriceRange:          [2]float64{c.Industry.PriceRange.Min, c.Industry.PriceRange.Max},
		}
		if s, ok := byID[c.Industry.ID]; ok {
			pc.ReferenceScores = &s
		}
		candidates = append(candidates, pc)
	}

	candidatesJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	sub := sc.Submission
	moisture := sub.MoistureLevel
	if moisture == "" {
		moisture = "Standard"
	}
	season := sub.Season
	if season == "" {
		season = "Rabi/Kharif"
	}
	place := sub.Location.City
	if place == "" {
		place = sub.Location.District
	}
	if place == "" {
		place = sub.Region
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are an autonomous agricultural waste supply chain agent for %s, India.
Make an independent, optimal matching decision for one farmer submission.

WASTE SUBMISSION:
- Type: %s
- Quantity: %.0f kg
- Location: %s (%.4f, %.4f)
- Quality: %s moisture
- Farmer ID: %s
- Crop Season: %s

CONTEXT:
- Open-field burning of crop residue is the region's major seasonal pollution source and is banned.
- The post-harvest window is short, so fast pickup matters.

AVAILABLE INDUSTRIES (distances precomputed, referenceScores from a deterministic scorer):
%s

DECISION CRITERIA:
1. Waste type compatibility (40%%): does the industry prefer this waste type?
2. Proximity (30%%): <20 km excellent, 20-50 km good, >50 km poor.
3. Demand capacity (20%%): can the industry absorb this quantity?
4. Price (10%%): fair market rates (2.5-4.0 INR/kg for rice straw).

Think step by step: filter by compatibility, score proximity, demand fit and quality (0-100),
compute the weighted total, select the highest scoring industry, set a fair price, explain in 2-3 sentences.
industryId MUST be one of the ids listed above.

OUTPUT (return ONLY this JSON, no other text):
{
  "industryId": "string",
  "industryName": "string",
  "pricePerKg": number,
  "reasoning": "string",
  "matchScore": number (0-100),
  "factors": {
    "proximityScore": number (0-100),
    "demandFitScore": number (0-100),
    "qualityScore": number (0-100),
    "priceScore": number (0-100)
  },
  "distanceKm": number,
  "logisticsNote": "string",
  "environmentalImpact": "string"
}`,
		sub.Region, sub.WasteType, sub.QuantityKg, place, sub.Location.Lat, sub.Location.Lng,
		moisture, sub.FarmerID, season, string(candidatesJSON))

	return b.String(), nil
}
