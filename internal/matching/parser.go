package matching

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

var (
	// ErrDecisionParse indicates no decision object could be read from the model output.
	ErrDecisionParse = errors.New("decision parse error")
	// ErrDecisionInvalid indicates a decision object was read but violates its invariants.
	ErrDecisionInvalid = errors.New("decision validation error")
)

type rawFactors struct {
	ProximityScore *float64 `json:"proximityScore"`
	DemandFitScore *float64 `json:"demandFitScore"`
	QualityScore   *float64 `json:"qualityScore"`
	PriceScore     *float64 `json:"priceScore"`
}

type rawDecision struct {
	IndustryID          *string     `json:"industryId"`
	IndustryName        *string     `json:"industryName"`
	PricePerKg          *float64    `json:"pricePerKg"`
	Reasoning           *string     `json:"reasoning"`
	MatchScore          *float64    `json:"matchScore"`
	Factors             *rawFactors `json:"factors"`
	DistanceKm          *float64    `json:"distanceKm"`
	LogisticsNote       *string     `json:"logisticsNote"`
	EnvironmentalImpact *string     `json:"environmentalImpact"`
}

// ParseDecision reads a MatchDecision from free-form model output. It strips Markdown
// fences, and when the remainder is not valid JSON it retries on the first balanced
// object span in the text. The result is validated before it is returned.
func ParseDecision(text string) (models.MatchDecision, error) {
	var raw rawDecision
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		span, ok := firstObjectSpan(text)
		if !ok {
			return models.MatchDecision{}, fmt.Errorf("%w: %v", ErrDecisionParse, err)
		}
		raw = rawDecision{}
		if err := json.Unmarshal([]byte(span), &raw); err != nil {
			return models.MatchDecision{}, fmt.Errorf("%w: %v", ErrDecisionParse, err)
		}
	}

	decision, err := raw.toDecision()
	if err != nil {
		return models.MatchDecision{}, err
	}
	if err := Validate(decision); err != nil {
		return models.MatchDecision{}, err
	}
	return decision, nil
}

func (r rawDecision) toDecision() (models.MatchDecision, error) {
	var missing []string
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	need("industryId", r.IndustryID != nil && strings.TrimSpace(*r.IndustryID) != "")
	need("industryName", r.IndustryName != nil && strings.TrimSpace(*r.IndustryName) != "")
	need("pricePerKg", r.PricePerKg != nil)
	need("reasoning", r.Reasoning != nil)
	need("matchScore", r.MatchScore != nil)
	need("factors", r.Factors != nil)
	if r.Factors != nil {
		need("factors.proximityScore", r.Factors.ProximityScore != nil)
		need("factors.demandFitScore", r.Factors.DemandFitScore != nil)
		need("factors.qualityScore", r.Factors.QualityScore != nil)
		need("factors.priceScore", r.Factors.PriceScore != nil)
	}
	if len(missing) > 0 {
		return models.MatchDecision{}, fmt.Errorf("%w: missing %s", ErrDecisionInvalid, strings.Join(missing, ", "))
	}

	d := models.MatchDecision{
		IndustryID:   strings.TrimSpace(*r.IndustryID),
		IndustryName: strings.TrimSpace(*r.IndustryName),
		PricePerKg:   *r.PricePerKg,
		Reasoning:    *r.Reasoning,
		MatchScore:   *r.MatchScore,
		Factors: models.MatchFactors{
			ProximityScore: *r.Factors.ProximityScore,
			DemandFitScore: *r.Factors.DemandFitScore,
			QualityScore:   *r.Factors.QualityScore,
			PriceScore:     *r.Factors.PriceScore,
		},
	}
	if r.DistanceKm != nil {
		d.DistanceKm = *r.DistanceKm
	}
	if r.LogisticsNote != nil {
		d.LogisticsNote = *r.LogisticsNote
	}
	if r.EnvironmentalImpact != nil {
		d.EnvironmentalImpact = *r.EnvironmentalImpact
	}
	return d, nil
}

// Validate enforces score ranges and a positive price.
func Validate(d models.MatchDecision) error {
	scores := []struct {
		name  string
		value float64
	}{
		{"matchScore", d.MatchScore},
		{"proximityScore", d.Factors.ProximityScore},
		{"demandFitScore", d.Factors.DemandFitScore},
		{"qualityScore", d.Factors.QualityScore},
		{"priceScore", d.Factors.PriceScore},
	}
	for _, s := range scores {
		if math.IsNaN(s.value) || s.value < 0 || s.value > 100 {
			return fmt.Errorf("%w: %s %v outside [0,100]", ErrDecisionInvalid, s.name, s.value)
		}
	}
	if math.IsNaN(d.PricePerKg) || d.PricePerKg <= 0 {
		return fmt.Errorf("%w: pricePerKg %v must be positive", ErrDecisionInvalid, d.PricePerKg)
	}
	if d.DistanceKm < 0 {
		return fmt.Errorf("%w: distanceKm %v must not be negative", ErrDecisionInvalid, d.DistanceKm)
	}
	return nil
}

// Bind checks that the decision names one of the context's candidates and aligns its
// name and distance with the candidate data.
func Bind(sc ScoringContext, d models.MatchDecision) (models.MatchDecision, error) {
	c, ok := sc.Candidate(d.IndustryID)
	if !ok {
		return models.MatchDecision{}, fmt.Errorf("%w: industry %q is not an eligible candidate", ErrDecisionInvalid, d.IndustryID)
	}
	d.IndustryName = c.Industry.Name
	d.DistanceKm = c.DistanceKm
	if d.LogisticsNote == "" {
		d.LogisticsNote = "Standard logistics"
	}
	if d.EnvironmentalImpact == "" {
		_, pm25 := Impact(sc.Submission.QuantityKg)
		d.EnvironmentalImpact = fmt.Sprintf("Prevents %.2fkg PM2.5", pm25)
	}
	return d, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// drop the language tag line, e.g. ```json
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// firstObjectSpan returns the first brace-balanced {...} span, ignoring braces inside strings.
func firstObjectSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
