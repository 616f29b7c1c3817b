package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// loadIndustries decodes a JSON array of industries and rejects entries the matcher could
// never select.
func loadIndustries(r io.Reader) ([]models.Industry, error) {
	var industries []models.Industry
	if err := json.NewDecoder(r).Decode(&industries); err != nil {
		return nil, fmt.Errorf("decode industries: %w", err)
	}

	seen := make(map[string]bool, len(industries))
	for i, ind := range industries {
		switch {
		case strings.TrimSpace(ind.ID) == "":
			return nil, fmt.Errorf("industry %d: id is required", i)
		case strings.TrimSpace(ind.Name) == "":
			return nil, fmt.Errorf("industry %s: name is required", ind.ID)
		case strings.TrimSpace(ind.Location.State) == "":
			return nil, fmt.Errorf("industry %s: location.state is required", ind.ID)
		case ind.PriceRange.Min > ind.PriceRange.Max && ind.PriceRange.Max > 0:
			return nil, fmt.Errorf("industry %s: priceRange min exceeds max", ind.ID)
		case seen[ind.ID]:
			return nil, fmt.Errorf("industry %s: duplicate id", ind.ID)
		}
		seen[ind.ID] = true
	}
	return industries, nil
}
