package models

import "time"

// ImpactMetrics is the reduction of all persisted matches in a region.
type ImpactMetrics struct {
	Region             string                 `json:"region"`
	TotalMatches       int                    `json:"totalMatches"`
	TotalWasteKg       float64                `json:"totalWasteKg"`
	TotalWasteTons     float64                `json:"totalWasteTons"`
	TotalValue         float64                `json:"totalValue"`
	TotalCO2Tons       float64                `json:"totalCO2Tons"`
	TotalPM25Kg        float64                `json:"totalPM25Kg"`
	AvgConfidence      int                    `json:"avgConfidence"`
	AvgDecisionSeconds float64                `json:"avgDecisionSeconds"`
	BySource           map[DecisionSource]int `json:"bySource"`
	GeneratedAt        time.Time              `json:"generatedAt"`
}
