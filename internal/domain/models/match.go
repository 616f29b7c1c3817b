package models

import (
	"strconv"
	"time"
)

// DecisionSource records which path produced a decision.
type DecisionSource string

const (
	SourceModel     DecisionSource = "model"
	SourceHeuristic DecisionSource = "heuristic"
)

// MatchStatus is the reviewer-driven lifecycle of an AIMatch.
type MatchStatus string

const (
	MatchAutonomousPending MatchStatus = "autonomous_pending"
	MatchAccepted          MatchStatus = "accepted"
	MatchRejected          MatchStatus = "rejected"
	MatchCompleted         MatchStatus = "completed"
)

// MatchFactors are the four named sub-scores, each in [0,100].
type MatchFactors struct {
	ProximityScore float64 `bson:"proximityScore" json:"proximityScore"`
	DemandFitScore float64 `bson:"demandFitScore" json:"demandFitScore"`
	QualityScore   float64 `bson:"qualityScore" json:"qualityScore"`
	PriceScore     float64 `bson:"priceScore" json:"priceScore"`
}

// MatchDecision is the transient output of either the model or the heuristic path.
type MatchDecision struct {
	IndustryID          string       `json:"industryId"`
	IndustryName        string       `json:"industryName"`
	PricePerKg          float64      `json:"pricePerKg"`
	Reasoning           string       `json:"reasoning"`
	MatchScore          float64      `json:"matchScore"`
	Factors             MatchFactors `json:"factors"`
	DistanceKm          float64      `json:"distanceKm"`
	LogisticsNote       string       `json:"logisticsNote"`
	EnvironmentalImpact string       `json:"environmentalImpact"`
}

// Attempt is one entry of the model invocation log.
type Attempt struct {
	Model     string    `bson:"model" json:"model"`
	Attempt   int       `bson:"attempt" json:"attempt"`
	Outcome   string    `bson:"outcome" json:"outcome"`
	Success   bool      `bson:"success" json:"success"`
	Quota     bool      `bson:"quota" json:"quota"`
	Message   string    `bson:"message,omitempty" json:"message,omitempty"`
	StartedAt time.Time `bson:"startedAt" json:"startedAt"`
	Duration  float64   `bson:"durationSeconds" json:"durationSeconds"`
}

// AIMatch is the persisted, append-only record of a decision.
type AIMatch struct {
	ID           string `bson:"_id" json:"id"`
	RunID        string `bson:"runId" json:"runId"`
	WasteBatchID string `bson:"wasteBatchId" json:"wasteBatchId"`
	Generation   int    `bson:"generation" json:"generation"`
	FarmerID     string `bson:"farmerId" json:"farmerId"`
	FarmerName   string `bson:"farmerName" json:"farmerName"`
	IndustryID   string `bson:"industryId" json:"industryId"`
	IndustryName string `bson:"industryName" json:"industryName"`

	PricePerKg float64 `bson:"pricePerKg" json:"pricePerKg"`
	TotalValue float64 `bson:"totalValue" json:"totalValue"`
	Currency   string  `bson:"currency" json:"currency"`

	Reasoning           string       `bson:"reasoning" json:"reasoning"`
	MatchScore          float64      `bson:"matchScore" json:"matchScore"`
	Factors             MatchFactors `bson:"factors" json:"factors"`
	LogisticsNote       string       `bson:"logisticsNote" json:"logisticsNote"`
	EnvironmentalImpact string       `bson:"environmentalImpact" json:"environmentalImpact"`

	DistanceKm          float64 `bson:"distanceKm" json:"distanceKm"`
	DecisionTimeSeconds float64 `bson:"decisionTimeSeconds" json:"decisionTimeSeconds"`
	CO2SavedTons        float64 `bson:"co2SavedTons" json:"co2SavedTons"`
	PM25PreventedKg     float64 `bson:"pm25PreventedKg" json:"pm25PreventedKg"`

	Region   string `bson:"region" json:"region"`
	District string `bson:"district,omitempty" json:"district,omitempty"`
	State    string `bson:"state,omitempty" json:"state,omitempty"`
	Country  string `bson:"country" json:"country"`

	Status         MatchStatus    `bson:"status" json:"status"`
	AgentName      string         `bson:"agentName" json:"agentName"`
	AIModel        string         `bson:"aiModel" json:"aiModel"`
	DecisionSource DecisionSource `bson:"decisionSource" json:"decisionSource"`
	ModelsTried    []string       `bson:"modelsTried" json:"modelsTried"`
	Attempts       []Attempt      `bson:"attempts" json:"attempts"`

	WasteType       string   `bson:"wasteType" json:"wasteType"`
	WasteQuantityKg float64  `bson:"wasteQuantityKg" json:"wasteQuantityKg"`
	WasteLocation   Location `bson:"wasteLocation" json:"wasteLocation"`
	WastePhotoURL   string   `bson:"wastePhotoUrl,omitempty" json:"wastePhotoUrl,omitempty"`
	WasteSeason     string   `bson:"wasteSeason,omitempty" json:"wasteSeason,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// MatchID derives the deterministic AIMatch identifier for one processing generation of a batch.
func MatchID(batchID string, generation int) string {
	return batchID + "-g" + strconv.Itoa(generation)
}
