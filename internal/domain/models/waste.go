package models

import "time"

// Location is a geographic point with optional administrative labels.
type Location struct {
	Lat      float64 `bson:"lat" json:"lat"`
	Lng      float64 `bson:"lng" json:"lng"`
	City     string  `bson:"city,omitempty" json:"city,omitempty"`
	District string  `bson:"district,omitempty" json:"district,omitempty"`
	State    string  `bson:"state,omitempty" json:"state,omitempty"`
}

// IsZero reports whether no coordinates were provided.
func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lng == 0
}

// WasteBatch is one farmer submission awaiting (or holding) a matching decision.
type WasteBatch struct {
	ID            string      `bson:"_id" json:"id"`
	FarmerID      string      `bson:"farmerId" json:"farmerId"`
	FarmerName    string      `bson:"farmerName,omitempty" json:"farmerName,omitempty"`
	FarmerPhone   string      `bson:"farmerPhone,omitempty" json:"farmerPhone,omitempty"`
	WasteType     string      `bson:"wasteType" json:"wasteType"`
	QuantityKg    float64     `bson:"quantityKg" json:"quantityKg"`
	MoistureLevel string      `bson:"moistureLevel,omitempty" json:"moistureLevel,omitempty"`
	Season        string      `bson:"season,omitempty" json:"season,omitempty"`
	Location      Location    `bson:"location" json:"location"`
	PhotoURL      string      `bson:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	Status        BatchStatus `bson:"status" json:"status"`
	Generation    int         `bson:"generation" json:"generation"`

	MatchID         string   `bson:"matchId,omitempty" json:"matchId,omitempty"`
	MatchedIndustry string   `bson:"matchedIndustry,omitempty" json:"matchedIndustry,omitempty"`
	EstimatedValue  *float64 `bson:"estimatedValue,omitempty" json:"estimatedValue,omitempty"`
	CO2SavedTons    *float64 `bson:"co2SavedTons,omitempty" json:"co2SavedTons,omitempty"`
	PM25PreventedKg *float64 `bson:"pm25PreventedKg,omitempty" json:"pm25PreventedKg,omitempty"`
	AIModel         string   `bson:"aiModel,omitempty" json:"aiModel,omitempty"`
	DecisionSource  string   `bson:"decisionSource,omitempty" json:"decisionSource,omitempty"`
	Error           string   `bson:"error,omitempty" json:"error,omitempty"`

	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	MatchedAt     *time.Time `bson:"matchedAt,omitempty" json:"matchedAt,omitempty"`
	FailedAt      *time.Time `bson:"failedAt,omitempty" json:"failedAt,omitempty"`
	RetriggeredAt *time.Time `bson:"retriggeredAt,omitempty" json:"retriggeredAt,omitempty"`
}
