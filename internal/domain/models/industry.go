package models

// PriceRange is an industry's offered price band in INR per kilogram.
type PriceRange struct {
	Min float64 `bson:"min" json:"min"`
	Max float64 `bson:"max" json:"max"`
}

// Midpoint returns the centre of the band, or 0 when the band is unset.
func (p PriceRange) Midpoint() float64 {
	if p.Min <= 0 && p.Max <= 0 {
		return 0
	}
	if p.Min <= 0 {
		return p.Max
	}
	if p.Max <= 0 {
		return p.Min
	}
	return (p.Min + p.Max) / 2
}

// Industry is a downstream consumer of agricultural waste. Read-only to the engine.
type Industry struct {
	ID                  string     `bson:"_id" json:"id"`
	Name                string     `bson:"name" json:"name"`
	Type                string     `bson:"type,omitempty" json:"type,omitempty"`
	Location            Location   `bson:"location" json:"location"`
	DemandKg            float64    `bson:"demandKg,omitempty" json:"demandKg,omitempty"`
	CapacityKgPerMonth  float64    `bson:"capacity_kg_per_month,omitempty" json:"capacity_kg_per_month,omitempty"`
	PreferredWasteTypes []string   `bson:"preferredWasteTypes,omitempty" json:"preferredWasteTypes,omitempty"`
	PriceRange          PriceRange `bson:"priceRange" json:"priceRange"`
	Description         string     `bson:"description,omitempty" json:"description,omitempty"`
	Contact             string     `bson:"contact,omitempty" json:"contact,omitempty"`
	IsActive            bool       `bson:"isActive" json:"isActive"`
}

// MonthlyCapacityKg returns the monthly demand, preferring demandKg. Zero means unspecified.
func (i Industry) MonthlyCapacityKg() float64 {
	if i.DemandKg > 0 {
		return i.DemandKg
	}
	return i.CapacityKgPerMonth
}

// Candidate is an eligible industry together with its distance to the submission.
type Candidate struct {
	Industry   Industry `json:"industry"`
	DistanceKm float64  `json:"distanceKm"`
}
