package models

// OutboundMessageRequest is a text notification addressed to a WhatsApp number.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}

// CreateBatchRequest is the HTTP payload for a new waste submission.
type CreateBatchRequest struct {
	FarmerID      string   `json:"farmerId" binding:"required"`
	FarmerName    string   `json:"farmerName"`
	FarmerPhone   string   `json:"farmerPhone"`
	WasteType     string   `json:"wasteType" binding:"required"`
	QuantityKg    float64  `json:"quantityKg" binding:"required,gt=0"`
	MoistureLevel string   `json:"moistureLevel"`
	Season        string   `json:"season"`
	Location      Location `json:"location"`
	PhotoURL      string   `json:"photoUrl" binding:"omitempty,url"`
}
