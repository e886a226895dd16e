package models

// Requests for the status API.

type AlertsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=200"`
}

type TickRequest struct {
	Trigger string `query:"trigger" json:"trigger" default:"manual" validate:"max=64"`
}
