package squarehandler

import "townsquare/internal/services/geo"

// Pointers keep "lat=0" distinguishable from a missing parameter.
type NearbyQuery struct {
	Lat *float64 `form:"lat" binding:"required"`
	Lon *float64 `form:"lon" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type ConfigResponse struct {
	DefaultCity string `json:"default_city" example:"konigsbrunn"`
}

type CitiesResponse struct {
	Cities []string `json:"cities"`
}

type CirclesResponse struct {
	Circles []string `json:"circles"`
}

type NearbyResponse struct {
	Nearby []geo.Suggestion `json:"nearby"`
}
