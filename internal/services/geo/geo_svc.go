package geo

import (
	"errors"
	"math"
	"sort"

	"townsquare/internal/services/directory"
)

var ErrInvalidCoordinate = errors.New("latitude or longitude out of range")

const earthRadiusKm = 6371.0

// Suggestion is one nearby-city candidate.
type Suggestion struct {
	City       string  `json:"city"`
	DistanceKm float64 `json:"distance_km"`
}

type IGeoService interface {
	// Nearest returns up to k cities ordered by ascending great-circle
	// distance from (lat, lon). Ties break on city name.
	Nearest(lat, lon float64, k int) ([]Suggestion, error)
}

type geoService struct {
	dir directory.IDirectoryService
}

func NewGeoService(dir directory.IDirectoryService) IGeoService {
	return &geoService{dir: dir}
}

func (svc *geoService) Nearest(lat, lon float64, k int) ([]Suggestion, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, ErrInvalidCoordinate
	}
	cities := svc.dir.Cities()
	out := make([]Suggestion, 0, len(cities))
	for _, city := range cities {
		center, ok := svc.dir.Center(city)
		if !ok {
			continue
		}
		out = append(out, Suggestion{
			City: city,
			// one decimal, as served to clients
			DistanceKm: math.Round(haversineKm(lat, lon, center.Lat, center.Lon)*10) / 10,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].City < out[j].City
	})
	if k < 0 {
		k = 0
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := rad(lat2 - lat1)
	dlon := rad(lon2 - lon1)
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
