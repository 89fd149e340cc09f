package directory

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrInvalidRoom   = errors.New("unknown city or circle")
	ErrAgeOutOfRange = errors.New("declared age outside circle age band")
)

// Coord is a city center used for nearby suggestions.
type Coord struct {
	Lat float64
	Lon float64
}

// cityCenters holds the static reference coordinates, keyed by normalized
// city name. cityOrder fixes the order the API reports them in.
var (
	cityOrder = []string{"konigsbrunn", "munich", "augsburg", "new_york"}

	cityCenters = map[string]Coord{
		"konigsbrunn": {48.268, 10.889},
		"munich":      {48.137, 11.575},
		"augsburg":    {48.371, 10.898},
		"new_york":    {40.7128, -74.0060},
	}

	// Age bands first, then interest tags. Order is what the API serves.
	cityCircles = map[string][]string{
		"konigsbrunn": {"18-25", "25-35", "35-50", "50+", "parents", "sports"},
		"munich":      {"18-28", "28-35", "35-50", "50+", "students", "newcomers"},
		"augsburg":    {"18-30", "30-45", "45-60", "football", "parents"},
		"new_york":    {"18-25", "25-40", "40+", "expats", "runners"},
	}
)

type IDirectoryService interface {
	// Cities returns the configured city identifiers in a fixed order.
	Cities() []string
	// Center returns a city's reference coordinates.
	Center(city string) (Coord, bool)
	// Circles returns the circle presets for a city, or ErrInvalidRoom.
	Circles(city string) ([]string, error)
	// Normalize validates a (city, circle) pair and returns the room key.
	Normalize(city, circle string) (string, error)
	// ValidateAge checks a declared age against an age-band circle.
	// Interest-tag circles accept any age.
	ValidateAge(city, circle string, declaredAge int) error
}

type directoryService struct{}

func NewDirectoryService() IDirectoryService { return &directoryService{} }

func (svc *directoryService) Cities() []string {
	out := make([]string, len(cityOrder))
	copy(out, cityOrder)
	return out
}

func (svc *directoryService) Center(city string) (Coord, bool) {
	c, ok := cityCenters[sanitize(city)]
	return c, ok
}

func (svc *directoryService) Circles(city string) ([]string, error) {
	circles, ok := cityCircles[sanitize(city)]
	if !ok {
		return nil, ErrInvalidRoom
	}
	out := make([]string, len(circles))
	copy(out, circles)
	return out, nil
}

func (svc *directoryService) Normalize(city, circle string) (string, error) {
	c := sanitize(city)
	circles, ok := cityCircles[c]
	if !ok {
		return "", ErrInvalidRoom
	}
	g := sanitize(circle)
	for _, known := range circles {
		if g == known {
			return c + "/" + g, nil
		}
	}
	return "", ErrInvalidRoom
}

func (svc *directoryService) ValidateAge(city, circle string, declaredAge int) error {
	if _, err := svc.Normalize(city, circle); err != nil {
		return err
	}
	lo, hi, ok := parseAgeBand(sanitize(circle))
	if !ok {
		return nil // interest tag, not an age band
	}
	if declaredAge < lo || declaredAge > hi {
		return ErrAgeOutOfRange
	}
	return nil
}

// sanitize lower-cases, trims and normalizes inner whitespace to
// underscores so "New York" and "new_york" resolve the same.
func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}

// parseAgeBand understands "18-30" (inclusive) and "50+" forms.
func parseAgeBand(s string) (lo, hi int, ok bool) {
	if n, found := strings.CutSuffix(s, "+"); found {
		lo, err := strconv.Atoi(n)
		if err != nil {
			return 0, 0, false
		}
		return lo, 200, true
	}
	lohi := strings.SplitN(s, "-", 2)
	if len(lohi) != 2 {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(lohi[0])
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.Atoi(lohi[1])
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
