package squarehandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"townsquare/internal/services/directory"
	"townsquare/internal/services/geo"
)

type Handler struct {
	dir         directory.IDirectoryService
	geo         geo.IGeoService
	defaultCity string
	nearbyLimit int
}

func New(dir directory.IDirectoryService, geoSvc geo.IGeoService, defaultCity string, nearbyLimit int) *Handler {
	return &Handler{
		dir:         dir,
		geo:         geoSvc,
		defaultCity: defaultCity,
		nearbyLimit: nearbyLimit,
	}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.health)
	r.GET("/api/config", h.config)
	r.GET("/api/cities", h.cities)
	r.GET("/api/circles/:city", h.circles)
	r.GET("/api/nearby", h.nearby)
}

// health is a process-wide liveness signal; it says nothing about
// individual rooms.
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// config serves the landing client its defaults.
func (h *Handler) config(c *gin.Context) {
	c.JSON(http.StatusOK, ConfigResponse{DefaultCity: h.defaultCity})
}

// cities returns the static, ordered city list.
func (h *Handler) cities(c *gin.Context) {
	c.JSON(http.StatusOK, CitiesResponse{Cities: h.dir.Cities()})
}

// circles returns the ordered circle presets for one city.
func (h *Handler) circles(c *gin.Context) {
	circles, err := h.dir.Circles(c.Param("city"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid_room"})
		return
	}
	c.JSON(http.StatusOK, CirclesResponse{Circles: circles})
}

// nearby suggests the closest configured cities to the given coordinates.
func (h *Handler) nearby(c *gin.Context) {
	var q NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_coordinate"})
		return
	}
	suggestions, err := h.geo.Nearest(*q.Lat, *q.Lon, h.nearbyLimit)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_coordinate"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, NearbyResponse{Nearby: suggestions})
}
