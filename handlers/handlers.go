package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"metrowatch-listener/database"
	"metrowatch-listener/filterengine"
	"metrowatch-listener/geocode"
	"metrowatch-listener/models"
	"metrowatch-listener/store"
	ws "metrowatch-listener/websocket"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	hub      *ws.Hub
	db       *database.Database
	store    *store.Store
	geocoder *geocode.Client

	qualifier      string
	searchDebounce time.Duration
	connectivity   func() string
}

// NewHandlers creates a new handlers instance
func NewHandlers(hub *ws.Hub, db *database.Database, st *store.Store, geocoder *geocode.Client,
	qualifier string, searchDebounce time.Duration, connectivity func() string) *Handlers {
	return &Handlers{
		hub:            hub,
		db:             db,
		store:          st,
		geocoder:       geocoder,
		qualifier:      qualifier,
		searchDebounce: searchDebounce,
		connectivity:   connectivity,
	}
}

// GetReports handles GET /api/v3/reports. Filter criteria arrive as query
// parameters; the response preserves collection order.
func (h *Handlers) GetReports(c *gin.Context) {
	var criteria models.FilterCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter criteria"})
		return
	}

	switch criteria.DateRange {
	case models.RangeNone, models.RangeToday, models.RangeWeek, models.RangeMonth:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_range must be one of today, week, month"})
		return
	}

	reports := filterengine.Apply(h.store.Snapshot(), criteria)
	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"count":   len(reports),
	})
}

// GetMarkers handles GET /api/v3/reports/markers: the map payload for every
// filtered report with a usable position.
func (h *Handlers) GetMarkers(c *gin.Context) {
	var criteria models.FilterCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter criteria"})
		return
	}

	reports := filterengine.Apply(h.store.Snapshot(), criteria)
	markers := make([]models.Marker, 0, len(reports))
	for i := range reports {
		if m, ok := models.MarkerFor(&reports[i]); ok {
			markers = append(markers, m)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"markers": markers,
		"count":   len(markers),
	})
}

// GetCategories handles GET /api/v3/categories: the static category
// enumeration consumed by filter controls.
func (h *Handlers) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.Categories})
}

// statusUpdateRequest is the payload for a report status update.
type statusUpdateRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment"`
	Author  string `json:"author"`
}

// UpdateStatus handles POST /api/v3/reports/:id/status. On failure the
// in-memory collection is untouched so the caller can retry; on success the
// store still only changes once the update comes back on the change stream.
func (h *Handlers) UpdateStatus(c *gin.Context) {
	id := c.Param("id")

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if !models.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	updated, err := h.db.UpdateReportStatus(c.Request.Context(), id, req.Status)
	if errors.Is(err, database.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		log.Errorf("status update for %s failed: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "status update failed"})
		return
	}

	// The comment is an ephemeral local annotation, echoed back to the
	// caller but never persisted or broadcast.
	if req.Comment != "" {
		author := req.Author
		if author == "" {
			author = "Moderator"
		}
		updated.Comments = append(updated.Comments, models.Comment{
			Text:      req.Comment,
			Author:    author,
			Timestamp: time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"report": updated})
}

// Geocode handles GET /api/v3/geocode?q=. It resolves the query to its
// single best match with the region qualifier applied, for callers that do
// not hold a WebSocket session.
func (h *Handlers) Geocode(c *gin.Context) {
	q := c.Query("q")
	if len(q) < geocode.MinQueryLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query too short"})
		return
	}

	match, err := h.geocoder.Search(c.Request.Context(), geocode.BuildQuery(q, h.qualifier))
	if errors.Is(err, geocode.ErrNoMatch) {
		c.JSON(http.StatusNotFound, gin.H{"error": geocode.StateNotFound})
		return
	}
	if err != nil {
		log.Warnf("geocode lookup failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": geocode.StateUnavailable})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"position":     models.LatLng{Lat: match.Lat, Lng: match.Lon},
		"display_name": match.DisplayName,
		"zoom":         geocode.CloseZoom,
	})
}

// HealthCheck handles GET /api/v3/reports/health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "healthy",
		Service:          "metrowatch-listener",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Connectivity:     h.connectivity(),
		ConnectedClients: h.hub.GetStats(),
		ReportCount:      h.store.Len(),
	})
}
