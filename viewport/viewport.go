// Package viewport derives a bounding region from the visible reports and
// issues idempotent fit/center commands to the map collaborator.
package viewport

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/golang/geo/s2"

	"metrowatch-listener/models"
)

// Default viewport over Metro Manila.
var (
	DefaultCenter = models.LatLng{Lat: 14.5995, Lng: 120.9842}
)

const (
	DefaultZoom = 12
	// FitPadding is the pixel padding applied around fitted bounds.
	FitPadding = 24
)

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	SouthWest models.LatLng `json:"south_west"`
	NorthEast models.LatLng `json:"north_east"`
}

// Commander is the imperative surface of the map collaborator.
type Commander interface {
	SetView(center models.LatLng, zoom int)
	FitBounds(bounds Bounds, padding int)
}

// Controller issues map commands for the current set of visible positions.
// FitToVisible is recomputed only when that set changes; an unchanged set
// issues no command.
type Controller struct {
	commander Commander

	mu      sync.Mutex
	lastFit uint64
}

// NewController creates a viewport controller over the given map commander.
func NewController(commander Commander) *Controller {
	return &Controller{commander: commander}
}

// Recenter issues a single setView command, e.g. for a geocode match.
func (c *Controller) Recenter(pos models.LatLng, zoom int) {
	c.commander.SetView(pos, zoom)
}

// FitToVisible derives the bounding box of all reports with a valid position
// and issues one fitBounds command. With zero valid positions no command is
// issued and the prior viewport is preserved.
func (c *Controller) FitToVisible(reports []models.Report) {
	bounds, fingerprint, ok := boundsOf(reports)
	if !ok {
		return
	}

	c.mu.Lock()
	unchanged := fingerprint == c.lastFit
	c.lastFit = fingerprint
	c.mu.Unlock()
	if unchanged {
		return
	}

	c.commander.FitBounds(bounds, FitPadding)
}

// BoundsOf returns the bounding box of all valid report positions. The
// second return value is false when no report has a usable position.
func BoundsOf(reports []models.Report) (Bounds, bool) {
	bounds, _, ok := boundsOf(reports)
	return bounds, ok
}

func boundsOf(reports []models.Report) (Bounds, uint64, bool) {
	rect := s2.EmptyRect()
	h := fnv.New64a()
	valid := false

	for i := range reports {
		pos, ok := reports[i].Position()
		if !ok {
			continue
		}
		valid = true
		rect = rect.AddPoint(s2.LatLngFromDegrees(pos.Lat, pos.Lng))
		fmt.Fprintf(h, "%s|%.6f,%.6f;", reports[i].ID, pos.Lat, pos.Lng)
	}
	if !valid {
		return Bounds{}, 0, false
	}

	lo := rect.Lo()
	hi := rect.Hi()
	bounds := Bounds{
		SouthWest: models.LatLng{Lat: lo.Lat.Degrees(), Lng: lo.Lng.Degrees()},
		NorthEast: models.LatLng{Lat: hi.Lat.Degrees(), Lng: hi.Lng.Degrees()},
	}
	return bounds, h.Sum64(), true
}
