package models

import (
	"strconv"
	"strings"
	"time"
)

// Report represents one citizen report as served by the backend.
// Latitude and longitude arrive as free-form strings and are not guaranteed
// to parse; records without a usable position stay in the list view but are
// excluded from map rendering.
type Report struct {
	ID          string `json:"report_id"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Location    string `json:"location"`
	ImageURL    string `json:"url,omitempty"`
	Author      string `json:"author"`
	Upvotes     int    `json:"upvote"`
	Status      string `json:"status"`

	// Comments are local-only annotations attached when a moderator updates
	// the report status. They are never persisted by the backend and are not
	// carried on change events.
	Comments []Comment `json:"comments,omitempty"`
}

// Comment is an ephemeral annotation appended alongside a status update.
type Comment struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// LatLng is a parsed coordinate pair in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Position parses the report coordinates. The second return value is false
// when either coordinate is absent or unparsable.
func (r *Report) Position() (LatLng, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
	if err != nil {
		return LatLng{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
	if err != nil {
		return LatLng{}, false
	}
	return LatLng{Lat: lat, Lng: lng}, true
}

// occurredAtLayouts are tried in order when parsing the report date. Dates
// come as YYYY-MM-DD with an optional HH:MM:SS time of day.
var occurredAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// OccurredAt parses the report date, combining it with the time of day when
// one is present. The second return value is false for missing or invalid
// dates; range filters treat those records as always matching.
func (r *Report) OccurredAt() (time.Time, bool) {
	if r.Date == "" {
		return time.Time{}, false
	}
	s := r.Date
	if r.Time != "" {
		s = r.Date + "T" + r.Time
	}
	for _, layout := range occurredAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// A bad time of day should not invalidate a good date.
	if t, err := time.Parse("2006-01-02", r.Date); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FormatOccurredAt renders the report date for list and popup payloads,
// e.g. "Jan 2, 2006" or "Jan 2, 2006 3:04 PM" when a time of day is present.
func (r *Report) FormatOccurredAt() string {
	t, ok := r.OccurredAt()
	if !ok {
		return r.Date
	}
	if r.Time != "" {
		return t.Format("Jan 2, 2006 3:04 PM")
	}
	return t.Format("Jan 2, 2006")
}

// Report statuses form a fixed lifecycle. Unknown values coming off the wire
// are kept verbatim.
const (
	StatusPending     = "pending"
	StatusNotResolved = "not resolved"
	StatusOngoing     = "ongoing"
	StatusResolved    = "resolved"
	StatusDismissed   = "dismissed"
)

// StatusLabels maps lifecycle statuses to their display labels.
var StatusLabels = map[string]string{
	StatusPending:     "Pending",
	StatusNotResolved: "Not Resolved",
	StatusOngoing:     "Ongoing",
	StatusResolved:    "Resolved",
	StatusDismissed:   "Dismissed",
}

// ValidStatus reports whether s is one of the lifecycle statuses.
func ValidStatus(s string) bool {
	_, ok := StatusLabels[s]
	return ok
}

// Categories is the closed category enumeration, including the catch-all.
// Category filtering matches these values verbatim.
var Categories = []string{
	"Garbage",
	"Traffic",
	"Flooding",
	"Vandalism",
	"Noise Pollution",
	"Road Damage",
	"Illegal Parking",
	"Street Lighting",
	"Stray Animals",
	"Others",
}

// SeverityIconKey maps a report severity to the marker icon key used by map
// clients. Comparison is case-insensitive; anything unrecognized gets the
// default icon.
func SeverityIconKey(severity string) string {
	switch strings.ToLower(severity) {
	case "high", "medium", "low":
		return strings.ToLower(severity)
	default:
		return "default"
	}
}
