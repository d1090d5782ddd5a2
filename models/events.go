package models

import (
	"errors"
	"time"
)

// Change event kinds as delivered by the change stream.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// ErrMissingID marks a change event that carries no report identifier.
// Such events are dropped by the store, never propagated as fatal errors.
var ErrMissingID = errors.New("change event has no report id")

// ReportRef identifies a report on delete events, where only the old row's
// key is delivered.
type ReportRef struct {
	ID string `json:"report_id"`
}

// ChangeEvent is one insert/update/delete notification describing a single
// mutation to a single report.
type ChangeEvent struct {
	Kind string     `json:"kind"`
	New  *Report    `json:"new,omitempty"`
	Old  *ReportRef `json:"old,omitempty"`
}

// TargetID returns the report id the event applies to, preferring the new
// row and falling back to the old row's key.
func (e *ChangeEvent) TargetID() string {
	if e.New != nil && e.New.ID != "" {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

// Date range filter values.
const (
	RangeNone  = ""
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"
)

// FilterCriteria is owned by the caller of the filter engine. An empty
// criterion always matches.
type FilterCriteria struct {
	Severity  string `form:"severity" json:"severity"`
	Category  string `form:"category" json:"category"`
	DateRange string `form:"date_range" json:"date_range"`
	Query     string `form:"q" json:"q"`
}

// Active reports whether any criterion is set.
func (c FilterCriteria) Active() bool {
	return c.Severity != "" || c.Category != "" || c.DateRange != "" || c.Query != ""
}

// Marker is the map rendering payload for one report with a valid position.
type Marker struct {
	ReportID string `json:"report_id"`
	Position LatLng `json:"position"`
	IconKey  string `json:"icon"`
	Tooltip  string `json:"tooltip"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	ImageURL string `json:"url,omitempty"`
	Occurred string `json:"occurred"`
	Upvotes  int    `json:"upvote"`
}

// MarkerFor builds the marker payload for a report. The second return value
// is false when the report has no usable position.
func MarkerFor(r *Report) (Marker, bool) {
	pos, ok := r.Position()
	if !ok {
		return Marker{}, false
	}
	tooltip := r.Description
	if tooltip == "" {
		tooltip = r.Location
	}
	if tooltip == "" {
		tooltip = "Report"
	}
	return Marker{
		ReportID: r.ID,
		Position: pos,
		IconKey:  SeverityIconKey(r.Severity),
		Tooltip:  tooltip,
		Severity: r.Severity,
		Category: r.Category,
		ImageURL: r.ImageURL,
		Occurred: r.FormatOccurredAt(),
		Upvotes:  r.Upvotes,
	}, true
}

// BroadcastMessage is the envelope sent to WebSocket clients.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChangeBroadcast carries one reconciled change to listening clients.
type ChangeBroadcast struct {
	Kind     string  `json:"kind"`
	ReportID string  `json:"report_id"`
	Report   *Report `json:"report,omitempty"`
	Marker   *Marker `json:"marker,omitempty"`
	Total    int     `json:"total"`
}

// SnapshotBroadcast carries the full collection to a newly connected client.
type SnapshotBroadcast struct {
	Reports []Report `json:"reports"`
	Markers []Marker `json:"markers"`
	Count   int      `json:"count"`
	Status  string   `json:"status"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	Connectivity     string `json:"connectivity"`
	ConnectedClients int    `json:"connected_clients"`
	ReportCount      int    `json:"report_count"`
}
