package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"metrowatch-listener/database"
	"metrowatch-listener/geocode"
	"metrowatch-listener/models"
	"metrowatch-listener/store"
	ws "metrowatch-listener/websocket"
)

func newTestHandlers(t *testing.T, reports []models.Report) (*Handlers, sqlmock.Sqlmock, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "Nowhere") {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"lat":"14.5547","lon":"121.0244","display_name":"Makati"}]`))
	}))
	t.Cleanup(geoSrv.Close)

	st := store.New()
	st.ApplySnapshot(reports)

	h := NewHandlers(
		ws.NewHub(),
		database.NewDatabaseFromConn(db),
		st,
		geocode.NewClient(geoSrv.URL, 2*time.Second),
		"Metro Manila, Philippines",
		time.Second,
		func() string { return "connected" },
	)
	return h, mock, geoSrv
}

func perform(h *Handlers, method, target, body string) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/api/v3/reports", h.GetReports)
	router.GET("/api/v3/reports/markers", h.GetMarkers)
	router.POST("/api/v3/reports/:id/status", h.UpdateStatus)
	router.GET("/api/v3/geocode", h.Geocode)
	router.GET("/api/v3/reports/health", h.HealthCheck)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var testReports = []models.Report{
	{ID: "r1", Severity: "high", Category: "Traffic", Latitude: "14.60", Longitude: "120.98", Description: "stalled truck"},
	{ID: "r2", Severity: "low", Category: "Traffic", Description: "minor jam"},
	{ID: "r3", Severity: "high", Category: "Flooding", Latitude: "14.52", Longitude: "121.05"},
}

func TestGetReportsFiltering(t *testing.T) {
	h, _, _ := newTestHandlers(t, testReports)

	w := perform(h, http.MethodGet, "/api/v3/reports?severity=high&category=Traffic", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Reports []models.Report `json:"reports"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Count != 1 || resp.Reports[0].ID != "r1" {
		t.Errorf("filtered result = %+v", resp)
	}
}

func TestGetReportsRejectsBadDateRange(t *testing.T) {
	h, _, _ := newTestHandlers(t, testReports)

	w := perform(h, http.MethodGet, "/api/v3/reports?date_range=fortnight", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetMarkersSkipsUnlocatedReports(t *testing.T) {
	h, _, _ := newTestHandlers(t, testReports)

	w := perform(h, http.MethodGet, "/api/v3/reports/markers", "")
	var resp struct {
		Markers []models.Marker `json:"markers"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("marker count = %d, want 2 (r2 has no position)", resp.Count)
	}
}

func TestUpdateStatus(t *testing.T) {
	h, mock, _ := newTestHandlers(t, testReports)

	mock.ExpectExec("UPDATE reports SET status = (.+) WHERE report_id = (.+)").
		WithArgs("resolved", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM reports r LEFT JOIN users u ON r.user_id = u.id WHERE r.report_id = (.+)").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{
			"report_id", "latitude", "longitude", "severity", "category",
			"description", "date", "time", "location", "url", "upvote", "status",
			"name",
		}).AddRow("r1", "14.60", "120.98", "high", "Traffic",
			"stalled truck", "2024-06-01", nil, "EDSA", nil, 3, "resolved", "Juan"))

	w := perform(h, http.MethodPost, "/api/v3/reports/r1/status",
		`{"status":"resolved","comment":"crew dispatched"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Report models.Report `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Report.Status != "resolved" {
		t.Errorf("status = %q", resp.Report.Status)
	}
	if len(resp.Report.Comments) != 1 || resp.Report.Comments[0].Text != "crew dispatched" {
		t.Errorf("comment annotation missing: %+v", resp.Report.Comments)
	}

	// The local collection only changes when the update comes back on the
	// change stream.
	if got, _ := h.store.Get("r1"); got.Status == "resolved" {
		t.Error("status update mutated the store directly")
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	h, _, _ := newTestHandlers(t, testReports)

	w := perform(h, http.MethodPost, "/api/v3/reports/r1/status", `{"status":"solved"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGeocodeEndpoint(t *testing.T) {
	h, _, _ := newTestHandlers(t, nil)

	w := perform(h, http.MethodGet, "/api/v3/geocode?q=Makati", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Position models.LatLng `json:"position"`
		Zoom     int           `json:"zoom"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Position.Lat != 14.5547 || resp.Zoom != geocode.CloseZoom {
		t.Errorf("response = %+v", resp)
	}

	w = perform(h, http.MethodGet, "/api/v3/geocode?q=Nowhere", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("no-match status = %d, want 404", w.Code)
	}

	w = perform(h, http.MethodGet, "/api/v3/geocode?q=ab", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("short-query status = %d, want 400", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	h, _, _ := newTestHandlers(t, testReports)

	w := perform(h, http.MethodGet, "/api/v3/reports/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Connectivity != "connected" || resp.ReportCount != 3 {
		t.Errorf("health = %+v", resp)
	}
}
