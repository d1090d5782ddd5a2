package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, 2*time.Second), srv
}

func TestSearchBestMatch(t *testing.T) {
	var gotQuery string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("limit = %q, want 1", r.URL.Query().Get("limit"))
		}
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`[{"lat":"14.5547","lon":"121.0244","display_name":"Makati, Metro Manila"}]`))
	})
	defer srv.Close()

	match, err := c.Search(context.Background(), "Makati, Metro Manila, Philippines")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "Makati, Metro Manila, Philippines" {
		t.Errorf("query sent = %q", gotQuery)
	}
	if match.Lat != 14.5547 || match.Lon != 121.0244 {
		t.Errorf("match = %+v", match)
	}
}

func TestSearchNoMatch(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), "xyzzy")
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}

func TestSearchTransportError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), "Makati")
	if err == nil || errors.Is(err, ErrNoMatch) {
		t.Errorf("err = %v, want a transport error", err)
	}
}

func TestBuildQuery(t *testing.T) {
	testCases := []struct {
		text, qualifier, want string
	}{
		{"Makati", "Metro Manila, Philippines", "Makati, Metro Manila, Philippines"},
		{"Quiapo, Metro Manila", "Metro Manila, Philippines", "Quiapo, Metro Manila"},
		{"quiapo metro manila", "Metro Manila, Philippines", "quiapo metro manila"},
		{"  Makati  ", "", "Makati"},
	}
	for _, tc := range testCases {
		if got := BuildQuery(tc.text, tc.qualifier); got != tc.want {
			t.Errorf("BuildQuery(%q, %q) = %q, want %q", tc.text, tc.qualifier, got, tc.want)
		}
	}
}
