// Package geocode resolves free-text location queries to coordinates via
// Nominatim and schedules lookups behind a keystroke debounce.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the public Nominatim API endpoint
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// UserAgent is required by Nominatim usage policy
	UserAgent = "MetroWatch/1.0 (https://metrowatch.example)"
	// Rate limit: 1 request per second for Nominatim
	minRequestInterval = time.Second
)

// ErrNoMatch is returned when the query resolves to zero places.
var ErrNoMatch = errors.New("geocode: no match for query")

// Match is the single best match for a query.
type Match struct {
	Lat         float64
	Lon         float64
	DisplayName string
}

// Client handles Nominatim forward geocoding with rate limiting.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	lastRequest   time.Time
	rateLimitLock sync.Mutex
}

// NewClient creates a geocoding client. An empty baseURL selects the public
// Nominatim endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// nominatimPlace is one entry of the Nominatim /search response.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// enforceRateLimit ensures we don't exceed Nominatim's rate limit
func (c *Client) enforceRateLimit() {
	c.rateLimitLock.Lock()
	defer c.rateLimitLock.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestInterval {
		time.Sleep(minRequestInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

// Search resolves a free-text query to its single best match. It returns
// ErrNoMatch when the service answers with zero places and a wrapped
// transport error otherwise.
func (c *Client) Search(ctx context.Context, query string) (*Match, error) {
	c.enforceRateLimit()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("nominatim returned status %d: %s", resp.StatusCode, string(body))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(places) == 0 {
		return nil, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("bad latitude %q in response: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("bad longitude %q in response: %w", places[0].Lon, err)
	}

	return &Match{Lat: lat, Lon: lon, DisplayName: places[0].DisplayName}, nil
}

// BuildQuery appends the disambiguating region qualifier unless the text
// already mentions its leading part (e.g. "Metro Manila").
func BuildQuery(text, qualifier string) string {
	text = strings.TrimSpace(text)
	if qualifier == "" {
		return text
	}
	leading := qualifier
	if i := strings.Index(qualifier, ","); i > 0 {
		leading = qualifier[:i]
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(leading))) {
		return text
	}
	return text + ", " + qualifier
}
