package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"metrowatch-listener/metrics"
	"metrowatch-listener/models"
)

const (
	// MinQueryLen is the shortest normalized text treated as a query.
	MinQueryLen = 3
	// CloseZoom is the zoom level used when recentering on a match.
	CloseZoom = 15
)

// User-visible error states. Both clear on the next successful lookup or on
// user edit.
const (
	StateNotFound    = "not found"
	StateUnavailable = "unavailable"
)

// Searcher resolves a query to its single best match. *Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string) (*Match, error)
}

// Recenterer receives the resolved coordinates. The viewport controller
// implements it.
type Recenterer interface {
	Recenter(pos models.LatLng, zoom int)
}

// SearchController turns free-text input into viewport recenter commands.
// Keystrokes are debounced behind a quiet period; at most one timer is
// pending at a time, and a generation counter guards against a slow, stale
// response overwriting state produced by newer input.
type SearchController struct {
	searcher  Searcher
	viewport  Recenterer
	qualifier string
	debounce  time.Duration

	mu       sync.Mutex
	text     string
	errState string
	timer    *time.Timer
	gen      uint64
	inFlight bool
	closed   bool
	onState  func(state string)
}

// NewSearchController creates a search controller. A zero debounce selects
// the standard one second quiet period.
func NewSearchController(searcher Searcher, viewport Recenterer, qualifier string, debounce time.Duration) *SearchController {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &SearchController{
		searcher:  searcher,
		viewport:  viewport,
		qualifier: qualifier,
		debounce:  debounce,
	}
}

// OnStateChange registers a listener invoked whenever the user-visible
// error state transitions. An empty state means the message cleared.
func (c *SearchController) OnStateChange(fn func(state string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnQueryChange records a keystroke. It clears any error state, cancels the
// pending lookup and, once the normalized text is long enough, schedules a
// new lookup after the quiet period.
func (c *SearchController) OnQueryChange(text string) {
	c.mu.Lock()

	c.text = text
	cleared := c.errState != ""
	c.errState = ""
	c.gen++
	c.stopTimerLocked()

	if c.closed {
		c.mu.Unlock()
		return
	}

	norm := strings.TrimSpace(text)
	if len(norm) >= MinQueryLen {
		gen := c.gen
		c.timer = time.AfterFunc(c.debounce, func() {
			c.lookup(gen, norm)
		})
	}
	notify := c.onState
	c.mu.Unlock()

	if cleared && notify != nil {
		notify("")
	}
}

// OnSubmit issues the lookup immediately on the calling goroutine, skipping
// the quiet period. Text shorter than the query threshold is ignored.
func (c *SearchController) OnSubmit(text string) {
	c.mu.Lock()
	c.text = text
	c.errState = ""
	c.gen++
	c.stopTimerLocked()

	norm := strings.TrimSpace(text)
	if c.closed || len(norm) < MinQueryLen {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	c.lookup(gen, norm)
}

// Err returns the current user-visible error state, empty when none.
func (c *SearchController) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errState
}

// Query returns the raw text of the last keystroke or submit.
func (c *SearchController) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Close cancels any pending lookup and invalidates in-flight responses. The
// controller ignores all input afterwards.
func (c *SearchController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.stopTimerLocked()
}

func (c *SearchController) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// lookup performs one geocode request for the given generation. The result
// is applied only while that generation is still current; anything else is
// discarded silently.
func (c *SearchController) lookup(gen uint64, norm string) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.mu.Unlock()

	query := BuildQuery(norm, c.qualifier)
	match, err := c.searcher.Search(context.Background(), query)

	c.mu.Lock()
	c.inFlight = false
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		metrics.GeocodeLookupsTotal.WithLabelValues("stale").Inc()
		return
	}

	var state, result string
	switch {
	case err == nil:
		state, result = "", "ok"
	case errors.Is(err, ErrNoMatch):
		state, result = StateNotFound, "not_found"
		log.Infof("geocode: no match for %q", query)
	default:
		state, result = StateUnavailable, "unavailable"
		log.Warnf("geocode: lookup for %q failed: %v", query, err)
	}
	changed := c.errState != state
	c.errState = state
	notify := c.onState
	c.mu.Unlock()

	metrics.GeocodeLookupsTotal.WithLabelValues(result).Inc()
	if err == nil {
		c.viewport.Recenter(models.LatLng{Lat: match.Lat, Lng: match.Lon}, CloseZoom)
	}
	if changed && notify != nil {
		notify(state)
	}
}
