// Package filterengine derives an ordered subsequence of the report
// collection from a set of filter criteria. It is a pure function of its
// inputs: no side effects, no stored state.
package filterengine

import (
	"math"
	"strings"
	"time"

	"metrowatch-listener/models"
)

// Apply filters reports against the criteria, evaluating the date range
// against the current time. Output order equals input order.
func Apply(reports []models.Report, c models.FilterCriteria) []models.Report {
	return ApplyAt(reports, c, time.Now())
}

// ApplyAt is Apply with an explicit "now" for the date-range criterion.
// Criteria compose conjunctively; an unset criterion always matches.
func ApplyAt(reports []models.Report, c models.FilterCriteria, now time.Time) []models.Report {
	out := make([]models.Report, 0, len(reports))
	for i := range reports {
		if Matches(&reports[i], c, now) {
			out = append(out, reports[i])
		}
	}
	return out
}

// Matches reports whether a single record satisfies every active criterion.
func Matches(r *models.Report, c models.FilterCriteria, now time.Time) bool {
	if c.Severity != "" && !strings.EqualFold(r.Severity, c.Severity) {
		return false
	}
	if c.Category != "" && r.Category != c.Category {
		return false
	}
	if c.DateRange != models.RangeNone && !matchesRange(r, c.DateRange, now) {
		return false
	}
	if q := strings.TrimSpace(c.Query); q != "" && !matchesQuery(r, q) {
		return false
	}
	return true
}

// matchesRange applies the day-granularity recency check. Records with a
// missing or invalid date fail open. The difference is floor((now - date) in
// days), so a future-dated record yields a negative difference and passes
// every upper bound; that asymmetry comes straight from the comparison
// direction and is kept on purpose.
func matchesRange(r *models.Report, dateRange string, now time.Time) bool {
	occurred, ok := r.OccurredAt()
	if !ok {
		return true
	}

	daysDiff := int(math.Floor(now.Sub(occurred).Hours() / 24))

	switch dateRange {
	case models.RangeToday:
		return daysDiff == 0
	case models.RangeWeek:
		return daysDiff <= 7
	case models.RangeMonth:
		return daysDiff <= 30
	default:
		return true
	}
}

// matchesQuery runs the case-insensitive substring match across the text
// fields. A record with no text fields present cannot match.
func matchesQuery(r *models.Report, query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{r.Location, r.Description, r.Category, r.Severity, r.Author} {
		if field == "" {
			continue
		}
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
