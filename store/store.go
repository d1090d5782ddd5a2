// Package store holds the authoritative in-memory report collection. All
// mutations go through ApplySnapshot and ApplyChange; every other component
// reads immutable snapshots.
package store

import (
	"sync"

	"github.com/apex/log"

	"metrowatch-listener/metrics"
	"metrowatch-listener/models"
)

// Store is the in-memory report collection, keyed by report id. Collection
// order is bulk-load order; inserts append, updates replace in place and
// deletes compact. One live entry per id at all times.
type Store struct {
	mu      sync.RWMutex
	reports []models.Report
	index   map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// ApplySnapshot replaces the entire collection with the bulk-loaded records,
// preserving their order. Later duplicates of an id win over earlier ones.
func (s *Store) ApplySnapshot(records []models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = make([]models.Report, 0, len(records))
	s.index = make(map[string]int, len(records))
	for _, r := range records {
		if i, ok := s.index[r.ID]; ok {
			s.reports[i] = r
			continue
		}
		s.index[r.ID] = len(s.reports)
		s.reports = append(s.reports, r)
	}

	metrics.ReportCount.Set(float64(len(s.reports)))
	log.Infof("store: snapshot applied, %d reports", len(s.reports))
}

// ApplyChange projects one change event onto the collection:
//
//	insert: append; an already-present id is replaced (last write wins)
//	update: replace by id; an absent id is inserted (fail-open)
//	delete: remove by id; an absent id is a no-op
//
// A malformed event (no report id) is dropped and reported via the returned
// error; it never panics and never mutates the collection. The returned bool
// is true when the collection changed.
func (s *Store) ApplyChange(ev models.ChangeEvent) (bool, error) {
	id := ev.TargetID()
	if id == "" {
		metrics.EventsDroppedTotal.Inc()
		return false, models.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case models.EventInsert, models.EventUpdate:
		if ev.New == nil {
			metrics.EventsDroppedTotal.Inc()
			return false, models.ErrMissingID
		}
		if i, ok := s.index[id]; ok {
			s.reports[i] = *ev.New
		} else {
			s.index[id] = len(s.reports)
			s.reports = append(s.reports, *ev.New)
		}
	case models.EventDelete:
		i, ok := s.index[id]
		if !ok {
			return false, nil
		}
		s.reports = append(s.reports[:i], s.reports[i+1:]...)
		delete(s.index, id)
		for j := i; j < len(s.reports); j++ {
			s.index[s.reports[j].ID] = j
		}
	default:
		log.Warnf("store: unknown event kind %q for report %s, dropped", ev.Kind, id)
		metrics.EventsDroppedTotal.Inc()
		return false, nil
	}

	metrics.EventsAppliedTotal.WithLabelValues(ev.Kind).Inc()
	metrics.ReportCount.Set(float64(len(s.reports)))
	return true, nil
}

// Snapshot returns a copy of the collection in its current order. The caller
// may keep or modify the slice freely.
func (s *Store) Snapshot() []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// Get returns the report with the given id, if present.
func (s *Store) Get(id string) (models.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.Report{}, false
	}
	return s.reports[i], true
}

// Len returns the current collection size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
