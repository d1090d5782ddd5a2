package store

import (
	"errors"
	"fmt"
	"testing"

	"metrowatch-listener/models"
)

func report(id string) *models.Report {
	return &models.Report{ID: id, Description: "report " + id}
}

func TestApplySnapshotReplacesCollection(t *testing.T) {
	s := New()
	s.ApplySnapshot([]models.Report{*report("a"), *report("b")})
	s.ApplySnapshot([]models.Report{*report("c")})

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].ID != "c" {
		t.Errorf("expected snapshot [c], got %v", snap)
	}
}

func TestApplyChangeTransitions(t *testing.T) {
	testCases := []struct {
		name    string
		seed    []models.Report
		event   models.ChangeEvent
		wantIDs []string
		applied bool
	}{
		{
			name:    "insert appends",
			seed:    []models.Report{*report("a")},
			event:   models.ChangeEvent{Kind: models.EventInsert, New: report("b")},
			wantIDs: []string{"a", "b"},
			applied: true,
		},
		{
			name:    "insert on existing id replaces",
			seed:    []models.Report{*report("a"), *report("b")},
			event:   models.ChangeEvent{Kind: models.EventInsert, New: report("a")},
			wantIDs: []string{"a", "b"},
			applied: true,
		},
		{
			name:    "update replaces in place",
			seed:    []models.Report{*report("a"), *report("b")},
			event:   models.ChangeEvent{Kind: models.EventUpdate, New: report("a")},
			wantIDs: []string{"a", "b"},
			applied: true,
		},
		{
			name:    "update on missing id inserts",
			seed:    []models.Report{*report("a")},
			event:   models.ChangeEvent{Kind: models.EventUpdate, New: report("z")},
			wantIDs: []string{"a", "z"},
			applied: true,
		},
		{
			name:    "delete removes by id",
			seed:    []models.Report{*report("a"), *report("b"), *report("c")},
			event:   models.ChangeEvent{Kind: models.EventDelete, Old: &models.ReportRef{ID: "b"}},
			wantIDs: []string{"a", "c"},
			applied: true,
		},
		{
			name:    "delete on missing id is a no-op",
			seed:    []models.Report{*report("a")},
			event:   models.ChangeEvent{Kind: models.EventDelete, Old: &models.ReportRef{ID: "zzz"}},
			wantIDs: []string{"a"},
			applied: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			s.ApplySnapshot(tc.seed)

			applied, err := s.ApplyChange(tc.event)
			if err != nil {
				t.Fatalf("ApplyChange returned error: %v", err)
			}
			if applied != tc.applied {
				t.Errorf("applied = %v, want %v", applied, tc.applied)
			}

			snap := s.Snapshot()
			if len(snap) != len(tc.wantIDs) {
				t.Fatalf("got %d reports, want %d", len(snap), len(tc.wantIDs))
			}
			for i, id := range tc.wantIDs {
				if snap[i].ID != id {
					t.Errorf("reports[%d].ID = %q, want %q", i, snap[i].ID, id)
				}
			}
		})
	}
}

func TestApplyChangeUpdateKeepsPayload(t *testing.T) {
	s := New()
	s.ApplySnapshot([]models.Report{{ID: "a", Status: "pending"}})

	_, err := s.ApplyChange(models.ChangeEvent{
		Kind: models.EventUpdate,
		New:  &models.Report{ID: "a", Status: "resolved"},
	})
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	got, ok := s.Get("a")
	if !ok || got.Status != "resolved" {
		t.Errorf("got %+v, want status resolved", got)
	}
}

func TestApplyChangeMalformedEventDropped(t *testing.T) {
	s := New()
	s.ApplySnapshot([]models.Report{*report("a")})

	testCases := []models.ChangeEvent{
		{Kind: models.EventInsert},
		{Kind: models.EventUpdate, New: &models.Report{}},
		{Kind: models.EventDelete},
	}

	for _, ev := range testCases {
		applied, err := s.ApplyChange(ev)
		if applied {
			t.Errorf("malformed %s event was applied", ev.Kind)
		}
		if !errors.Is(err, models.ErrMissingID) {
			t.Errorf("%s event: err = %v, want ErrMissingID", ev.Kind, err)
		}
	}

	if s.Len() != 1 {
		t.Errorf("collection size changed to %d after malformed events", s.Len())
	}
}

// Replaying an arbitrary event sequence must leave the store holding exactly
// the ids a reference map would hold.
func TestProjectionMatchesReferenceMap(t *testing.T) {
	kinds := []string{models.EventInsert, models.EventUpdate, models.EventDelete}
	ids := []string{"a", "b", "c", "d"}

	var events []models.ChangeEvent
	for i := 0; i < 64; i++ {
		kind := kinds[i%len(kinds)]
		id := ids[(i*7+i/3)%len(ids)]
		ev := models.ChangeEvent{Kind: kind}
		if kind == models.EventDelete {
			ev.Old = &models.ReportRef{ID: id}
		} else {
			ev.New = &models.Report{ID: id, Description: fmt.Sprintf("rev %d", i)}
		}
		events = append(events, ev)
	}

	s := New()
	ref := make(map[string]models.Report)
	for _, ev := range events {
		if _, err := s.ApplyChange(ev); err != nil {
			t.Fatalf("ApplyChange: %v", err)
		}
		switch ev.Kind {
		case models.EventInsert, models.EventUpdate:
			ref[ev.New.ID] = *ev.New
		case models.EventDelete:
			delete(ref, ev.Old.ID)
		}
	}

	snap := s.Snapshot()
	if len(snap) != len(ref) {
		t.Fatalf("store has %d reports, reference map has %d", len(snap), len(ref))
	}
	seen := make(map[string]bool)
	for _, r := range snap {
		if seen[r.ID] {
			t.Fatalf("duplicate live id %q in snapshot", r.ID)
		}
		seen[r.ID] = true
		want, ok := ref[r.ID]
		if !ok {
			t.Errorf("store holds %q which the reference map does not", r.ID)
			continue
		}
		if r.Description != want.Description {
			t.Errorf("report %q: description %q, want %q", r.ID, r.Description, want.Description)
		}
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	s.ApplySnapshot([]models.Report{*report("a")})

	snap := s.Snapshot()
	snap[0].ID = "mutated"

	got, ok := s.Get("a")
	if !ok || got.ID != "a" {
		t.Error("mutating a snapshot leaked into the store")
	}
}
