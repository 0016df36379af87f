package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemStore_SaveAndLoad(t *testing.T) {
	s := NewMemStore()
	rs := RunSummary{
		RunID:      "run-1",
		Targets:    []string{"out"},
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		NodeCalls:  3,
		ScopesBorn: 2,
		Succeeded:  true,
	}

	if err := s.SaveRun(context.Background(), rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.LoadRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != rs.RunID || got.NodeCalls != rs.NodeCalls {
		t.Errorf("LoadRun() = %+v, want %+v", got, rs)
	}
}

func TestMemStore_LoadRun_NotFound(t *testing.T) {
	s := NewMemStore()
	if _, err := s.LoadRun(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_ListRuns_OrderedByStartDescending(t *testing.T) {
	s := NewMemStore()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		err := s.SaveRun(context.Background(), RunSummary{
			RunID:     id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	wantOrder := []string{"c", "b", "a"}
	for i, w := range wantOrder {
		if runs[i].RunID != w {
			t.Errorf("runs[%d].RunID = %q, want %q", i, runs[i].RunID, w)
		}
	}
}

func TestMemStore_ListRuns_RespectsLimit(t *testing.T) {
	s := NewMemStore()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		err := s.SaveRun(context.Background(), RunSummary{
			RunID:     id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	runs, err := s.ListRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs with limit=2, got %d", len(runs))
	}
}
