package services

import (
	"context"
	"testing"
	"time"

	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/repository"
)

// mockSearchRepo returns canned results keyed by whether a date range wider
// than a single day was asked for, and records the queries it saw.
type mockSearchRepo struct {
	exact   []*models.Trip
	widened []*models.Trip
	queries []repository.TripSearch
}

func (m *mockSearchRepo) Search(_ context.Context, q repository.TripSearch) ([]*models.Trip, error) {
	m.queries = append(m.queries, q)
	if q.DateFrom != nil && q.DateTo != nil && !q.DateFrom.Equal(*q.DateTo) {
		return m.widened, nil
	}
	return m.exact, nil
}

func searchDate() time.Time {
	return time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
}

func TestSearchExactHit(t *testing.T) {
	repo := &mockSearchRepo{exact: []*models.Trip{{DepartureCity: "Lyon"}}}
	svc := NewSearchService(repo)

	d := searchDate()
	out, err := svc.Search(context.Background(), SearchCriteria{DepartureCity: "Lyon", Date: &d})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.FallbackUsed {
		t.Error("exact hit must not use the fallback")
	}
	if len(out.Trips) != 1 {
		t.Errorf("trips: got %d, want 1", len(out.Trips))
	}
	if len(repo.queries) != 1 {
		t.Errorf("queries issued: got %d, want 1", len(repo.queries))
	}
}

func TestSearchFallbackWindow(t *testing.T) {
	repo := &mockSearchRepo{widened: []*models.Trip{{DepartureCity: "Lyon"}}}
	svc := NewSearchService(repo)

	d := searchDate()
	out, err := svc.Search(context.Background(), SearchCriteria{DepartureCity: "Lyon", Date: &d})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !out.FallbackUsed {
		t.Fatal("empty exact match with a city hint should fall back")
	}
	if len(out.Trips) != 1 {
		t.Errorf("trips: got %d, want 1", len(out.Trips))
	}

	// Default tolerance is 3 days either side.
	if out.WindowStart == nil || out.WindowEnd == nil {
		t.Fatal("fallback must report its window")
	}
	if want := d.AddDate(0, 0, -3); !out.WindowStart.Equal(want) {
		t.Errorf("window start: got %v, want %v", out.WindowStart, want)
	}
	if want := d.AddDate(0, 0, 3); !out.WindowEnd.Equal(want) {
		t.Errorf("window end: got %v, want %v", out.WindowEnd, want)
	}
}

func TestSearchNoFallbackWithoutDateOrCity(t *testing.T) {
	repo := &mockSearchRepo{}
	svc := NewSearchService(repo)
	ctx := context.Background()

	// No date: nothing to widen.
	if out, _ := svc.Search(ctx, SearchCriteria{DepartureCity: "Lyon"}); out.FallbackUsed {
		t.Error("fallback must not run without a date")
	}
	if len(repo.queries) != 1 {
		t.Errorf("queries: got %d, want 1", len(repo.queries))
	}

	// Date but no city hint: too broad to widen.
	repo.queries = nil
	d := searchDate()
	if out, _ := svc.Search(ctx, SearchCriteria{Date: &d}); out.FallbackUsed {
		t.Error("fallback must not run without a city hint")
	}
	if len(repo.queries) != 1 {
		t.Errorf("queries: got %d, want 1", len(repo.queries))
	}
}

func TestToleranceClamping(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 3},
		{-5, 1},
		{1, 1},
		{7, 7},
		{30, 30},
		{45, 30},
	}
	for _, c := range cases {
		if got := clampTolerance(c.in); got != c.want {
			t.Errorf("clampTolerance(%d): got %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSearchFallbackRespectsTolerance(t *testing.T) {
	repo := &mockSearchRepo{}
	svc := NewSearchService(repo)

	d := searchDate()
	out, err := svc.Search(context.Background(), SearchCriteria{ArrivalCity: "Paris", Date: &d, ToleranceDays: 45})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !out.FallbackUsed {
		t.Fatal("expected fallback")
	}
	if want := d.AddDate(0, 0, -30); !out.WindowStart.Equal(want) {
		t.Errorf("window start with clamped tolerance: got %v, want %v", out.WindowStart, want)
	}
}
