package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/repository"
)

// Near-date tolerance window bounds, in days.
const (
	minToleranceDays     = 1
	maxToleranceDays     = 30
	defaultToleranceDays = 3
)

// SearchRepo runs the trip query. *repository.TripRepo satisfies it.
type SearchRepo interface {
	Search(ctx context.Context, q repository.TripSearch) ([]*models.Trip, error)
}

// SearchCriteria is what a web or API search form submits. City filters are
// case-insensitive substring matches; zero values mean "no filter".
type SearchCriteria struct {
	DepartureCity string
	ArrivalCity   string
	Date          *time.Time
	EcoOnly       bool
	MaxPrice      *decimal.Decimal
	MinAvgRating  *float64
	ToleranceDays int
}

// SearchOutcome reports the trips found and whether the near-date fallback
// produced them, with the window it used.
type SearchOutcome struct {
	Trips        []*models.Trip
	FallbackUsed bool
	WindowStart  *time.Time
	WindowEnd    *time.Time
}

// SearchService answers trip searches, widening the date window when an
// exact search with a date and a city hint comes back empty.
type SearchService struct {
	Trips SearchRepo

	now func() time.Time
}

func NewSearchService(trips SearchRepo) *SearchService {
	return &SearchService{Trips: trips, now: time.Now}
}

func (s *SearchService) Search(ctx context.Context, c SearchCriteria) (*SearchOutcome, error) {
	q := repository.TripSearch{
		DepartureCity: c.DepartureCity,
		ArrivalCity:   c.ArrivalCity,
		EcoOnly:       c.EcoOnly,
		MaxPrice:      c.MaxPrice,
		MinAvgRating:  c.MinAvgRating,
		Now:           s.now(),
	}
	if c.Date != nil {
		d := dateOnly(*c.Date)
		q.DateFrom = &d
		q.DateTo = &d
	}

	trips, err := s.Trips.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(trips) > 0 {
		return &SearchOutcome{Trips: trips}, nil
	}

	// Fall back to a near-date window only when the search was specific
	// enough to widen: a date plus at least one city hint.
	if c.Date == nil || (c.DepartureCity == "" && c.ArrivalCity == "") {
		return &SearchOutcome{}, nil
	}

	tol := clampTolerance(c.ToleranceDays)
	center := dateOnly(*c.Date)
	from := center.AddDate(0, 0, -tol)
	to := center.AddDate(0, 0, tol)
	q.DateFrom = &from
	q.DateTo = &to

	trips, err = s.Trips.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return &SearchOutcome{Trips: trips, FallbackUsed: true, WindowStart: &from, WindowEnd: &to}, nil
}

func clampTolerance(days int) int {
	if days == 0 {
		return defaultToleranceDays
	}
	if days < minToleranceDays {
		return minToleranceDays
	}
	if days > maxToleranceDays {
		return maxToleranceDays
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
