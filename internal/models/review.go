package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is a published passenger rating of a driver. Only the read side is
// modelled here: published ratings feed the minimum-average-rating search
// filter. Writing and moderating reviews happens elsewhere.
type Review struct {
	ID        uuid.UUID `json:"id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Rating    int       `json:"rating"` // 1..5
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
}
