package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	EventStatusActive    = "ACTIVE"
	EventStatusCancelled = "CANCELLED"
	EventStatusCompleted = "COMPLETED"
)

type Event struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	EventDate        time.Time       `json:"event_date"`
	Venue            string          `json:"venue"`
	Capacity         int             `json:"capacity"`
	Price            decimal.Decimal `json:"price"`
	AvailableTickets int             `json:"available_tickets"`
	Status           string          `json:"status"` // ACTIVE, CANCELLED, COMPLETED
	OrganizerID      string          `json:"organizer_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

func EventFromRecord(r *core.Record) *Event {
	return &Event{
		ID:               r.Id,
		Name:             r.GetString("name"),
		Description:      r.GetString("description"),
		EventDate:        r.GetDateTime("event_date").Time(),
		Venue:            r.GetString("venue"),
		Capacity:         r.GetInt("capacity"),
		Price:            decimal.NewFromFloat(r.GetFloat("price")),
		AvailableTickets: r.GetInt("available_tickets"),
		Status:           r.GetString("status"),
		OrganizerID:      r.GetString("organizer"),
		CreatedAt:        r.GetDateTime("created").Time(),
	}
}

func (e *Event) HasAvailableTickets() bool {
	return e.AvailableTickets > 0
}

// Reserve takes one capacity unit. Returns false when sold out.
func (e *Event) Reserve() bool {
	if !e.HasAvailableTickets() {
		return false
	}
	e.AvailableTickets--
	return true
}

// Release returns one capacity unit, clamped at capacity so a double
// release can never push the counter past the configured limit.
func (e *Event) Release() {
	if e.AvailableTickets < e.Capacity {
		e.AvailableTickets++
	}
}

func (e *Event) IsActive() bool {
	return e.Status == EventStatusActive
}

func (e *Event) HasPassed(now time.Time) bool {
	return e.EventDate.Before(now)
}

func (e *Event) SoldTickets() int {
	return e.Capacity - e.AvailableTickets
}
