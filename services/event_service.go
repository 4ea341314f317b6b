package services

import (
	"context"
	"fmt"
	"time"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type EventService struct {
	App core.App
}

func NewEventService(app core.App) *EventService {
	return &EventService{App: app}
}

type EventInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	EventDate   time.Time       `json:"event_date"`
	Venue       string          `json:"venue"`
	Capacity    int             `json:"capacity"`
	Price       decimal.Decimal `json:"price"`
}

func (in *EventInput) validate(now time.Time) error {
	if len(in.Name) < 3 || len(in.Name) > 100 {
		return fmt.Errorf("%w: name must be 3-100 characters", status.ErrValidation)
	}
	if in.Description == "" || in.Venue == "" {
		return fmt.Errorf("%w: description and venue are required", status.ErrValidation)
	}
	if in.EventDate.Before(now) {
		return fmt.Errorf("%w: event date must be in the future", status.ErrValidation)
	}
	if in.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", status.ErrValidation)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", status.ErrValidation)
	}
	return nil
}

func (s *EventService) CreateEvent(ctx context.Context, in EventInput, organizerID string) (*models.Event, error) {
	if err := in.validate(time.Now()); err != nil {
		return nil, err
	}

	collection, err := s.App.FindCollectionByNameOrId("events")
	if err != nil {
		return nil, fmt.Errorf("find events collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("name", in.Name)
	record.Set("description", in.Description)
	record.Set("event_date", in.EventDate)
	record.Set("venue", in.Venue)
	record.Set("capacity", in.Capacity)
	record.Set("price", in.Price.InexactFloat64())
	record.Set("available_tickets", in.Capacity)
	record.Set("status", models.EventStatusActive)
	record.Set("organizer", organizerID)

	if err := s.App.Save(record); err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}

	return models.EventFromRecord(record), nil
}

// UpdateEvent edits mutable fields of a future, non-cancelled event. Capacity
// edits re-derive available_tickets; capacity can never drop below the number
// of tickets already sold.
func (s *EventService) UpdateEvent(ctx context.Context, eventID string, in EventInput, organizerID string) (*models.Event, error) {
	var updated *models.Event

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("events", eventID)
		if err != nil {
			return status.ErrNotFound
		}

		event := models.EventFromRecord(record)
		if event.OrganizerID != organizerID {
			return status.ErrForbidden
		}
		if event.HasPassed(time.Now()) {
			return status.ErrEventPassed
		}
		if event.Status == models.EventStatusCancelled {
			return status.ErrEventNotActive
		}
		if err := in.validate(time.Now()); err != nil {
			return err
		}

		available := event.AvailableTickets
		if in.Capacity < event.Capacity {
			if in.Capacity < event.SoldTickets() {
				return fmt.Errorf("%w: capacity below tickets already sold", status.ErrCapacityExceeded)
			}
			available = in.Capacity - event.SoldTickets()
		} else {
			available = event.AvailableTickets + (in.Capacity - event.Capacity)
		}

		record.Set("name", in.Name)
		record.Set("description", in.Description)
		record.Set("event_date", in.EventDate)
		record.Set("venue", in.Venue)
		record.Set("price", in.Price.InexactFloat64())
		record.Set("capacity", in.Capacity)
		record.Set("available_tickets", available)

		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save event %s: %w", eventID, err)
		}

		updated = models.EventFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *EventService) CancelEvent(ctx context.Context, eventID, organizerID string) (*models.Event, error) {
	var cancelled *models.Event

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("events", eventID)
		if err != nil {
			return status.ErrNotFound
		}

		event := models.EventFromRecord(record)
		if event.OrganizerID != organizerID {
			return status.ErrForbidden
		}
		if event.HasPassed(time.Now()) {
			return status.ErrEventPassed
		}

		record.Set("status", models.EventStatusCancelled)
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save event %s: %w", eventID, err)
		}

		cancelled = models.EventFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// DeleteEvent removes an event, allowed only while no tickets have been sold.
func (s *EventService) DeleteEvent(ctx context.Context, eventID, organizerID string) error {
	return s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("events", eventID)
		if err != nil {
			return status.ErrNotFound
		}

		event := models.EventFromRecord(record)
		if event.OrganizerID != organizerID {
			return status.ErrForbidden
		}
		if event.SoldTickets() > 0 {
			return fmt.Errorf("%w: event has sold tickets", status.ErrForbidden)
		}

		return txApp.Delete(record)
	})
}

func (s *EventService) FindByID(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := s.App.FindRecordById("events", eventID)
	if err != nil {
		return nil, status.ErrNotFound
	}
	return models.EventFromRecord(record), nil
}

func (s *EventService) FindByOrganizer(ctx context.Context, organizerID string) ([]*models.Event, error) {
	records, err := s.App.FindRecordsByFilter(
		"events",
		"organizer = {:organizer}",
		"-event_date",
		0,
		0,
		map[string]any{"organizer": organizerID},
	)
	if err != nil {
		return nil, fmt.Errorf("list organizer events: %w", err)
	}
	return eventsFromRecords(records), nil
}

// FindUpcoming lists ACTIVE events with a future date, soonest first.
func (s *EventService) FindUpcoming(ctx context.Context) ([]*models.Event, error) {
	records, err := s.App.FindRecordsByFilter(
		"events",
		"status = {:status} && event_date > {:now}",
		"event_date",
		0,
		0,
		map[string]any{"status": models.EventStatusActive, "now": types.NowDateTime()},
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return eventsFromRecords(records), nil
}

// FindAvailable lists upcoming events that still have purchasable tickets.
func (s *EventService) FindAvailable(ctx context.Context) ([]*models.Event, error) {
	records, err := s.App.FindRecordsByFilter(
		"events",
		"status = {:status} && event_date > {:now} && available_tickets > 0",
		"event_date",
		0,
		0,
		map[string]any{"status": models.EventStatusActive, "now": types.NowDateTime()},
	)
	if err != nil {
		return nil, fmt.Errorf("list available events: %w", err)
	}
	return eventsFromRecords(records), nil
}

func eventsFromRecords(records []*core.Record) []*models.Event {
	events := make([]*models.Event, 0, len(records))
	for _, r := range records {
		events = append(events, models.EventFromRecord(r))
	}
	return events
}
