package services

import (
	"context"
	"fmt"
	"log/slog"

	"eventpass/models"

	"github.com/pocketbase/pocketbase/core"
)

// CapacityService is the only mutation path for an event's available_tickets
// counter outside of event creation and capacity edits. Each call runs as a
// single transaction scoped to one event row; PocketBase serializes writers,
// so the read-decide-write cycle cannot interleave with another mutation of
// the same row.
type CapacityService struct {
	App core.App
}

func NewCapacityService(app core.App) *CapacityService {
	return &CapacityService{App: app}
}

// Reserve takes one capacity unit from the event. It returns false, with no
// error, when the event is sold out; callers must abort the enclosing
// operation in that case.
func (s *CapacityService) Reserve(ctx context.Context, eventID string) (bool, error) {
	reserved := false

	err := s.App.RunInTransaction(func(txApp core.App) error {
		ok, err := s.reserveTx(txApp, eventID)
		if err != nil {
			return err
		}
		reserved = ok
		return nil
	})
	if err != nil {
		return false, err
	}

	return reserved, nil
}

// Release returns one capacity unit to the event, clamped at capacity so a
// double release never produces over-capacity.
func (s *CapacityService) Release(ctx context.Context, eventID string) error {
	return s.App.RunInTransaction(func(txApp core.App) error {
		return s.releaseTx(txApp, eventID)
	})
}

// reserveTx and releaseTx run inside an already-open transaction, so callers
// that mutate a ticket and its event's ledger together stay atomic.

func (s *CapacityService) reserveTx(txApp core.App, eventID string) (bool, error) {
	record, err := txApp.FindRecordById("events", eventID)
	if err != nil {
		return false, fmt.Errorf("find event %s: %w", eventID, err)
	}

	event := models.EventFromRecord(record)
	if !event.Reserve() {
		return false, nil
	}

	record.Set("available_tickets", event.AvailableTickets)
	if err := txApp.Save(record); err != nil {
		return false, fmt.Errorf("save event %s: %w", eventID, err)
	}
	return true, nil
}

func (s *CapacityService) releaseTx(txApp core.App, eventID string) error {
	record, err := txApp.FindRecordById("events", eventID)
	if err != nil {
		return fmt.Errorf("find event %s: %w", eventID, err)
	}

	event := models.EventFromRecord(record)
	before := event.AvailableTickets
	event.Release()
	if event.AvailableTickets == before {
		slog.Warn("release on full event ignored", "event_id", eventID)
		return nil
	}

	record.Set("available_tickets", event.AvailableTickets)
	if err := txApp.Save(record); err != nil {
		return fmt.Errorf("save event %s: %w", eventID, err)
	}
	return nil
}
