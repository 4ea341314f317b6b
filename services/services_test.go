package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"eventpass/config"
	"eventpass/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/stretchr/testify/require"
)

// noopNotifier satisfies Notifier for tests that don't assert on
// notifications.
type noopNotifier struct{}

func (noopNotifier) NotifyRequest(ctx context.Context, kind NotificationKind, req *models.TicketRequest, event *models.Event) {
}

func (noopNotifier) NotifyApprovalWithTickets(ctx context.Context, req *models.TicketRequest, event *models.Event, tickets []*models.Ticket) {
}

func setupTestApp(t *testing.T) *tests.TestApp {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	users, err := app.FindCollectionByNameOrId("users")
	require.NoError(t, err)
	if users.Fields.GetByName("role") == nil {
		users.Fields.Add(
			&core.SelectField{Name: "role", MaxSelect: 1, Values: []string{"ORGANIZER", "CLIENT"}},
			&core.TextField{Name: "phone"},
		)
		require.NoError(t, app.Save(users))
	}

	events := core.NewBaseCollection("events")
	events.Fields.Add(
		&core.TextField{Name: "name", Required: true},
		&core.TextField{Name: "description"},
		&core.DateField{Name: "event_date", Required: true},
		&core.TextField{Name: "venue"},
		&core.NumberField{Name: "capacity", Required: true, OnlyInt: true, Min: types.Pointer(1.0)},
		&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
		&core.NumberField{Name: "available_tickets", OnlyInt: true, Min: types.Pointer(0.0)},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"ACTIVE", "CANCELLED", "COMPLETED"}},
		&core.RelationField{Name: "organizer", Required: true, MaxSelect: 1, CollectionId: users.Id},
	)
	require.NoError(t, app.Save(events))

	tickets := core.NewBaseCollection("tickets")
	tickets.Fields.Add(
		&core.TextField{Name: "ticket_code", Required: true},
		&core.TextField{Name: "qr_token", Required: true},
		&core.RelationField{Name: "event", Required: true, MaxSelect: 1, CollectionId: events.Id},
		&core.RelationField{Name: "client", Required: true, MaxSelect: 1, CollectionId: users.Id},
		&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"VALID", "USED", "CANCELLED", "EXPIRED"}},
		&core.DateField{Name: "purchase_date", Required: true},
		&core.DateField{Name: "used_at"},
		&core.DateField{Name: "cancelled_at"},
		&core.RelationField{Name: "validated_by", MaxSelect: 1, CollectionId: users.Id},
	)
	tickets.AddIndex("idx_test_tickets_qr_token", true, "qr_token", "")
	require.NoError(t, app.Save(tickets))

	requests := core.NewBaseCollection("ticket_requests")
	requests.Fields.Add(
		&core.TextField{Name: "reference_code", Required: true},
		&core.TextField{Name: "full_name", Required: true},
		&core.EmailField{Name: "email", Required: true},
		&core.TextField{Name: "phone"},
		&core.TextField{Name: "message"},
		&core.SelectField{Name: "preferred_contact_method", MaxSelect: 1, Values: []string{"EMAIL", "WHATSAPP", "PHONE"}},
		&core.NumberField{Name: "quantity", Required: true, OnlyInt: true, Min: types.Pointer(1.0)},
		&core.RelationField{Name: "event", Required: true, MaxSelect: 1, CollectionId: events.Id},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"PENDING", "APPROVED", "REJECTED", "CANCELLED"}},
		&core.DateField{Name: "request_date", Required: true},
		&core.DateField{Name: "processed_date"},
		&core.RelationField{Name: "processed_by", MaxSelect: 1, CollectionId: users.Id},
		&core.TextField{Name: "organizer_notes"},
	)
	require.NoError(t, app.Save(requests))

	return app
}

var testUserSeq int

func createTestUser(t *testing.T, app core.App, role string) *core.Record {
	collection, err := app.FindCollectionByNameOrId("users")
	require.NoError(t, err)

	testUserSeq++
	record := core.NewRecord(collection)
	record.SetEmail(fmt.Sprintf("user%d@example.com", testUserSeq))
	record.Set("name", "Test User")
	record.Set("role", role)
	record.SetPassword("test-password-123")
	require.NoError(t, app.Save(record))
	return record
}

func createTestEvent(t *testing.T, app core.App, organizerID string, capacity int, eventDate time.Time) *core.Record {
	collection, err := app.FindCollectionByNameOrId("events")
	require.NoError(t, err)

	record := core.NewRecord(collection)
	record.Set("name", "Test Event")
	record.Set("description", "An event for tests")
	record.Set("event_date", eventDate)
	record.Set("venue", "Test Hall")
	record.Set("capacity", capacity)
	record.Set("price", 25.0)
	record.Set("available_tickets", capacity)
	record.Set("status", models.EventStatusActive)
	record.Set("organizer", organizerID)
	require.NoError(t, app.Save(record))
	return record
}

func createTestRequest(t *testing.T, app core.App, eventID, email, reqStatus string, quantity int) *core.Record {
	collection, err := app.FindCollectionByNameOrId("ticket_requests")
	require.NoError(t, err)

	testUserSeq++
	record := core.NewRecord(collection)
	record.Set("reference_code", fmt.Sprintf("REF%d", testUserSeq))
	record.Set("full_name", "Jane Requester")
	record.Set("email", email)
	record.Set("phone", "+1234567890")
	record.Set("preferred_contact_method", models.ContactMethodEmail)
	record.Set("quantity", quantity)
	record.Set("event", eventID)
	record.Set("status", reqStatus)
	record.Set("request_date", time.Now())
	require.NoError(t, app.Save(record))
	return record
}

func newTestTicketService(app core.App) *TicketService {
	return NewTicketService(app, NewCapacityService(app), testTokenService(), noopNotifier{}, time.Hour)
}

func differentSecretConfig() *config.Config {
	return &config.Config{
		JWTSecret: "another-secret-that-is-long-enough!!",
		TokenTTL:  8760 * time.Hour,
	}
}
