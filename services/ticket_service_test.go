package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketService_PurchaseTicket(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 3, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	assert.Equal(t, models.TicketStatusValid, ticket.Status)
	assert.NotEmpty(t, ticket.TicketCode)
	assert.NotEmpty(t, ticket.QrToken)
	assert.Equal(t, event.Id, ticket.EventID)
	assert.Equal(t, client.Id, ticket.ClientID)

	// The purchase consumed one capacity unit.
	record, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, record.GetInt("available_tickets"))

	// The embedded token resolves back to the ticket.
	claims, err := svc.Tokens.Verify(ticket.QrToken)
	require.NoError(t, err)
	assert.Equal(t, ticket.TicketCode, claims.TicketCode)
	assert.Equal(t, event.Id, claims.EventID)
}

func TestTicketService_PurchaseTicketSoldOut(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 1, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	_, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	_, err = svc.PurchaseTicket(ctx, event.Id, client.Id)
	assert.ErrorIs(t, err, status.ErrSoldOut)
}

func TestTicketService_PurchaseTicketGuards(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")

	cancelled := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))
	cancelled.Set("status", models.EventStatusCancelled)
	require.NoError(t, app.Save(cancelled))

	past := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))
	past.Set("event_date", time.Now().Add(-time.Hour))
	require.NoError(t, app.Save(past))

	svc := newTestTicketService(app)
	ctx := context.Background()

	_, err := svc.PurchaseTicket(ctx, cancelled.Id, client.Id)
	assert.ErrorIs(t, err, status.ErrEventNotActive)

	_, err = svc.PurchaseTicket(ctx, past.Id, client.Id)
	assert.ErrorIs(t, err, status.ErrEventPassed)

	_, err = svc.PurchaseTicket(ctx, "missing", client.Id)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestTicketService_Validate(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	used, err := svc.Validate(ctx, ticket.QrToken, organizer.Id)
	require.NoError(t, err)

	assert.Equal(t, models.TicketStatusUsed, used.Status)
	assert.Equal(t, organizer.Id, used.ValidatedBy)
	assert.NotNil(t, used.UsedAt)

	// Validation does not touch the purchase ledger.
	record, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	assert.Equal(t, 4, record.GetInt("available_tickets"))
}

func TestTicketService_ValidateTwiceFails(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, ticket.QrToken, organizer.Id)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, ticket.QrToken, organizer.Id)
	assert.ErrorIs(t, err, status.ErrAlreadyUsed)
}

// Two concurrent scans of the same token: exactly one may succeed.
func TestTicketService_ConcurrentValidation(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	const scanners = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := svc.Validate(ctx, ticket.QrToken, organizer.Id); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestTicketService_ValidatePermissions(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	other := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	// Only the owning organizer may validate.
	_, err = svc.Validate(ctx, ticket.QrToken, other.Id)
	assert.ErrorIs(t, err, status.ErrForbidden)

	record, err := app.FindRecordById("tickets", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusValid, record.GetString("status"))
}

func TestTicketService_ValidateForgedToken(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")

	svc := newTestTicketService(app)
	ctx := context.Background()

	// Signed with a different secret: fails closed as not found.
	forged, err := testTokenService().Issue(TokenClaims{TicketCode: "fake", IssuedAt: time.Now()})
	require.NoError(t, err)
	svc.Tokens = NewTokenService(differentSecretConfig())

	_, err = svc.Validate(ctx, forged, organizer.Id)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = svc.Validate(ctx, "garbage", organizer.Id)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestTicketService_ValidateExpiredPersists(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	// Move the event past the grace window after issuance.
	eventRecord, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	eventRecord.Set("event_date", time.Now().Add(-2*time.Hour))
	require.NoError(t, app.Save(eventRecord))

	_, err = svc.Validate(ctx, ticket.QrToken, organizer.Id)
	assert.ErrorIs(t, err, status.ErrExpired)

	// The scan is the one path that persists the EXPIRED transition.
	record, err := app.FindRecordById("tickets", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusExpired, record.GetString("status"))

	// A second scan of the same ticket reports the stored state.
	_, err = svc.Validate(ctx, ticket.QrToken, organizer.Id)
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestTicketService_ValidateWithinGraceWindow(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	// Event started 30 minutes ago; the one hour grace window still admits.
	eventRecord, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	eventRecord.Set("event_date", time.Now().Add(-30*time.Minute))
	require.NoError(t, app.Save(eventRecord))

	used, err := svc.Validate(ctx, ticket.QrToken, organizer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusUsed, used.Status)
}

func TestTicketService_Cancel(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	stranger := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, ticket.ID, stranger.Id)
	assert.ErrorIs(t, err, status.ErrForbidden)

	cancelled, err := svc.Cancel(ctx, ticket.ID, client.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	// The capacity unit went back to the event.
	record, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	assert.Equal(t, 5, record.GetInt("available_tickets"))
}

func TestTicketService_CancelUsedTicket(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, ticket.QrToken, organizer.Id)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, ticket.ID, client.Id)
	assert.ErrorIs(t, err, status.ErrAlreadyUsed)
}

func TestTicketService_GenerateTicketsFromRequest(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))
	reqRecord := createTestRequest(t, app, event.Id, "newcomer@example.com", models.RequestStatusApproved, 3)

	svc := newTestTicketService(app)
	ctx := context.Background()

	tickets, err := svc.GenerateTicketsFromRequest(ctx, reqRecord.Id)
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	// A provisional client account was created for the requester.
	client, err := app.FindAuthRecordByEmail("users", "newcomer@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, client.GetString("role"))

	for _, ticket := range tickets {
		assert.Equal(t, models.TicketStatusValid, ticket.Status)
		assert.Equal(t, client.Id, ticket.ClientID)
	}

	// Request issuance draws on approved demand, not the purchase ledger.
	record, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	assert.Equal(t, 10, record.GetInt("available_tickets"))

	// A second batch for the same email reuses the account.
	second := createTestRequest(t, app, event.Id, "newcomer@example.com", models.RequestStatusApproved, 1)
	more, err := svc.GenerateTicketsFromRequest(ctx, second.Id)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, client.Id, more[0].ClientID)
}

func TestTicketService_GenerateTicketsRequiresApproval(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))
	reqRecord := createTestRequest(t, app, event.Id, "jane@example.com", models.RequestStatusPending, 2)

	svc := newTestTicketService(app)

	_, err := svc.GenerateTicketsFromRequest(context.Background(), reqRecord.Id)
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestTicketService_ValidationInfo(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	info := svc.ValidationInfo(ctx, ticket.QrToken)
	assert.Equal(t, ValidationStatusValid, info.Status)
	assert.Equal(t, ticket.TicketCode, info.TicketCode)
	assert.Equal(t, "Test Event", info.EventName)

	// After use the projection reports USED with the audit trail.
	_, err = svc.Validate(ctx, ticket.QrToken, organizer.Id)
	require.NoError(t, err)

	info = svc.ValidationInfo(ctx, ticket.QrToken)
	assert.Equal(t, ValidationStatusUsed, info.Status)
	assert.NotNil(t, info.UsedAt)

	// Unknown and forged tokens read as NOT_FOUND.
	info = svc.ValidationInfo(ctx, "garbage")
	assert.Equal(t, ValidationStatusNotFound, info.Status)
}

func TestTicketService_ValidationInfoExpiredIsReadOnly(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	client := createTestUser(t, app, "CLIENT")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	svc := newTestTicketService(app)
	ctx := context.Background()

	ticket, err := svc.PurchaseTicket(ctx, event.Id, client.Id)
	require.NoError(t, err)

	eventRecord, err := app.FindRecordById("events", event.Id)
	require.NoError(t, err)
	eventRecord.Set("event_date", time.Now().Add(-2*time.Hour))
	require.NoError(t, app.Save(eventRecord))

	info := svc.ValidationInfo(ctx, ticket.QrToken)
	assert.Equal(t, ValidationStatusExpired, info.Status)

	// The projection reports expiry without persisting it.
	record, err := app.FindRecordById("tickets", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusValid, record.GetString("status"))
}

func TestTicketService_GenerateTicketsBatchRollsBack(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, models.RoleOrganizer)
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(48*time.Hour))
	request := createTestRequest(t, app, event.Id, "batch-fail@example.com", models.RequestStatusApproved, 3)

	svc := newTestTicketService(app)
	ctx := context.Background()

	// Dropping the tickets collection makes issuance fail after the
	// provisional client has been created inside the batch transaction.
	ticketsColl, err := app.FindCollectionByNameOrId("tickets")
	require.NoError(t, err)
	require.NoError(t, app.Delete(ticketsColl))

	_, err = svc.GenerateTicketsFromRequest(ctx, request.Id)
	require.Error(t, err)

	// The whole batch rolled back, client creation included, so a retry
	// starts from a clean slate instead of over-issuing.
	_, err = app.FindAuthRecordByEmail("users", "batch-fail@example.com")
	assert.Error(t, err)
}
