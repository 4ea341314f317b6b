package services

import (
	"context"
	"testing"
	"time"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequestInput(quantity int) RequestInput {
	return RequestInput{
		FullName: "Jane Requester",
		Email:    "jane@example.com",
		Phone:    "+1234567890",
		Quantity: quantity,
	}
}

func TestRequestInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RequestInput)
		wantErr bool
	}{
		{name: "valid", mutate: func(in *RequestInput) {}, wantErr: false},
		{name: "quantity at maximum", mutate: func(in *RequestInput) { in.Quantity = 10 }, wantErr: false},
		{name: "zero quantity", mutate: func(in *RequestInput) { in.Quantity = 0 }, wantErr: true},
		{name: "quantity above maximum", mutate: func(in *RequestInput) { in.Quantity = 11 }, wantErr: true},
		{name: "missing name", mutate: func(in *RequestInput) { in.FullName = "" }, wantErr: true},
		{name: "bad email", mutate: func(in *RequestInput) { in.Email = "not-an-email" }, wantErr: true},
		{name: "missing phone", mutate: func(in *RequestInput) { in.Phone = "" }, wantErr: true},
		{name: "unknown contact method", mutate: func(in *RequestInput) { in.PreferredContactMethod = "FAX" }, wantErr: true},
		{name: "whatsapp contact method", mutate: func(in *RequestInput) { in.PreferredContactMethod = models.ContactMethodWhatsApp }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRequestInput(2)
			tt.mutate(&in)

			err := in.validate(10)
			if tt.wantErr {
				assert.ErrorIs(t, err, status.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestService_CreateRequest(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	in := validRequestInput(3)
	in.Email = "Jane@Example.COM"

	request, err := svc.CreateRequest(ctx, in, event.Id)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.NotEmpty(t, request.ReferenceCode)
	assert.Equal(t, "jane@example.com", request.Email)
	assert.Equal(t, 3, request.Quantity)
}

func TestRequestService_CreateRequestRejectsOverCapacity(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))

	// Approved and pending demand already covers 8 of 10 seats.
	createTestRequest(t, app, event.Id, "a@example.com", models.RequestStatusApproved, 5)
	createTestRequest(t, app, event.Id, "b@example.com", models.RequestStatusPending, 3)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	_, err := svc.CreateRequest(ctx, validRequestInput(3), event.Id)
	assert.ErrorIs(t, err, status.ErrCapacityExceeded)

	// Rejected and cancelled demand does not count.
	createTestRequest(t, app, event.Id, "c@example.com", models.RequestStatusRejected, 5)

	request, err := svc.CreateRequest(ctx, validRequestInput(2), event.Id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, request.Status)
}

func TestRequestService_CreateRequestInactiveEvent(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")

	cancelled := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))
	cancelled.Set("status", models.EventStatusCancelled)
	require.NoError(t, app.Save(cancelled))

	past := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))
	past.Set("event_date", time.Now().Add(-time.Hour))
	require.NoError(t, app.Save(past))

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	_, err := svc.CreateRequest(ctx, validRequestInput(1), cancelled.Id)
	assert.ErrorIs(t, err, status.ErrEventNotActive)

	_, err = svc.CreateRequest(ctx, validRequestInput(1), past.Id)
	assert.ErrorIs(t, err, status.ErrEventPassed)
}

func TestRequestService_ApproveRequest(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))
	reqRecord := createTestRequest(t, app, event.Id, "jane@example.com", models.RequestStatusPending, 2)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	request, err := svc.ApproveRequest(ctx, reqRecord.Id, organizer.Id, "welcome")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusApproved, request.Status)
	assert.Equal(t, organizer.Id, request.ProcessedBy)
	assert.Equal(t, "welcome", request.OrganizerNotes)
	assert.NotNil(t, request.ProcessedDate)

	// A processed request is terminal.
	_, err = svc.ApproveRequest(ctx, reqRecord.Id, organizer.Id, "")
	assert.ErrorIs(t, err, status.ErrAlreadyProcessed)
}

func TestRequestService_ApproveRequestOnlyOwningOrganizer(t *testing.T) {
	app := setupTestApp(t)
	owner := createTestUser(t, app, "ORGANIZER")
	other := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, owner.Id, 10, time.Now().Add(24*time.Hour))
	reqRecord := createTestRequest(t, app, event.Id, "jane@example.com", models.RequestStatusPending, 2)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	_, err := svc.ApproveRequest(ctx, reqRecord.Id, other.Id, "")
	assert.ErrorIs(t, err, status.ErrForbidden)

	// The request stays pending after the refused attempt.
	record, err := app.FindRecordById("ticket_requests", reqRecord.Id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, record.GetString("status"))
}

func TestRequestService_ApproveRequestRechecksCapacity(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 5, time.Now().Add(24*time.Hour))

	first := createTestRequest(t, app, event.Id, "a@example.com", models.RequestStatusPending, 3)
	second := createTestRequest(t, app, event.Id, "b@example.com", models.RequestStatusPending, 3)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	_, err := svc.ApproveRequest(ctx, first.Id, organizer.Id, "")
	require.NoError(t, err)

	// 3 of 5 approved; the second 3 would overshoot.
	_, err = svc.ApproveRequest(ctx, second.Id, organizer.Id, "")
	assert.ErrorIs(t, err, status.ErrCapacityExceeded)
}

func TestRequestService_RejectRequestOnlyOwningOrganizer(t *testing.T) {
	app := setupTestApp(t)
	owner := createTestUser(t, app, "ORGANIZER")
	other := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, owner.Id, 10, time.Now().Add(24*time.Hour))
	reqRecord := createTestRequest(t, app, event.Id, "jane@example.com", models.RequestStatusPending, 2)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	_, err := svc.RejectRequest(ctx, reqRecord.Id, other.Id, "no")
	assert.ErrorIs(t, err, status.ErrForbidden)

	request, err := svc.RejectRequest(ctx, reqRecord.Id, owner.Id, "no")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, request.Status)
}

func TestRequestService_CancelRequest(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(24*time.Hour))
	reqRecord := createTestRequest(t, app, event.Id, "jane@example.com", models.RequestStatusPending, 2)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	// Ownership is proven by the submission email, case-insensitively.
	err := svc.CancelRequest(ctx, reqRecord.Id, "someone-else@example.com")
	assert.ErrorIs(t, err, status.ErrForbidden)

	err = svc.CancelRequest(ctx, reqRecord.Id, "Jane@Example.com")
	require.NoError(t, err)

	record, err := app.FindRecordById("ticket_requests", reqRecord.Id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, record.GetString("status"))

	// Already cancelled, nothing left to withdraw.
	err = svc.CancelRequest(ctx, reqRecord.Id, "jane@example.com")
	assert.ErrorIs(t, err, status.ErrAlreadyProcessed)
}

func TestRequestService_DemandCounts(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, "ORGANIZER")
	event := createTestEvent(t, app, organizer.Id, 20, time.Now().Add(24*time.Hour))

	createTestRequest(t, app, event.Id, "a@example.com", models.RequestStatusApproved, 4)
	createTestRequest(t, app, event.Id, "b@example.com", models.RequestStatusApproved, 2)
	createTestRequest(t, app, event.Id, "c@example.com", models.RequestStatusPending, 5)
	createTestRequest(t, app, event.Id, "d@example.com", models.RequestStatusRejected, 9)

	svc := NewRequestService(app, noopNotifier{}, 10)
	ctx := context.Background()

	approved, err := svc.ApprovedTicketCount(ctx, event.Id)
	require.NoError(t, err)
	assert.Equal(t, 6, approved)

	pending, err := svc.PendingTicketCount(ctx, event.Id)
	require.NoError(t, err)
	assert.Equal(t, 5, pending)
}
