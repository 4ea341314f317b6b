package services

import (
	"context"
	"io"
	"testing"
	"time"

	"eventpass/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyApprovalWithTicketsAttachesDocuments(t *testing.T) {
	app := setupTestApp(t)
	organizer := createTestUser(t, app, models.RoleOrganizer)
	event := createTestEvent(t, app, organizer.Id, 10, time.Now().Add(48*time.Hour))
	requestRecord := createTestRequest(t, app, event.Id, "attach@example.com", models.RequestStatusApproved, 2)

	notify := NewNotifyService(app, nil, NewRenderService("http://localhost:8090"), "http://localhost:8090")
	svc := NewTicketService(app, NewCapacityService(app), testTokenService(), notify, time.Hour)

	tickets, err := svc.GenerateTicketsFromRequest(context.Background(), requestRecord.Id)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	msg := app.TestMailer.LastMessage()
	require.Len(t, msg.To, 1)
	assert.Equal(t, "attach@example.com", msg.To[0].Address)

	require.Len(t, msg.Attachments, 2)
	for name, doc := range msg.Attachments {
		assert.Contains(t, name, ".pdf")
		raw, err := io.ReadAll(doc)
		require.NoError(t, err)
		require.Greater(t, len(raw), 4)
		assert.Equal(t, "%PDF", string(raw[:4]))
	}
}
