package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/mail"

	"eventpass/models"
	"eventpass/utils"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
	pubnub "github.com/pubnub/go/v7"
)

type NotificationKind string

const (
	KindNewRequest          NotificationKind = "new_request"
	KindRequestConfirmation NotificationKind = "request_confirmation"
	KindRequestApproved     NotificationKind = "request_approved"
	KindRequestRejected     NotificationKind = "request_rejected"
	KindRequestCancelled    NotificationKind = "request_cancelled"
	KindApprovalWithTickets NotificationKind = "approval_with_tickets"
)

// Notifier dispatches best-effort notifications. Implementations must never
// raise into the caller: a committed state transition stays committed no
// matter what the mail server does.
type Notifier interface {
	NotifyRequest(ctx context.Context, kind NotificationKind, req *models.TicketRequest, event *models.Event)
	NotifyApprovalWithTickets(ctx context.Context, req *models.TicketRequest, event *models.Event, tickets []*models.Ticket)
}

// NotifyService sends email through the app mailer and pushes realtime
// updates to per-organizer PubNub channels. Every send goes through a
// circuit breaker; failures are logged and swallowed.
type NotifyService struct {
	App     core.App
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
	render  *RenderService
	baseURL string
}

func NewNotifyService(app core.App, pn *pubnub.PubNub, render *RenderService, baseURL string) *NotifyService {
	return &NotifyService{
		App:     app,
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("notifications"),
		render:  render,
		baseURL: baseURL,
	}
}

func (s *NotifyService) NotifyRequest(ctx context.Context, kind NotificationKind, req *models.TicketRequest, event *models.Event) {
	switch kind {
	case KindNewRequest:
		s.mailOrganizer(ctx, event,
			fmt.Sprintf("New ticket request for %s", event.Name),
			fmt.Sprintf("<p>%s requested %d ticket(s) for <strong>%s</strong>.</p><p>Reference: %s</p>",
				req.FullName, req.Quantity, event.Name, req.ReferenceCode))
		s.push(ctx, event.OrganizerID, map[string]any{
			"type":       string(kind),
			"request_id": req.ID,
			"event_id":   event.ID,
			"quantity":   req.Quantity,
		})
	case KindRequestConfirmation:
		s.mail(ctx, req.Email,
			fmt.Sprintf("We received your request for %s", event.Name),
			fmt.Sprintf("<p>Hi %s,</p><p>your request for %d ticket(s) to <strong>%s</strong> is pending review.</p><p>Your reference code is <strong>%s</strong>.</p>",
				req.FullName, req.Quantity, event.Name, req.ReferenceCode))
	case KindRequestApproved:
		s.mail(ctx, req.Email,
			fmt.Sprintf("Your request for %s was approved", event.Name),
			fmt.Sprintf("<p>Hi %s,</p><p>your request for %d ticket(s) to <strong>%s</strong> was approved.</p><p>%s</p>",
				req.FullName, req.Quantity, event.Name, req.OrganizerNotes))
	case KindRequestRejected:
		s.mail(ctx, req.Email,
			fmt.Sprintf("Your request for %s was rejected", event.Name),
			fmt.Sprintf("<p>Hi %s,</p><p>unfortunately your request for <strong>%s</strong> was rejected.</p><p>%s</p>",
				req.FullName, event.Name, req.OrganizerNotes))
	case KindRequestCancelled:
		s.mailOrganizer(ctx, event,
			fmt.Sprintf("Request cancelled for %s", event.Name),
			fmt.Sprintf("<p>%s cancelled their request for %d ticket(s) to <strong>%s</strong>.</p>",
				req.FullName, req.Quantity, event.Name))
		s.push(ctx, event.OrganizerID, map[string]any{
			"type":       string(kind),
			"request_id": req.ID,
			"event_id":   event.ID,
		})
	default:
		slog.Warn("unknown notification kind", "kind", kind)
	}
}

func (s *NotifyService) NotifyApprovalWithTickets(ctx context.Context, req *models.TicketRequest, event *models.Event, tickets []*models.Ticket) {
	body := fmt.Sprintf("<p>Hi %s,</p><p>your %d ticket(s) for <strong>%s</strong> are ready:</p><ul>",
		req.FullName, len(tickets), event.Name)
	for _, t := range tickets {
		body += fmt.Sprintf("<li>%s &mdash; <a href=%q>download</a></li>",
			t.TicketCode, fmt.Sprintf("%s/api/tickets/%s/document", s.baseURL, t.TicketCode))
	}
	body += "</ul><p>Your tickets are attached. Present the QR code at the entrance.</p>"

	var attachments map[string]io.Reader
	if s.render != nil {
		documents := s.render.RenderBatch(ctx, tickets, event)
		attachments = make(map[string]io.Reader, len(documents))
		for code, doc := range documents {
			attachments[fmt.Sprintf("ticket-%s.pdf", code)] = bytes.NewReader(doc)
		}
	}

	s.mailWithAttachments(ctx, req.Email, fmt.Sprintf("Your tickets for %s", event.Name), body, attachments)
	s.push(ctx, event.OrganizerID, map[string]any{
		"type":       string(KindApprovalWithTickets),
		"request_id": req.ID,
		"event_id":   event.ID,
		"tickets":    len(tickets),
	})
}

func (s *NotifyService) mailOrganizer(ctx context.Context, event *models.Event, subject, html string) {
	organizer, err := s.App.FindRecordById("users", event.OrganizerID)
	if err != nil {
		slog.Error("notification skipped: organizer lookup failed", "event_id", event.ID, "error", err)
		return
	}
	s.mail(ctx, organizer.Email(), subject, html)
}

func (s *NotifyService) mail(ctx context.Context, to, subject, html string) {
	s.mailWithAttachments(ctx, to, subject, html, nil)
}

func (s *NotifyService) mailWithAttachments(ctx context.Context, to, subject, html string, attachments map[string]io.Reader) {
	if to == "" {
		return
	}

	_, err := s.breaker.Execute(ctx, func() (any, error) {
		message := &mailer.Message{
			From: mail.Address{
				Address: s.App.Settings().Meta.SenderAddress,
				Name:    s.App.Settings().Meta.SenderName,
			},
			To:          []mail.Address{{Address: to}},
			Subject:     subject,
			HTML:        html,
			Attachments: attachments,
		}
		return nil, s.App.NewMailClient().Send(message)
	})
	if err != nil {
		slog.Error("notification mail failed", "to", to, "subject", subject, "error", err)
	}
}

func (s *NotifyService) push(ctx context.Context, organizerID string, payload map[string]any) {
	if s.pubnub == nil {
		return
	}

	_, err := s.breaker.Execute(ctx, func() (any, error) {
		channel := fmt.Sprintf("organizer-%s", organizerID)
		_, _, err := s.pubnub.Publish().Channel(channel).Message(payload).Execute()
		return nil, err
	})
	if err != nil {
		slog.Error("notification push failed", "organizer_id", organizerID, "error", err)
	}
}
