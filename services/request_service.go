package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"eventpass/internal/status"
	"eventpass/models"
	"eventpass/monitoring"
	"eventpass/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// RequestService arbitrates public ticket requests: PENDING is the only
// non-terminal state, and APPROVED/REJECTED/CANCELLED are one-way exits.
//
// The capacity check at submission time sums approved+pending demand across
// the event's requests. That check-then-act spans multiple rows and is
// best-effort under concurrent submissions; the authoritative gate is the
// re-check against the approved sum inside the approval transaction.
type RequestService struct {
	App         core.App
	Notifier    Notifier
	MaxQuantity int
}

func NewRequestService(app core.App, notifier Notifier, maxQuantity int) *RequestService {
	return &RequestService{
		App:         app,
		Notifier:    notifier,
		MaxQuantity: maxQuantity,
	}
}

type RequestInput struct {
	FullName               string `json:"full_name"`
	Email                  string `json:"email"`
	Phone                  string `json:"phone"`
	Message                string `json:"message"`
	PreferredContactMethod string `json:"preferred_contact_method"`
	Quantity               int    `json:"quantity"`
}

func (in *RequestInput) validate(maxQuantity int) error {
	if in.FullName == "" {
		return fmt.Errorf("%w: full name is required", status.ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: a valid email is required", status.ErrValidation)
	}
	if in.Phone == "" {
		return fmt.Errorf("%w: phone is required", status.ErrValidation)
	}
	if in.Quantity < 1 || in.Quantity > maxQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", status.ErrValidation, maxQuantity)
	}
	switch in.PreferredContactMethod {
	case "", models.ContactMethodEmail, models.ContactMethodWhatsApp, models.ContactMethodPhone:
	default:
		return fmt.Errorf("%w: unknown contact method", status.ErrValidation)
	}
	return nil
}

func (s *RequestService) CreateRequest(ctx context.Context, in RequestInput, eventID string) (*models.TicketRequest, error) {
	if err := in.validate(s.MaxQuantity); err != nil {
		return nil, err
	}

	eventRecord, err := s.App.FindRecordById("events", eventID)
	if err != nil {
		return nil, status.ErrNotFound
	}
	event := models.EventFromRecord(eventRecord)

	if !event.IsActive() {
		return nil, status.ErrEventNotActive
	}
	if event.HasPassed(time.Now()) {
		return nil, status.ErrEventPassed
	}

	approved, err := s.sumQuantity(s.App, eventID, models.RequestStatusApproved)
	if err != nil {
		return nil, err
	}
	pending, err := s.sumQuantity(s.App, eventID, models.RequestStatusPending)
	if err != nil {
		return nil, err
	}
	if approved+pending+in.Quantity > event.Capacity {
		return nil, fmt.Errorf("%w: %d ticket(s) requested, %d left",
			status.ErrCapacityExceeded, in.Quantity, event.Capacity-approved-pending)
	}

	refCode, err := utils.GenerateCode(4)
	if err != nil {
		return nil, fmt.Errorf("generate reference code: %w", err)
	}

	collection, err := s.App.FindCollectionByNameOrId("ticket_requests")
	if err != nil {
		return nil, fmt.Errorf("find ticket_requests collection: %w", err)
	}

	contactMethod := in.PreferredContactMethod
	if contactMethod == "" {
		contactMethod = models.ContactMethodEmail
	}

	record := core.NewRecord(collection)
	record.Set("reference_code", refCode)
	record.Set("full_name", in.FullName)
	record.Set("email", strings.ToLower(in.Email))
	record.Set("phone", in.Phone)
	record.Set("message", in.Message)
	record.Set("preferred_contact_method", contactMethod)
	record.Set("quantity", in.Quantity)
	record.Set("event", eventID)
	record.Set("status", models.RequestStatusPending)
	record.Set("request_date", time.Now())

	if err := s.App.Save(record); err != nil {
		return nil, fmt.Errorf("save ticket request: %w", err)
	}

	request := models.RequestFromRecord(record)
	monitoring.RequestSubmitted()
	s.Notifier.NotifyRequest(ctx, KindNewRequest, request, event)
	s.Notifier.NotifyRequest(ctx, KindRequestConfirmation, request, event)

	return request, nil
}

// ApproveRequest transitions PENDING -> APPROVED after re-checking the
// approved demand against the event capacity inside the transaction.
func (s *RequestService) ApproveRequest(ctx context.Context, requestID, organizerID, notes string) (*models.TicketRequest, error) {
	var (
		request *models.TicketRequest
		event   *models.Event
	)

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("ticket_requests", requestID)
		if err != nil {
			return status.ErrNotFound
		}
		request = models.RequestFromRecord(record)

		eventRecord, err := txApp.FindRecordById("events", request.EventID)
		if err != nil {
			return fmt.Errorf("find event %s: %w", request.EventID, err)
		}
		event = models.EventFromRecord(eventRecord)

		if event.OrganizerID != organizerID {
			return status.ErrForbidden
		}
		if !request.CanBeProcessed() {
			return status.ErrAlreadyProcessed
		}

		approved, err := s.sumQuantity(txApp, event.ID, models.RequestStatusApproved)
		if err != nil {
			return err
		}
		if approved+request.Quantity > event.Capacity {
			return fmt.Errorf("%w: %d approved of %d capacity",
				status.ErrCapacityExceeded, approved, event.Capacity)
		}

		request.Approve(organizerID, notes, time.Now())
		return s.saveProcessed(txApp, record, request)
	})
	if err != nil {
		return nil, err
	}

	monitoring.RequestProcessed("approved")
	s.Notifier.NotifyRequest(ctx, KindRequestApproved, request, event)
	return request, nil
}

// RejectRequest applies the same owning-organizer permission rule as approve.
func (s *RequestService) RejectRequest(ctx context.Context, requestID, organizerID, notes string) (*models.TicketRequest, error) {
	var (
		request *models.TicketRequest
		event   *models.Event
	)

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("ticket_requests", requestID)
		if err != nil {
			return status.ErrNotFound
		}
		request = models.RequestFromRecord(record)

		eventRecord, err := txApp.FindRecordById("events", request.EventID)
		if err != nil {
			return fmt.Errorf("find event %s: %w", request.EventID, err)
		}
		event = models.EventFromRecord(eventRecord)

		if event.OrganizerID != organizerID {
			return status.ErrForbidden
		}
		if !request.CanBeProcessed() {
			return status.ErrAlreadyProcessed
		}

		request.Reject(organizerID, notes, time.Now())
		return s.saveProcessed(txApp, record, request)
	})
	if err != nil {
		return nil, err
	}

	monitoring.RequestProcessed("rejected")
	s.Notifier.NotifyRequest(ctx, KindRequestRejected, request, event)
	return request, nil
}

// CancelRequest lets the requester withdraw a still-pending request. The
// caller proves ownership with the email used at submission time.
func (s *RequestService) CancelRequest(ctx context.Context, requestID, callerEmail string) error {
	var (
		request *models.TicketRequest
		event   *models.Event
	)

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("ticket_requests", requestID)
		if err != nil {
			return status.ErrNotFound
		}
		request = models.RequestFromRecord(record)

		if !strings.EqualFold(request.Email, callerEmail) {
			return status.ErrForbidden
		}
		if !request.CanBeProcessed() {
			return status.ErrAlreadyProcessed
		}

		eventRecord, err := txApp.FindRecordById("events", request.EventID)
		if err != nil {
			return fmt.Errorf("find event %s: %w", request.EventID, err)
		}
		event = models.EventFromRecord(eventRecord)

		request.Cancel()
		record.Set("status", request.Status)
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save ticket request %s: %w", requestID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Notifier.NotifyRequest(ctx, KindRequestCancelled, request, event)
	return nil
}

func (s *RequestService) saveProcessed(txApp core.App, record *core.Record, request *models.TicketRequest) error {
	record.Set("status", request.Status)
	record.Set("processed_date", *request.ProcessedDate)
	record.Set("processed_by", request.ProcessedBy)
	record.Set("organizer_notes", request.OrganizerNotes)
	if err := txApp.Save(record); err != nil {
		return fmt.Errorf("save ticket request %s: %w", request.ID, err)
	}
	return nil
}

// ApprovedTicketCount is the authoritative approved-demand figure for an
// event, distinct from the available_tickets ledger used by direct purchases.
func (s *RequestService) ApprovedTicketCount(ctx context.Context, eventID string) (int, error) {
	return s.sumQuantity(s.App, eventID, models.RequestStatusApproved)
}

func (s *RequestService) PendingTicketCount(ctx context.Context, eventID string) (int, error) {
	return s.sumQuantity(s.App, eventID, models.RequestStatusPending)
}

func (s *RequestService) sumQuantity(app core.App, eventID, requestStatus string) (int, error) {
	var total int
	err := app.DB().
		NewQuery("SELECT COALESCE(SUM(quantity), 0) FROM ticket_requests WHERE event = {:event} AND status = {:status}").
		Bind(dbx.Params{"event": eventID, "status": requestStatus}).
		Row(&total)
	if err != nil {
		return 0, fmt.Errorf("sum %s request quantity: %w", requestStatus, err)
	}
	return total, nil
}

func (s *RequestService) FindByID(ctx context.Context, requestID string) (*models.TicketRequest, error) {
	record, err := s.App.FindRecordById("ticket_requests", requestID)
	if err != nil {
		return nil, status.ErrNotFound
	}
	return models.RequestFromRecord(record), nil
}

func (s *RequestService) FindByEvent(ctx context.Context, eventID string) ([]*models.TicketRequest, error) {
	records, err := s.App.FindRecordsByFilter(
		"ticket_requests",
		"event = {:event}",
		"-request_date",
		0,
		0,
		map[string]any{"event": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("list event requests: %w", err)
	}
	return requestsFromRecords(records), nil
}

func (s *RequestService) FindByEmail(ctx context.Context, email string) ([]*models.TicketRequest, error) {
	records, err := s.App.FindRecordsByFilter(
		"ticket_requests",
		"email = {:email}",
		"-request_date",
		0,
		0,
		map[string]any{"email": strings.ToLower(email)},
	)
	if err != nil {
		return nil, fmt.Errorf("list requests by email: %w", err)
	}
	return requestsFromRecords(records), nil
}

func (s *RequestService) FindByOrganizer(ctx context.Context, organizerID string) ([]*models.TicketRequest, error) {
	records, err := s.App.FindRecordsByFilter(
		"ticket_requests",
		"event.organizer = {:organizer}",
		"-request_date",
		0,
		0,
		map[string]any{"organizer": organizerID},
	)
	if err != nil {
		return nil, fmt.Errorf("list organizer requests: %w", err)
	}
	return requestsFromRecords(records), nil
}

func (s *RequestService) FindPendingByOrganizer(ctx context.Context, organizerID string) ([]*models.TicketRequest, error) {
	records, err := s.App.FindRecordsByFilter(
		"ticket_requests",
		"event.organizer = {:organizer} && status = {:status}",
		"-request_date",
		0,
		0,
		map[string]any{"organizer": organizerID, "status": models.RequestStatusPending},
	)
	if err != nil {
		return nil, fmt.Errorf("list pending organizer requests: %w", err)
	}
	return requestsFromRecords(records), nil
}

func (s *RequestService) CountPendingByOrganizer(ctx context.Context, organizerID string) (int, error) {
	requests, err := s.FindPendingByOrganizer(ctx, organizerID)
	if err != nil {
		return 0, err
	}
	return len(requests), nil
}

// RecentRequests lists submissions from the last 24 hours, newest first.
func (s *RequestService) RecentRequests(ctx context.Context) ([]*models.TicketRequest, error) {
	records, err := s.App.FindRecordsByFilter(
		"ticket_requests",
		"request_date > {:since}",
		"-request_date",
		0,
		0,
		map[string]any{"since": types.NowDateTime().Add(-24 * time.Hour)},
	)
	if err != nil {
		return nil, fmt.Errorf("list recent requests: %w", err)
	}
	return requestsFromRecords(records), nil
}

func requestsFromRecords(records []*core.Record) []*models.TicketRequest {
	requests := make([]*models.TicketRequest, 0, len(records))
	for _, r := range records {
		requests = append(requests, models.RequestFromRecord(r))
	}
	return requests
}
