package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventpass/internal/status"
	"eventpass/models"
	"eventpass/monitoring"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// TicketService owns ticket issuance and the validation state machine.
// Issuance via direct purchase consumes the event's available_tickets ledger;
// issuance from an approved request trusts the arbitration's demand check and
// does not touch the ledger. The two pools are intentionally separate.
type TicketService struct {
	App      core.App
	Capacity *CapacityService
	Tokens   *TokenService
	Notifier Notifier
	Grace    time.Duration
}

func NewTicketService(app core.App, capacity *CapacityService, tokens *TokenService, notifier Notifier, grace time.Duration) *TicketService {
	return &TicketService{
		App:      app,
		Capacity: capacity,
		Tokens:   tokens,
		Notifier: notifier,
		Grace:    grace,
	}
}

// PurchaseTicket reserves one capacity unit and issues a ticket against it.
// Token minting and the ticket save happen after the reservation commits, so
// any failure past that point must release the unit before surfacing.
func (s *TicketService) PurchaseTicket(ctx context.Context, eventID, clientID string) (*models.Ticket, error) {
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
	if !event.HasAvailableTickets() {
		return nil, status.ErrSoldOut
	}

	reserved, err := s.Capacity.Reserve(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, status.ErrSoldOut
	}

	ticket, err := s.issueTicket(s.App, event, clientID)
	if err != nil {
		// Compensate: the reservation committed but the ticket did not.
		if releaseErr := s.Capacity.Release(ctx, eventID); releaseErr != nil {
			slog.Error("release after failed issue", "event_id", eventID, "error", releaseErr)
		}
		return nil, err
	}

	monitoring.TicketIssued("purchase")
	return ticket, nil
}

// GenerateTicketsFromRequest issues one ticket per requested unit of an
// APPROVED request. Client resolution and the whole batch run in one
// transaction: a mid-batch failure persists nothing, so a retry issues a
// fresh full batch without over-issuing past the approved quantity.
func (s *TicketService) GenerateTicketsFromRequest(ctx context.Context, requestID string) ([]*models.Ticket, error) {
	requestRecord, err := s.App.FindRecordById("ticket_requests", requestID)
	if err != nil {
		return nil, status.ErrNotFound
	}
	request := models.RequestFromRecord(requestRecord)

	if request.Status != models.RequestStatusApproved {
		return nil, fmt.Errorf("%w: tickets can only be generated from approved requests", status.ErrInvalidState)
	}

	eventRecord, err := s.App.FindRecordById("events", request.EventID)
	if err != nil {
		return nil, fmt.Errorf("find event %s: %w", request.EventID, err)
	}
	event := models.EventFromRecord(eventRecord)

	var tickets []*models.Ticket
	err = s.App.RunInTransaction(func(txApp core.App) error {
		client, err := s.getOrCreateClient(txApp, request)
		if err != nil {
			return err
		}

		tickets = make([]*models.Ticket, 0, request.Quantity)
		for i := 0; i < request.Quantity; i++ {
			ticket, err := s.issueTicket(txApp, event, client.Id)
			if err != nil {
				return err
			}
			tickets = append(tickets, ticket)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range tickets {
		monitoring.TicketIssued("request")
	}

	s.Notifier.NotifyApprovalWithTickets(ctx, request, event, tickets)
	return tickets, nil
}

func (s *TicketService) issueTicket(app core.App, event *models.Event, clientID string) (*models.Ticket, error) {
	collection, err := app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("find tickets collection: %w", err)
	}

	now := time.Now()
	ticketCode := uuid.NewString()

	token, err := s.Tokens.Issue(TokenClaims{
		TicketCode: ticketCode,
		EventID:    event.ID,
		ClientID:   clientID,
		IssuedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	record := core.NewRecord(collection)
	record.Set("ticket_code", ticketCode)
	record.Set("qr_token", token)
	record.Set("event", event.ID)
	record.Set("client", clientID)
	record.Set("price", event.Price.InexactFloat64())
	record.Set("status", models.TicketStatusValid)
	record.Set("purchase_date", now)

	if err := app.Save(record); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	return models.TicketFromRecord(record), nil
}

// getOrCreateClient resolves the requester to a registered client account,
// creating a provisional CLIENT user keyed by the request email when none
// exists. Re-invocations for the same email reuse the existing account.
func (s *TicketService) getOrCreateClient(app core.App, request *models.TicketRequest) (*core.Record, error) {
	if existing, err := app.FindAuthRecordByEmail("users", request.Email); err == nil {
		return existing, nil
	}

	collection, err := app.FindCollectionByNameOrId("users")
	if err != nil {
		return nil, fmt.Errorf("find users collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("email", request.Email)
	record.Set("name", request.FullName)
	record.Set("phone", request.Phone)
	record.Set("role", models.RoleClient)
	record.SetPassword(uuid.NewString())

	if err := app.Save(record); err != nil {
		return nil, fmt.Errorf("create provisional client: %w", err)
	}

	slog.Info("provisional client created", "email", request.Email)
	return record, nil
}

// Validate is the entry-scan transition VALID -> USED. The whole
// read-decide-write cycle runs in one transaction scoped to the ticket row,
// so two concurrent scans of the same token cannot both succeed.
func (s *TicketService) Validate(ctx context.Context, qrToken, validatorID string) (*models.Ticket, error) {
	// A token that fails signature verification is treated exactly like an
	// unknown token.
	if _, err := s.Tokens.Verify(qrToken); err != nil {
		monitoring.TicketValidated("not_found")
		return nil, status.ErrNotFound
	}

	var (
		validated *models.Ticket
		expired   bool
	)

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindFirstRecordByData("tickets", "qr_token", qrToken)
		if err != nil {
			return status.ErrNotFound
		}
		ticket := models.TicketFromRecord(record)

		eventRecord, err := txApp.FindRecordById("events", ticket.EventID)
		if err != nil {
			return fmt.Errorf("find event %s: %w", ticket.EventID, err)
		}
		event := models.EventFromRecord(eventRecord)

		if event.OrganizerID != validatorID {
			return status.ErrForbidden
		}

		switch ticket.Status {
		case models.TicketStatusUsed:
			return fmt.Errorf("%w at %s", status.ErrAlreadyUsed, ticket.UsedAt.Format(time.RFC3339))
		case models.TicketStatusCancelled:
			return status.ErrCancelled
		case models.TicketStatusValid:
		default:
			return status.ErrInvalidState
		}

		now := time.Now()
		if ticket.ExpiredAt(event.EventDate, s.Grace, now) {
			// Lazy transition: this is the only path that persists EXPIRED.
			// Returning an error here would roll the write back, so the
			// transaction commits and the caller gets ErrExpired afterwards.
			record.Set("status", models.TicketStatusExpired)
			if err := txApp.Save(record); err != nil {
				return fmt.Errorf("save expired ticket %s: %w", ticket.ID, err)
			}
			expired = true
			return nil
		}

		ticket.MarkUsed(validatorID, now)
		record.Set("status", ticket.Status)
		record.Set("used_at", now)
		record.Set("validated_by", validatorID)
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save validated ticket %s: %w", ticket.ID, err)
		}

		validated = models.TicketFromRecord(record)
		return nil
	})
	if err != nil {
		monitoring.TicketValidated(validationResult(err))
		return nil, err
	}
	if expired {
		monitoring.TicketValidated("expired")
		return nil, status.ErrExpired
	}

	monitoring.TicketValidated("used")
	return validated, nil
}

// Cancel voids a ticket and returns its capacity unit to the event, in one
// transaction. This is the only Release caller outside purchase compensation.
func (s *TicketService) Cancel(ctx context.Context, ticketID, callerID string) (*models.Ticket, error) {
	var cancelled *models.Ticket

	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("tickets", ticketID)
		if err != nil {
			return status.ErrNotFound
		}
		ticket := models.TicketFromRecord(record)

		eventRecord, err := txApp.FindRecordById("events", ticket.EventID)
		if err != nil {
			return fmt.Errorf("find event %s: %w", ticket.EventID, err)
		}
		event := models.EventFromRecord(eventRecord)

		isOwner := ticket.ClientID == callerID
		isOrganizer := event.OrganizerID == callerID
		if !isOwner && !isOrganizer {
			return status.ErrForbidden
		}
		if ticket.Status == models.TicketStatusUsed {
			return status.ErrAlreadyUsed
		}
		if event.HasPassed(time.Now()) {
			return status.ErrEventPassed
		}

		now := time.Now()
		ticket.Cancel(now)
		record.Set("status", ticket.Status)
		record.Set("cancelled_at", now)
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save cancelled ticket %s: %w", ticket.ID, err)
		}

		if err := s.Capacity.releaseTx(txApp, event.ID); err != nil {
			return err
		}

		cancelled = models.TicketFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// ValidationStatus values form the literal scanner contract.
const (
	ValidationStatusValid     = "VALID"
	ValidationStatusUsed      = "USED"
	ValidationStatusCancelled = "CANCELLED"
	ValidationStatusExpired   = "EXPIRED"
	ValidationStatusNotFound  = "NOT_FOUND"
	ValidationStatusError     = "ERROR"
)

type ValidationInfo struct {
	Status       string          `json:"status"`
	Message      string          `json:"message"`
	TicketCode   string          `json:"ticketCode,omitempty"`
	EventName    string          `json:"eventName,omitempty"`
	EventDate    *time.Time      `json:"eventDate,omitempty"`
	Venue        string          `json:"venue,omitempty"`
	ClientName   string          `json:"clientName,omitempty"`
	PurchaseDate *time.Time      `json:"purchaseDate,omitempty"`
	Price        decimal.Decimal `json:"price"`
	UsedAt       *time.Time      `json:"usedAt,omitempty"`
	ValidatedBy  string          `json:"validatedBy,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
}

// ValidationInfo is the read-only projection behind both the owner view and
// the scanner preview. It computes expiry on the fly and never mutates state.
func (s *TicketService) ValidationInfo(ctx context.Context, qrToken string) *ValidationInfo {
	if _, err := s.Tokens.Verify(qrToken); err != nil {
		return &ValidationInfo{Status: ValidationStatusNotFound, Message: "Ticket not found"}
	}

	record, err := s.App.FindFirstRecordByData("tickets", "qr_token", qrToken)
	if err != nil {
		return &ValidationInfo{Status: ValidationStatusNotFound, Message: "Ticket not found"}
	}
	ticket := models.TicketFromRecord(record)

	eventRecord, err := s.App.FindRecordById("events", ticket.EventID)
	if err != nil {
		slog.Error("validation info: event lookup failed", "ticket_id", ticket.ID, "error", err)
		return &ValidationInfo{Status: ValidationStatusError, Message: "Error resolving ticket"}
	}
	event := models.EventFromRecord(eventRecord)

	info := &ValidationInfo{
		TicketCode:   ticket.TicketCode,
		EventName:    event.Name,
		EventDate:    &event.EventDate,
		Venue:        event.Venue,
		ClientName:   s.clientName(ticket.ClientID),
		PurchaseDate: &ticket.PurchaseDate,
		Price:        ticket.Price,
	}

	switch ticket.Status {
	case models.TicketStatusValid:
		if ticket.ExpiredAt(event.EventDate, s.Grace, time.Now()) {
			info.Status = ValidationStatusExpired
			info.Message = "Ticket has expired"
		} else {
			info.Status = ValidationStatusValid
			info.Message = "Ticket valid - ready to use"
		}
	case models.TicketStatusUsed:
		info.Status = ValidationStatusUsed
		info.Message = "Ticket already used"
		info.UsedAt = ticket.UsedAt
		info.ValidatedBy = s.clientName(ticket.ValidatedBy)
	case models.TicketStatusCancelled:
		info.Status = ValidationStatusCancelled
		info.Message = "Ticket cancelled"
		info.CancelledAt = ticket.CancelledAt
	case models.TicketStatusExpired:
		info.Status = ValidationStatusExpired
		info.Message = "Ticket expired"
	default:
		info.Status = ValidationStatusError
		info.Message = "Unknown ticket state"
	}

	return info
}

func (s *TicketService) clientName(userID string) string {
	if userID == "" {
		return ""
	}
	record, err := s.App.FindRecordById("users", userID)
	if err != nil {
		return ""
	}
	return record.GetString("name")
}

func (s *TicketService) FindByTicketCode(ctx context.Context, ticketCode string) (*models.Ticket, error) {
	record, err := s.App.FindFirstRecordByData("tickets", "ticket_code", ticketCode)
	if err != nil {
		return nil, status.ErrNotFound
	}
	return models.TicketFromRecord(record), nil
}

func (s *TicketService) FindByQrToken(ctx context.Context, qrToken string) (*models.Ticket, error) {
	record, err := s.App.FindFirstRecordByData("tickets", "qr_token", qrToken)
	if err != nil {
		return nil, status.ErrNotFound
	}
	return models.TicketFromRecord(record), nil
}

func (s *TicketService) FindByClient(ctx context.Context, clientID string) ([]*models.Ticket, error) {
	records, err := s.App.FindRecordsByFilter(
		"tickets",
		"client = {:client}",
		"-purchase_date",
		0,
		0,
		map[string]any{"client": clientID},
	)
	if err != nil {
		return nil, fmt.Errorf("list client tickets: %w", err)
	}
	return ticketsFromRecords(records), nil
}

func (s *TicketService) FindByEvent(ctx context.Context, eventID string) ([]*models.Ticket, error) {
	records, err := s.App.FindRecordsByFilter(
		"tickets",
		"event = {:event}",
		"-purchase_date",
		0,
		0,
		map[string]any{"event": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("list event tickets: %w", err)
	}
	return ticketsFromRecords(records), nil
}

func ticketsFromRecords(records []*core.Record) []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, models.TicketFromRecord(r))
	}
	return tickets
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "used"
	case errors.Is(err, status.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, status.ErrCancelled):
		return "cancelled"
	case errors.Is(err, status.ErrExpired):
		return "expired"
	case errors.Is(err, status.ErrForbidden):
		return "forbidden"
	case errors.Is(err, status.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
