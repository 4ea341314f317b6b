package handlers

import (
	"net/http"

	"eventpass/models"
	"eventpass/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	app           *pocketbase.PocketBase
	ticketService *services.TicketService
	eventService  *services.EventService
	renderService *services.RenderService
}

func NewTicketHandler(app *pocketbase.PocketBase, ticketService *services.TicketService, eventService *services.EventService, renderService *services.RenderService) *TicketHandler {
	return &TicketHandler{
		app:           app,
		ticketService: ticketService,
		eventService:  eventService,
		renderService: renderService,
	}
}

func (h *TicketHandler) Purchase(e *core.RequestEvent) error {
	auth, err := requireAuth(e)
	if err != nil {
		return err
	}

	ticket, err := h.ticketService.PurchaseTicket(e.Request.Context(), e.Request.PathValue("eventId"), auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusCreated, ticket)
}

func (h *TicketHandler) ListMine(e *core.RequestEvent) error {
	auth, err := requireAuth(e)
	if err != nil {
		return err
	}

	tickets, err := h.ticketService.FindByClient(e.Request.Context(), auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) ListByEvent(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	eventID := e.Request.PathValue("eventId")
	event, err := h.eventService.FindByID(e.Request.Context(), eventID)
	if err != nil {
		return toApiError(err)
	}
	if event.OrganizerID != auth.Id {
		return apis.NewForbiddenError("You are not allowed to view these tickets", nil)
	}

	tickets, err := h.ticketService.FindByEvent(e.Request.Context(), eventID)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) Cancel(e *core.RequestEvent) error {
	auth, err := requireAuth(e)
	if err != nil {
		return err
	}

	ticket, err := h.ticketService.Cancel(e.Request.Context(), e.Request.PathValue("ticketId"), auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// Qr streams the ticket's QR code as a PNG, for the holder or the event's
// organizer.
func (h *TicketHandler) Qr(e *core.RequestEvent) error {
	ticket, _, err := h.resolveOwned(e)
	if err != nil {
		return err
	}

	png, err := h.renderService.RenderQr(ticket.QrToken, 256)
	if err != nil {
		return toApiError(err)
	}

	e.Response.Header().Set("Content-Type", "image/png")
	e.Response.WriteHeader(http.StatusOK)
	_, err = e.Response.Write(png)
	return err
}

// Document streams the printable PDF for a ticket.
func (h *TicketHandler) Document(e *core.RequestEvent) error {
	ticket, event, err := h.resolveOwned(e)
	if err != nil {
		return err
	}

	doc, err := h.renderService.RenderTicketDocument(ticket, event)
	if err != nil {
		return toApiError(err)
	}

	e.Response.Header().Set("Content-Type", "application/pdf")
	e.Response.Header().Set("Content-Disposition", `attachment; filename="ticket-`+ticket.TicketCode+`.pdf"`)
	e.Response.WriteHeader(http.StatusOK)
	_, err = e.Response.Write(doc)
	return err
}

func (h *TicketHandler) resolveOwned(e *core.RequestEvent) (*models.Ticket, *models.Event, error) {
	auth, err := requireAuth(e)
	if err != nil {
		return nil, nil, err
	}

	ticket, err := h.ticketService.FindByTicketCode(e.Request.Context(), e.Request.PathValue("ticketCode"))
	if err != nil {
		return nil, nil, toApiError(err)
	}

	event, err := h.eventService.FindByID(e.Request.Context(), ticket.EventID)
	if err != nil {
		return nil, nil, toApiError(err)
	}

	if ticket.ClientID != auth.Id && event.OrganizerID != auth.Id {
		return nil, nil, apis.NewForbiddenError("You are not allowed to access this ticket", nil)
	}

	return ticket, event, nil
}
