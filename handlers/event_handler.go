package handlers

import (
	"net/http"

	"eventpass/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventHandler struct {
	app          *pocketbase.PocketBase
	eventService *services.EventService
}

func NewEventHandler(app *pocketbase.PocketBase, eventService *services.EventService) *EventHandler {
	return &EventHandler{
		app:          app,
		eventService: eventService,
	}
}

func (h *EventHandler) Create(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	var in services.EventInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	event, err := h.eventService.CreateEvent(e.Request.Context(), in, auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusCreated, event)
}

func (h *EventHandler) Update(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	var in services.EventInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	event, err := h.eventService.UpdateEvent(e.Request.Context(), e.Request.PathValue("eventId"), in, auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, event)
}

func (h *EventHandler) Cancel(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	event, err := h.eventService.CancelEvent(e.Request.Context(), e.Request.PathValue("eventId"), auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, event)
}

func (h *EventHandler) Delete(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	if err := h.eventService.DeleteEvent(e.Request.Context(), e.Request.PathValue("eventId"), auth.Id); err != nil {
		return toApiError(err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *EventHandler) Get(e *core.RequestEvent) error {
	event, err := h.eventService.FindByID(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, event)
}

// List serves the public catalog. ?available=true narrows it to events that
// still have purchasable tickets.
func (h *EventHandler) List(e *core.RequestEvent) error {
	var (
		events any
		err    error
	)

	if e.Request.URL.Query().Get("available") == "true" {
		events, err = h.eventService.FindAvailable(e.Request.Context())
	} else {
		events, err = h.eventService.FindUpcoming(e.Request.Context())
	}
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, events)
}

func (h *EventHandler) ListMine(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	events, err := h.eventService.FindByOrganizer(e.Request.Context(), auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, events)
}
