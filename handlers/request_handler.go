package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"eventpass/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const dashboardCacheTTL = 30 * time.Second

type RequestHandler struct {
	app            *pocketbase.PocketBase
	requestService *services.RequestService
	ticketService  *services.TicketService
	redis          *redis.Client
}

func NewRequestHandler(app *pocketbase.PocketBase, requestService *services.RequestService, ticketService *services.TicketService, redisClient *redis.Client) *RequestHandler {
	return &RequestHandler{
		app:            app,
		requestService: requestService,
		ticketService:  ticketService,
		redis:          redisClient,
	}
}

// Submit accepts a public, unauthenticated ticket request for an event.
func (h *RequestHandler) Submit(e *core.RequestEvent) error {
	var in services.RequestInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	request, err := h.requestService.CreateRequest(e.Request.Context(), in, e.Request.PathValue("eventId"))
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusCreated, request)
}

// Cancel lets a requester withdraw a pending request. Ownership is proven
// with the submission email, no account needed.
func (h *RequestHandler) Cancel(e *core.RequestEvent) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if body.Email == "" {
		return apis.NewBadRequestError("Email is required", nil)
	}

	if err := h.requestService.CancelRequest(e.Request.Context(), e.Request.PathValue("requestId"), body.Email); err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, map[string]string{"message": "Request cancelled"})
}

// Approve transitions a pending request and, unless skip_tickets is set,
// issues the tickets in the same call.
func (h *RequestHandler) Approve(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	var body struct {
		Notes       string `json:"notes"`
		SkipTickets bool   `json:"skip_tickets"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	requestID := e.Request.PathValue("requestId")
	request, err := h.requestService.ApproveRequest(e.Request.Context(), requestID, auth.Id, body.Notes)
	if err != nil {
		return toApiError(err)
	}

	response := map[string]any{"request": request}
	if !body.SkipTickets {
		tickets, err := h.ticketService.GenerateTicketsFromRequest(e.Request.Context(), requestID)
		if err != nil {
			// The approval already committed; report the issuance failure
			// without undoing the decision.
			slog.Error("ticket generation after approval failed", "request_id", requestID, "error", err)
			response["tickets_error"] = "approved, but ticket generation failed"
		} else {
			response["tickets"] = tickets
		}
	}

	h.invalidateDashboard(e, auth.Id)
	return e.JSON(http.StatusOK, response)
}

func (h *RequestHandler) Reject(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	request, err := h.requestService.RejectRequest(e.Request.Context(), e.Request.PathValue("requestId"), auth.Id, body.Notes)
	if err != nil {
		return toApiError(err)
	}

	h.invalidateDashboard(e, auth.Id)
	return e.JSON(http.StatusOK, request)
}

func (h *RequestHandler) Get(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	request, err := h.requestService.FindByID(e.Request.Context(), e.Request.PathValue("requestId"))
	if err != nil {
		return toApiError(err)
	}

	event, err := h.requestService.App.FindRecordById("events", request.EventID)
	if err != nil || event.GetString("organizer") != auth.Id {
		return apis.NewForbiddenError("You are not allowed to view this request", nil)
	}

	return e.JSON(http.StatusOK, request)
}

func (h *RequestHandler) ListByEvent(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	eventID := e.Request.PathValue("eventId")
	event, err := h.requestService.App.FindRecordById("events", eventID)
	if err != nil {
		return apis.NewNotFoundError("Not found", nil)
	}
	if event.GetString("organizer") != auth.Id {
		return apis.NewForbiddenError("You are not allowed to view these requests", nil)
	}

	requests, err := h.requestService.FindByEvent(e.Request.Context(), eventID)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, requests)
}

func (h *RequestHandler) ListMine(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	var requests any
	if e.Request.URL.Query().Get("pending") == "true" {
		requests, err = h.requestService.FindPendingByOrganizer(e.Request.Context(), auth.Id)
	} else {
		requests, err = h.requestService.FindByOrganizer(e.Request.Context(), auth.Id)
	}
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, requests)
}

// Dashboard aggregates the organizer's workload. The response is cached in
// redis for a short window since organizers poll it.
func (h *RequestHandler) Dashboard(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	cacheKey := "dashboard:" + auth.Id

	if cached, err := h.redis.Get(ctx, cacheKey).Bytes(); err == nil {
		var payload map[string]any
		if err := json.Unmarshal(cached, &payload); err == nil {
			return e.JSON(http.StatusOK, payload)
		}
	}

	pendingCount, err := h.requestService.CountPendingByOrganizer(ctx, auth.Id)
	if err != nil {
		return toApiError(err)
	}
	pending, err := h.requestService.FindPendingByOrganizer(ctx, auth.Id)
	if err != nil {
		return toApiError(err)
	}
	recent, err := h.requestService.RecentRequests(ctx)
	if err != nil {
		return toApiError(err)
	}

	payload := map[string]any{
		"pending_count":    pendingCount,
		"pending_requests": pending,
		"recent_requests":  recent,
		"generated_at":     time.Now().UTC(),
	}

	if raw, err := json.Marshal(payload); err == nil {
		if err := h.redis.Set(ctx, cacheKey, raw, dashboardCacheTTL).Err(); err != nil {
			slog.Warn("dashboard cache write failed", "organizer_id", auth.Id, "error", err)
		}
	}

	return e.JSON(http.StatusOK, payload)
}

func (h *RequestHandler) invalidateDashboard(e *core.RequestEvent, organizerID string) {
	if err := h.redis.Del(e.Request.Context(), "dashboard:"+organizerID).Err(); err != nil {
		slog.Warn("dashboard cache invalidation failed", "organizer_id", organizerID, "error", err)
	}
}
