package handlers

import (
	"errors"
	"net/http"

	"eventpass/internal/status"
	"eventpass/security"
	"eventpass/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// ScanHandler serves entry-gate devices. Responses always carry one of the
// scanner statuses (VALID, USED, CANCELLED, EXPIRED, NOT_FOUND, ERROR) so a
// device can branch without parsing error payloads.
type ScanHandler struct {
	app           *pocketbase.PocketBase
	ticketService *services.TicketService
	scannerKeys   *security.ScannerKeyGuard
}

func NewScanHandler(app *pocketbase.PocketBase, ticketService *services.TicketService, scannerKeys *security.ScannerKeyGuard) *ScanHandler {
	return &ScanHandler{
		app:           app,
		ticketService: ticketService,
		scannerKeys:   scannerKeys,
	}
}

// Validate consumes a ticket at the gate. The decision itself is transacted
// in the service; this layer only shapes the scanner response.
func (h *ScanHandler) Validate(e *core.RequestEvent) error {
	auth, err := requireOrganizer(e)
	if err != nil {
		return err
	}

	var body struct {
		QrToken string `json:"qr_token"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if body.QrToken == "" {
		return apis.NewBadRequestError("qr_token is required", nil)
	}

	ticket, err := h.ticketService.Validate(e.Request.Context(), body.QrToken, auth.Id)
	if err != nil {
		return h.scanFailure(e, body.QrToken, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":  services.ValidationStatusValid,
		"message": "Ticket validated - entry granted",
		"ticket":  ticket,
	})
}

// scanFailure shapes a refused scan. Outcomes of the ticket's own state
// machine surface as the read-only projection, so the gate shows the
// post-decision state (a just-expired ticket reads EXPIRED here). Permission
// and infrastructure failures stay API errors: a validator who may not scan
// this event gets no ticket details and no admit signal.
func (h *ScanHandler) scanFailure(e *core.RequestEvent, qrToken string, err error) error {
	switch {
	case errors.Is(err, status.ErrAlreadyUsed),
		errors.Is(err, status.ErrCancelled),
		errors.Is(err, status.ErrExpired),
		errors.Is(err, status.ErrInvalidState),
		errors.Is(err, status.ErrNotFound):
		return e.JSON(http.StatusOK, h.ticketService.ValidationInfo(e.Request.Context(), qrToken))
	default:
		return toApiError(err)
	}
}

// Info is the read-only preview used before committing a scan. It never
// mutates ticket state. Gate hardware without a user session may present a
// device key instead; consuming a ticket still requires an organizer.
func (h *ScanHandler) Info(e *core.RequestEvent) error {
	if !h.scannerKeys.Verify(e.Request.Header.Get("X-Scanner-Key")) {
		if _, err := requireOrganizer(e); err != nil {
			return err
		}
	}

	token := e.Request.URL.Query().Get("token")
	if token == "" {
		return apis.NewBadRequestError("token is required", nil)
	}

	info := h.ticketService.ValidationInfo(e.Request.Context(), token)
	return e.JSON(http.StatusOK, info)
}
