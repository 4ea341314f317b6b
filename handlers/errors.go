package handlers

import (
	"errors"
	"net/http"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// toApiError maps service sentinel errors onto transport errors so handlers
// never branch on error text.
func toApiError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrForbidden):
		return apis.NewForbiddenError("You are not allowed to perform this action", nil)
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrAlreadyProcessed),
		errors.Is(err, status.ErrAlreadyUsed),
		errors.Is(err, status.ErrCancelled),
		errors.Is(err, status.ErrExpired),
		errors.Is(err, status.ErrInvalidState):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, status.ErrSoldOut),
		errors.Is(err, status.ErrCapacityExceeded),
		errors.Is(err, status.ErrEventPassed),
		errors.Is(err, status.ErrEventNotActive):
		return apis.NewBadRequestError(err.Error(), nil)
	default:
		return apis.NewInternalServerError("Something went wrong", err)
	}
}

func requireAuth(e *core.RequestEvent) (*core.Record, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Authentication required", nil)
	}
	return e.Auth, nil
}

func requireOrganizer(e *core.RequestEvent) (*core.Record, error) {
	auth, err := requireAuth(e)
	if err != nil {
		return nil, err
	}
	if auth.GetString("role") != models.RoleOrganizer {
		return nil, apis.NewForbiddenError("Organizer account required", nil)
	}
	return auth, nil
}
