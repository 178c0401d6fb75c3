package handlers

import (
	"net/http"
	"ticketsales/internal/services"
	"ticketsales/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	admission *services.AdmissionController
}

func NewAdminHandler(admission *services.AdmissionController) *AdminHandler {
	return &AdminHandler{admission: admission}
}

// GetQueueDetails - the event's line in order with metrics
func (h *AdminHandler) GetQueueDetails(e *core.RequestEvent) error {
	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")

	users, err := h.admission.Snapshot(ctx, eventID)
	if err != nil {
		return respondError(e, err)
	}
	metrics, err := h.admission.Metrics(ctx, eventID)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"metrics": metrics,
		"queue":   users,
	})
}

// RemoveFromQueue - drop a user from the event's line
func (h *AdminHandler) RemoveFromQueue(e *core.RequestEvent) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.UserID == "" {
		return apis.NewBadRequestError("user_id is required", nil)
	}

	removed, err := h.admission.Leave(e.Request.Context(), req.UserID, e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}
	if !removed {
		return respondError(e, status.ErrNotQueued)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "User removed from queue", "user_id": req.UserID})
}
