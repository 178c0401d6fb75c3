package handlers

import (
	"net/http"
	"ticketsales/internal/services"
	"ticketsales/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type QueueHandler struct {
	admission *services.AdmissionController
	positions *services.PositionCache
}

func NewQueueHandler(admission *services.AdmissionController, positions *services.PositionCache) *QueueHandler {
	return &QueueHandler{admission: admission, positions: positions}
}

// EnterQueue - join the event's waiting line
func (h *QueueHandler) EnterQueue(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	res, err := h.admission.Enqueue(e.Request.Context(), e.Auth.Id, e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}

	code := http.StatusCreated
	if res.AlreadyQueued {
		code = http.StatusOK
	}
	return e.JSON(code, res)
}

// PollQueue - ask whether it is the caller's turn to buy
func (h *QueueHandler) PollQueue(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	res, err := h.admission.Poll(e.Request.Context(), e.Auth.Id, e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, res)
}

// GetQueuePosition - cached place in line, computed when the cache has none. Only waiting
// users are cached; admitted users always get the live state.
func (h *QueueHandler) GetQueuePosition(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")

	if h.positions != nil {
		position, ok, err := h.positions.Lookup(ctx, eventID, e.Auth.Id)
		if err == nil && ok {
			return e.JSON(http.StatusOK, map[string]any{"position": position, "state": services.PollWaiting, "cached": true})
		}
	}

	res, err := h.admission.Poll(ctx, e.Auth.Id, eventID)
	if err != nil {
		return respondError(e, err)
	}
	if res.State == services.PollNotQueued {
		return respondError(e, status.ErrNotQueued)
	}
	return e.JSON(http.StatusOK, map[string]any{"position": res.Position, "state": res.State, "cached": false})
}

// LeaveQueue - give up the caller's place or lease
func (h *QueueHandler) LeaveQueue(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	removed, err := h.admission.Leave(e.Request.Context(), e.Auth.Id, e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}
	if !removed {
		return respondError(e, status.ErrNotQueued)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Successfully left queue"})
}
