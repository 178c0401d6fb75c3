package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"ticketsales/internal/status"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errorResponse maps a domain error to its HTTP status and body. Storage and unknown
// errors get an opaque message.
func errorResponse(err error) (int, errorBody) {
	var fe *status.FieldError
	switch {
	case errors.As(err, &fe):
		return http.StatusBadRequest, errorBody{Code: "invalid_input", Message: fe.Error(), Field: fe.Field}
	case errors.Is(err, status.ErrSoldOut):
		return http.StatusConflict, errorBody{Code: "sold_out", Message: "Not enough seats left in this category"}
	case errors.Is(err, status.ErrInvalidQuantity):
		return http.StatusBadRequest, errorBody{Code: "invalid_quantity", Message: "Quantity must be at least 1"}
	case errors.Is(err, status.ErrInvalidPayment):
		return http.StatusBadRequest, errorBody{Code: "invalid_payment", Message: "Invalid payment details"}
	case errors.Is(err, status.ErrFailedPayment):
		return http.StatusPaymentRequired, errorBody{Code: "payment_declined", Message: "The payment was declined"}
	case errors.Is(err, status.ErrCategoryNotFound):
		return http.StatusNotFound, errorBody{Code: "category_not_found", Message: "Ticket category not found"}
	case errors.Is(err, status.ErrEventNotFound):
		return http.StatusNotFound, errorBody{Code: "event_not_found", Message: "Event not found"}
	case errors.Is(err, status.ErrNotQueued):
		return http.StatusNotFound, errorBody{Code: "not_queued", Message: "You are not in the queue for this event"}
	case errors.Is(err, status.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: "Not found"}
	case errors.Is(err, status.ErrNotAdmitted):
		return http.StatusForbidden, errorBody{Code: "not_admitted", Message: "Wait for your turn in the queue before buying"}
	}
	return http.StatusInternalServerError, errorBody{Code: "internal", Message: "Something went wrong, please try again"}
}

// respondError writes the mapped error response. Errors that already are API errors are
// returned for the router to render.
func respondError(e *core.RequestEvent, err error) error {
	var apiErr *router.ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	code, body := errorResponse(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "method", e.Request.Method, "path", e.Request.URL.Path, "error", err)
	}
	return e.JSON(code, body)
}
