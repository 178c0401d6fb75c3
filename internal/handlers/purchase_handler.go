package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"ticketsales/internal/render"
	"ticketsales/internal/services"
	"ticketsales/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PurchaseHandler struct {
	recorder *services.Recorder
}

func NewPurchaseHandler(recorder *services.Recorder) *PurchaseHandler {
	return &PurchaseHandler{recorder: recorder}
}

type purchaseBody struct {
	CategoryID int64                 `json:"category_id"`
	Quantity   int                   `json:"quantity"`
	Payment    models.PaymentDetails `json:"payment"`
}

// Purchase - buy seats of one category
func (h *PurchaseHandler) Purchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var body purchaseBody
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if body.CategoryID <= 0 {
		return apis.NewBadRequestError("category_id is required", nil)
	}

	receipt, err := h.recorder.Purchase(e.Request.Context(), services.PurchaseRequest{
		UserID:     e.Auth.Id,
		CategoryID: body.CategoryID,
		Quantity:   body.Quantity,
		Payment:    body.Payment,
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, receipt)
}

// GetHistory - the caller's purchases, newest first
func (h *PurchaseHandler) GetHistory(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	records, err := h.recorder.History(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, records)
}

func (h *PurchaseHandler) GetReceipt(e *core.RequestEvent) error {
	receipt, err := h.receipt(e)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, receipt)
}

func (h *PurchaseHandler) GetReceiptPDF(e *core.RequestEvent) error {
	receipt, err := h.receipt(e)
	if err != nil {
		return respondError(e, err)
	}

	pdf, err := render.ReceiptPDF(*receipt)
	if err != nil {
		return respondError(e, err)
	}

	e.Response.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, receipt.Reference))
	return e.Blob(http.StatusOK, "application/pdf", pdf)
}

// receipt loads the caller's receipt named in the path.
func (h *PurchaseHandler) receipt(e *core.RequestEvent) (*models.Receipt, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Unauthorized", nil)
	}

	id, err := strconv.ParseInt(e.Request.PathValue("id"), 10, 64)
	if err != nil {
		return nil, apis.NewBadRequestError("Invalid purchase id", nil)
	}

	return h.recorder.Receipt(e.Request.Context(), e.Auth.Id, id)
}

// GetTicketQR - PNG QR code of one of the caller's tickets
func (h *PurchaseHandler) GetTicketQR(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	id, err := strconv.ParseInt(e.Request.PathValue("id"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("Invalid ticket id", nil)
	}

	ticket, tx, err := h.recorder.Ticket(e.Request.Context(), e.Auth.Id, id)
	if err != nil {
		return respondError(e, err)
	}

	size := render.DefaultQRSize
	if s, err := strconv.Atoi(e.Request.URL.Query().Get("size")); err == nil && s >= 64 && s <= 1024 {
		size = s
	}

	png, err := render.TicketQRCode(*ticket, tx.Reference, size)
	if err != nil {
		return respondError(e, err)
	}
	return e.Blob(http.StatusOK, "image/png", png)
}
