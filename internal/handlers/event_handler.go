package handlers

import (
	"net/http"
	"strconv"
	"time"
	"ticketsales/internal/services"
	"ticketsales/internal/store"
	"ticketsales/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// preferredImageWidth is the width of the hero image shown on event and venue pages.
const preferredImageWidth = 1920

type EventHandler struct {
	store  *store.Store
	ledger *services.Ledger
	now    func() time.Time
}

func NewEventHandler(s *store.Store, ledger *services.Ledger) *EventHandler {
	return &EventHandler{
		store:  s,
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type eventSummary struct {
	models.Event
	Image *models.Image `json:"image,omitempty"`
}

type eventDetail struct {
	models.Event
	Location   *models.Location        `json:"location"`
	Categories []models.TicketCategory `json:"categories"`
	Images     []models.Image          `json:"images"`
	Image      *models.Image           `json:"image,omitempty"`
	SoldOut    bool                    `json:"sold_out"`
}

type venueDetail struct {
	models.Location
	Images []models.Image `json:"images"`
	Image  *models.Image  `json:"image,omitempty"`
}

// preferredImage picks the image whose width is closest to the hero width.
func preferredImage(images []models.Image) *models.Image {
	var best *models.Image
	bestDiff := 0
	for i := range images {
		diff := images[i].Width - preferredImageWidth
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best, bestDiff = &images[i], diff
		}
	}
	return best
}

// ListEvents - upcoming events, soonest first
func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	q := h.store.Queries(e.Request.Context())

	events, err := q.ListUpcomingEvents(h.now(), 50)
	if err != nil {
		return respondError(e, err)
	}

	out := make([]eventSummary, 0, len(events))
	for _, ev := range events {
		images, err := q.ListEventImages(ev.ID)
		if err != nil {
			return respondError(e, err)
		}
		out = append(out, eventSummary{Event: ev, Image: preferredImage(images)})
	}
	return e.JSON(http.StatusOK, out)
}

// GetEvent - one event with its venue and ticket categories
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	q := h.store.Queries(e.Request.Context())

	event, err := q.GetEvent(e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}

	detail := eventDetail{Event: *event, SoldOut: true}
	if detail.Location, err = q.GetLocation(event.LocationID); err != nil {
		return respondError(e, err)
	}
	if detail.Categories, err = q.ListCategories(event.ID); err != nil {
		return respondError(e, err)
	}
	if detail.Images, err = q.ListEventImages(event.ID); err != nil {
		return respondError(e, err)
	}
	detail.Image = preferredImage(detail.Images)

	for _, cat := range detail.Categories {
		if !cat.SoldOut() {
			detail.SoldOut = false
		}
	}
	return e.JSON(http.StatusOK, detail)
}

// GetVenue - venue details and pictures
func (h *EventHandler) GetVenue(e *core.RequestEvent) error {
	q := h.store.Queries(e.Request.Context())

	loc, err := q.GetLocation(e.Request.PathValue("locationId"))
	if err != nil {
		return respondError(e, err)
	}

	detail := venueDetail{Location: *loc}
	if detail.Images, err = q.ListLocationImages(loc.ID); err != nil {
		return respondError(e, err)
	}
	detail.Image = preferredImage(detail.Images)
	return e.JSON(http.StatusOK, detail)
}

// GetAvailability - remaining seats of one category
func (h *EventHandler) GetAvailability(e *core.RequestEvent) error {
	id, err := strconv.ParseInt(e.Request.PathValue("categoryId"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("Invalid category id", nil)
	}

	avail, err := h.ledger.Availability(e.Request.Context(), id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, avail)
}

// ReserveSeats - take seats off sale without a purchase (superusers only)
func (h *EventHandler) ReserveSeats(e *core.RequestEvent) error {
	id, err := strconv.ParseInt(e.Request.PathValue("categoryId"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("Invalid category id", nil)
	}

	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	seats, err := h.ledger.Reserve(e.Request.Context(), id, body.Quantity)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]any{
		"category_id": seats.CategoryID,
		"event_id":    seats.EventID,
		"seats":       seats.Seats(),
		"remaining":   seats.Remaining,
	})
}
