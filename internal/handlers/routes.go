package handlers

import (
	"ticketsales/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Handlers groups every route handler of the API.
type Handlers struct {
	Queue    *QueueHandler
	Purchase *PurchaseHandler
	Event    *EventHandler
	Admin    *AdminHandler
	Health   *HealthHandler
	Limiter  *security.RateLimiter
}

// Register mounts the API on the PocketBase router. Buyer routes require an authenticated
// user; admin routes require a superuser.
func Register(se *core.ServeEvent, h Handlers) {
	se.Router.GET("/health", h.Health.Health)

	api := se.Router.Group("/api/v1")

	api.GET("/events", h.Event.ListEvents)
	api.GET("/events/{eventId}", h.Event.GetEvent)
	api.GET("/venues/{locationId}", h.Event.GetVenue)
	api.GET("/categories/{categoryId}/availability", h.Event.GetAvailability)
	api.POST("/categories/{categoryId}/reserve", h.Event.ReserveSeats).Bind(apis.RequireSuperuserAuth())

	queue := api.Group("/queue/{eventId}").Bind(apis.RequireAuth())
	queue.POST("/enter", h.Queue.EnterQueue).BindFunc(h.Limiter.Middleware)
	queue.GET("/poll", h.Queue.PollQueue)
	queue.GET("/position", h.Queue.GetQueuePosition)
	queue.POST("/leave", h.Queue.LeaveQueue)

	api.POST("/purchases", h.Purchase.Purchase).Bind(apis.RequireAuth()).BindFunc(h.Limiter.Middleware)
	api.GET("/purchases", h.Purchase.GetHistory).Bind(apis.RequireAuth())
	api.GET("/purchases/{id}/receipt", h.Purchase.GetReceipt).Bind(apis.RequireAuth())
	api.GET("/purchases/{id}/receipt.pdf", h.Purchase.GetReceiptPDF).Bind(apis.RequireAuth())
	api.GET("/tickets/{id}/qr.png", h.Purchase.GetTicketQR).Bind(apis.RequireAuth())

	admin := api.Group("/admin").Bind(apis.RequireSuperuserAuth())
	admin.GET("/queues/{eventId}", h.Admin.GetQueueDetails)
	admin.POST("/queues/{eventId}/remove", h.Admin.RemoveFromQueue)
}
