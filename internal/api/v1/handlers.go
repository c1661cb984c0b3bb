package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/HenrikVollan/KakaoBoks/app/controllers"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/middleware"
)

// Pong is the ping response body
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 handler set
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers attaches all v1 routes to the given router group
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	// Public catalog
	r.Get("/plans", s.GetPlans)

	// Session auth
	r.Post("/auth/login", s.PostLogin)
	r.Post("/auth/logout", middleware.RequireAPISessionAuth, s.PostLogout)

	// Customer checkout
	r.Post("/checkout", middleware.RequireAPISessionAuth, s.PostCheckout)

	// Admin surface
	admin := r.Group("/admin", middleware.RequireAdmin)
	admin.Get("/stats", s.GetAdminStats)
	admin.Get("/subscriptions", s.GetAdminSubscriptions)
	admin.Get("/subscriptions/:uuid", s.GetAdminSubscription)
	admin.Post("/subscriptions/:uuid/pause", s.PostAdminPauseSubscription)
	admin.Post("/subscriptions/:uuid/resume", s.PostAdminResumeSubscription)
	admin.Post("/subscriptions/:uuid/cancel", s.PostAdminCancelSubscription)
	admin.Get("/orders", s.GetAdminOrders)
	admin.Get("/orders/:uuid", s.GetAdminOrder)
	admin.Post("/orders/:uuid/fulfill", s.PostAdminFulfillOrder)
	admin.Post("/orders/:uuid/refund-ack", s.PostAdminRefundAck)
	admin.Get("/events", s.GetAdminEvents)
	admin.Post("/events/:id/reprocess", s.PostAdminReprocessEvent)
	admin.Get("/queue/stats", s.GetAdminQueueStats)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPlans lists the active plan catalog
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return controllers.HandleListPlans(c)
}

// PostLogin authenticates an operator or customer
func (s *APIServer) PostLogin(c *fiber.Ctx) error {
	return controllers.HandleLogin(c)
}

// PostLogout terminates the caller's session
func (s *APIServer) PostLogout(c *fiber.Ctx) error {
	return controllers.HandleLogout(c)
}

// PostCheckout opens a pending subscription for the logged-in customer
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return controllers.HandleCreateCheckout(c)
}

// GetAdminStats returns dashboard counters
func (s *APIServer) GetAdminStats(c *fiber.Ctx) error {
	return controllers.HandleAdminStats(c)
}

// GetAdminSubscriptions lists subscriptions
func (s *APIServer) GetAdminSubscriptions(c *fiber.Ctx) error {
	return controllers.HandleAdminListSubscriptions(c)
}

// GetAdminSubscription returns one subscription with orders and ledger events
func (s *APIServer) GetAdminSubscription(c *fiber.Ctx) error {
	return controllers.HandleAdminGetSubscription(c)
}

func (s *APIServer) PostAdminPauseSubscription(c *fiber.Ctx) error {
	return controllers.HandleAdminPauseSubscription(c)
}

func (s *APIServer) PostAdminResumeSubscription(c *fiber.Ctx) error {
	return controllers.HandleAdminResumeSubscription(c)
}

func (s *APIServer) PostAdminCancelSubscription(c *fiber.Ctx) error {
	return controllers.HandleAdminCancelSubscription(c)
}

// GetAdminOrders lists recurring orders
func (s *APIServer) GetAdminOrders(c *fiber.Ctx) error {
	return controllers.HandleAdminListOrders(c)
}

func (s *APIServer) GetAdminOrder(c *fiber.Ctx) error {
	return controllers.HandleAdminGetOrder(c)
}

// PostAdminFulfillOrder marks an order as handed off to shipping
func (s *APIServer) PostAdminFulfillOrder(c *fiber.Ctx) error {
	return controllers.HandleAdminFulfillOrder(c)
}

// PostAdminRefundAck records a provider-side refund against an order
func (s *APIServer) PostAdminRefundAck(c *fiber.Ctx) error {
	return controllers.HandleAdminAcknowledgeRefund(c)
}

// GetAdminEvents lists the webhook event ledger
func (s *APIServer) GetAdminEvents(c *fiber.Ctx) error {
	return controllers.HandleAdminListEvents(c)
}

// PostAdminReprocessEvent reruns a stored event through the state machine
func (s *APIServer) PostAdminReprocessEvent(c *fiber.Ctx) error {
	return controllers.HandleAdminReprocessEvent(c)
}

// GetAdminQueueStats returns job queue statistics
func (s *APIServer) GetAdminQueueStats(c *fiber.Ctx) error {
	return controllers.HandleAdminQueueStats(c)
}
