package router

import (
	"github.com/HenrikVollan/KakaoBoks/app/controllers"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/constants"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/middleware"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Payment provider webhook (no session, signature-verified in controller)
	app.Post(constants.VippsWebhookRoute, controllers.HandleVippsWebhook)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
