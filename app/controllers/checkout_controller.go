package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/HenrikVollan/KakaoBoks/app/repository"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/jobqueue"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/money"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/usercontext"
)

type checkoutRequest struct {
	PlanCode    string `json:"plan_code" validate:"required"`
	AgreementID string `json:"agreement_id" validate:"required"`
}

// HandleListPlans returns the active plan catalog with exact decimal prices
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalFactory().GetPlanRepository().ListActive()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"code":       p.Code,
			"name":       p.Name,
			"frequency":  p.Frequency,
			"unit_price": money.Amount(p.UnitPriceMinor).String(),
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleCreateCheckout opens a pending subscription for the logged-in customer.
// The subscription stays pending until the first captured charge arrives on
// the webhook; the plan price is snapshotted here.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	req.PlanCode = strings.TrimSpace(req.PlanCode)
	req.AgreementID = strings.TrimSpace(req.AgreementID)
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	plan, err := repository.GetGlobalFactory().GetPlanRepository().GetByCode(req.PlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_plan"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if !plan.IsActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "plan_inactive"})
	}

	notifier := jobqueue.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	svc := subscription.NewServiceFromDB(database.GetDB(), notifier)

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	sub, err := svc.CreateCheckout(ctx, userCtx.UserID, plan, req.AgreementID)
	if err != nil {
		log.Errorf("[Checkout] Failed to create subscription for customer %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(subscriptionJSON(sub))
}
