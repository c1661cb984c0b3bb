package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/HenrikVollan/KakaoBoks/app/repository"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/jobqueue"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/usercontext"
)

// HandleAdminListOrders lists recurring orders newest first
func HandleAdminListOrders(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	repo := repository.GetGlobalFactory().GetRecurringOrderRepository()

	orders, err := repo.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	out := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		om := orderJSON(&orders[i])
		om["subscription_id"] = orders[i].SubscriptionID
		out = append(out, om)
	}
	return c.JSON(fiber.Map{"orders": out, "total": total, "offset": offset, "limit": limit})
}

// HandleAdminGetOrder returns one order by UUID
func HandleAdminGetOrder(c *fiber.Ctx) error {
	order, err := repository.GetGlobalFactory().GetRecurringOrderRepository().GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	om := orderJSON(order)
	om["subscription_id"] = order.SubscriptionID
	return c.JSON(om)
}

// HandleAdminFulfillOrder marks a created order as handed off to shipping
func HandleAdminFulfillOrder(c *fiber.Ctx) error {
	notifier := jobqueue.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	svc := subscription.NewServiceFromDB(database.GetDB(), notifier)

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	order, err := svc.MarkOrderFulfilled(ctx, c.Params("uuid"))
	if err != nil {
		var transitionErr *subscription.InvalidTransitionError
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		case errors.As(err, &transitionErr):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":          "invalid_transition",
				"message":        transitionErr.Error(),
				"current_status": transitionErr.Status,
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	om := orderJSON(order)
	om["subscription_id"] = order.SubscriptionID
	return c.JSON(om)
}

// HandleAdminAcknowledgeRefund records a provider-side refund against an order.
// The order is marked failed and kept; nothing else in the subscription changes.
func HandleAdminAcknowledgeRefund(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	notifier := jobqueue.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	svc := subscription.NewServiceFromDB(database.GetDB(), notifier)

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	order, err := svc.AcknowledgeRefund(ctx, c.Params("uuid"), userCtx.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	om := orderJSON(order)
	om["subscription_id"] = order.SubscriptionID
	return c.JSON(om)
}
