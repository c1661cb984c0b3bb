package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"github.com/HenrikVollan/KakaoBoks/app/repository"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/jobqueue"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
)

// HandleAdminListSubscriptions lists subscriptions, optionally filtered by status
func HandleAdminListSubscriptions(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()

	status := c.Query("status")
	var (
		subs []models.Subscription
		err  error
	)
	if status != "" {
		subs, err = repo.ListByStatus(status, offset, limit)
	} else {
		subs, err = repo.List(offset, limit)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	out := make([]fiber.Map, 0, len(subs))
	for i := range subs {
		out = append(out, subscriptionJSON(&subs[i]))
	}
	return c.JSON(fiber.Map{"subscriptions": out, "total": total, "offset": offset, "limit": limit})
}

// HandleAdminGetSubscription returns one subscription with its orders and
// the ledger events recorded for its agreement
func HandleAdminGetSubscription(c *fiber.Ctx) error {
	factory := repository.GetGlobalFactory()
	sub, err := factory.GetSubscriptionRepository().GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	orders, err := factory.GetRecurringOrderRepository().ListBySubscription(sub.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	events, err := factory.GetWebhookEventRepository().ListByAgreement(sub.ProviderAgreementID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	orderList := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		orderList = append(orderList, orderJSON(&orders[i]))
	}
	eventList := make([]fiber.Map, 0, len(events))
	for i := range events {
		eventList = append(eventList, eventJSON(&events[i]))
	}

	resp := subscriptionJSON(sub)
	resp["orders"] = orderList
	resp["events"] = eventList
	return c.JSON(resp)
}

// HandleAdminPauseSubscription pauses an active subscription
func HandleAdminPauseSubscription(c *fiber.Ctx) error {
	return runSubscriptionCommand(c, func(ctx context.Context, svc *subscription.Service, uuid string) (*models.Subscription, error) {
		return svc.Pause(ctx, uuid)
	})
}

// HandleAdminResumeSubscription resumes a paused subscription
func HandleAdminResumeSubscription(c *fiber.Ctx) error {
	return runSubscriptionCommand(c, func(ctx context.Context, svc *subscription.Service, uuid string) (*models.Subscription, error) {
		return svc.Resume(ctx, uuid)
	})
}

// HandleAdminCancelSubscription cancels a subscription from any non-terminal state
func HandleAdminCancelSubscription(c *fiber.Ctx) error {
	return runSubscriptionCommand(c, func(ctx context.Context, svc *subscription.Service, uuid string) (*models.Subscription, error) {
		return svc.Cancel(ctx, uuid)
	})
}

// runSubscriptionCommand maps service errors onto the admin HTTP contract:
// unknown target is 404, a transition the state machine forbids is 409 with
// the current state in the body.
func runSubscriptionCommand(c *fiber.Ctx, cmd func(context.Context, *subscription.Service, string) (*models.Subscription, error)) error {
	notifier := jobqueue.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	svc := subscription.NewServiceFromDB(database.GetDB(), notifier)

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	sub, err := cmd(ctx, svc, c.Params("uuid"))
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

	return c.JSON(subscriptionJSON(sub))
}
