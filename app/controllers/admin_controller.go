package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"github.com/HenrikVollan/KakaoBoks/app/repository"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/jobqueue"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/metrics/counter"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
)

// HandleAdminStats returns subscription counts by state, order volume and
// today's webhook counters for the operator dashboard
func HandleAdminStats(c *fiber.Ctx) error {
	factory := repository.GetGlobalFactory()
	subRepo := factory.GetSubscriptionRepository()
	orderRepo := factory.GetRecurringOrderRepository()

	statuses := []string{
		models.SubscriptionStatusPending,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusPaused,
		models.SubscriptionStatusCancelled,
	}
	byStatus := fiber.Map{}
	for _, st := range statuses {
		n, err := subRepo.CountByStatus(st)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		byStatus[st] = n
	}

	totalOrders, err := orderRepo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	ordersToday, err := orderRepo.CountCreatedSince(time.Now().UTC().Truncate(24 * time.Hour))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	counters, err := counter.ReadDay(time.Now())
	if err != nil {
		log.Warnf("[Admin] Failed to read webhook counters: %v", err)
	}

	return c.JSON(fiber.Map{
		"subscriptions": byStatus,
		"orders": fiber.Map{
			"total":         totalOrders,
			"created_today": ordersToday,
		},
		"webhooks_today": counters,
	})
}

// HandleAdminListEvents lists ledger events newest first
func HandleAdminListEvents(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	repo := repository.GetGlobalFactory().GetWebhookEventRepository()

	events, err := repo.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	out := make([]fiber.Map, 0, len(events))
	for i := range events {
		out = append(out, eventJSON(&events[i]))
	}
	return c.JSON(fiber.Map{"events": out, "total": total, "offset": offset, "limit": limit})
}

// HandleAdminReprocessEvent reruns a stored ledger event through the state
// machine. The idempotency ledger is bypassed; the billing-cycle key still
// guards against double orders.
func HandleAdminReprocessEvent(c *fiber.Ctx) error {
	eventID, err := c.ParamsInt("id")
	if err != nil || eventID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event_id"})
	}

	notifier := jobqueue.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	svc := subscription.NewServiceFromDB(database.GetDB(), notifier)

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	result, err := svc.ReprocessEvent(ctx, uint(eventID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reprocess_failed"})
	}

	resp := fiber.Map{"ok": true, "ignored": result.Ignored}
	if result.IgnoreReason != "" {
		resp["reason"] = result.IgnoreReason
	}
	if result.Subscription != nil {
		resp["subscription"] = subscriptionJSON(result.Subscription)
	}
	if result.Order != nil {
		resp["order"] = orderJSON(result.Order)
	}
	return c.JSON(resp)
}

// HandleAdminQueueStats returns the Redis job queue statistics
func HandleAdminQueueStats(c *fiber.Ctx) error {
	stats, err := jobqueue.GetManager().GetQueue().GetStats(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(stats)
}
