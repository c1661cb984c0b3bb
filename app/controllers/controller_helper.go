package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/money"
)

const defaultPageSize = 50

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// pagination reads offset/limit query parameters with sane bounds
func pagination(c *fiber.Ctx) (int, int) {
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit < 1 || limit > 200 {
		limit = defaultPageSize
	}
	return offset, limit
}

// subscriptionJSON renders a subscription with amounts as exact decimal strings
func subscriptionJSON(sub *models.Subscription) fiber.Map {
	return fiber.Map{
		"uuid":                  sub.UUID,
		"customer_id":           sub.CustomerID,
		"plan_id":               sub.PlanID,
		"provider_agreement_id": sub.ProviderAgreementID,
		"frequency":             sub.Frequency,
		"unit_price":            money.Amount(sub.UnitPriceMinor).String(),
		"status":                sub.Status,
		"next_billing_at":       formatTimePtr(sub.NextBillingAt),
		"past_due_since":        formatTimePtr(sub.PastDueSince),
		"cancelled_at":          formatTimePtr(sub.CancelledAt),
		"created_at":            sub.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func orderJSON(order *models.RecurringOrder) fiber.Map {
	return fiber.Map{
		"uuid":          order.UUID,
		"period_start":  order.PeriodStart.UTC().Format(time.RFC3339),
		"amount":        money.Amount(order.AmountMinor).String(),
		"status":        order.Status,
		"refund_ack_by": order.RefundAckBy,
		"fulfilled_at":  formatTimePtr(order.FulfilledAt),
		"created_at":    order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func eventJSON(ev *models.WebhookEvent) fiber.Map {
	return fiber.Map{
		"id":                    ev.ID,
		"provider_event_id":     ev.ProviderEventID,
		"provider_agreement_id": ev.ProviderAgreementID,
		"kind":                  ev.Kind,
		"amount":                money.Amount(ev.AmountMinor).String(),
		"occurred_at":           ev.OccurredAt.UTC().Format(time.RFC3339),
		"received_at":           ev.ReceivedAt.UTC().Format(time.RFC3339),
		"processed_at":          formatTimePtr(ev.ProcessedAt),
		"processing_error":      ev.ProcessingError,
	}
}
