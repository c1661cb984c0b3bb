package counter

import (
	"context"
	"strconv"
	"time"

	"github.com/HenrikVollan/KakaoBoks/internal/pkg/cache"
)

const (
	webhookReceivedKey  = "webhook:counters:received"
	webhookDuplicateKey = "webhook:counters:duplicate"
	webhookRejectedKey  = "webhook:counters:rejected"
	ordersCreatedKey    = "order:counters:created"
)

// Counters holds the per-day totals read back for the admin dashboard.
type Counters struct {
	WebhooksReceived  int64 `json:"webhooks_received"`
	WebhooksDuplicate int64 `json:"webhooks_duplicate"`
	WebhooksRejected  int64 `json:"webhooks_rejected"`
	OrdersCreated     int64 `json:"orders_created"`
}

// AddWebhookReceived increments the received counter for today's bucket
func AddWebhookReceived() error {
	return incrToday(webhookReceivedKey)
}

// AddWebhookDuplicate increments the duplicate-delivery counter for today's bucket
func AddWebhookDuplicate() error {
	return incrToday(webhookDuplicateKey)
}

// AddWebhookRejected increments the rejected counter (bad signature or payload)
func AddWebhookRejected() error {
	return incrToday(webhookRejectedKey)
}

// AddOrderCreated increments the recurring-order counter for today's bucket
func AddOrderCreated() error {
	return incrToday(ordersCreatedKey)
}

// ReadDay returns the counters recorded for the given day.
func ReadDay(day time.Time) (Counters, error) {
	field := day.UTC().Format("2006-01-02")
	var c Counters
	var err error
	if c.WebhooksReceived, err = readField(webhookReceivedKey, field); err != nil {
		return c, err
	}
	if c.WebhooksDuplicate, err = readField(webhookDuplicateKey, field); err != nil {
		return c, err
	}
	if c.WebhooksRejected, err = readField(webhookRejectedKey, field); err != nil {
		return c, err
	}
	if c.OrdersCreated, err = readField(ordersCreatedKey, field); err != nil {
		return c, err
	}
	return c, nil
}

func incrToday(redisKey string) error {
	ctx := context.Background()
	field := time.Now().UTC().Format("2006-01-02")
	return cache.GetClient().HIncrBy(ctx, redisKey, field, 1).Err()
}

func readField(redisKey, field string) (int64, error) {
	ctx := context.Background()
	val, err := cache.GetClient().HGet(ctx, redisKey, field).Result()
	if err != nil {
		// Missing field means no events counted for that day
		if err.Error() == "redis: nil" {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
