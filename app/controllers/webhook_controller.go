package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/env"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/jobqueue"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/metrics/counter"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/vipps"
)

// HandleVippsWebhook is the single ingress for Vipps recurring-payment events.
// Signature check runs before anything touches storage; duplicates are
// answered 200 so the provider stops redelivering.
func HandleVippsWebhook(c *fiber.Ctx) error {
	_ = counter.AddWebhookReceived()

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Vipps-Signature"))
	secret := env.GetEnv("VIPPS_WEBHOOK_SECRET", "")

	if !vipps.VerifyWebhookSignature(rawBody, signature, secret) {
		_ = counter.AddWebhookRejected()
		log.Warnf("[Webhook] Rejected delivery with invalid signature from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := vipps.ParseWebhookEvent(rawBody)
	if err != nil {
		// Event types outside the recurring set are acked so the provider
		// stops redelivering; only malformed bodies are rejected.
		if errors.Is(err, vipps.ErrUnknownEventType) {
			log.Infof("[Webhook] Ignoring unhandled event type: %v", err)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		_ = counter.AddWebhookRejected()
		log.Warnf("[Webhook] Rejected malformed payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	notifier := jobqueue.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	svc := subscription.NewServiceFromDB(database.GetDB(), notifier)

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	result, err := svc.ProcessEvent(ctx, event, rawBody)
	if err != nil {
		log.Errorf("[Webhook] Processing failed for event %s: %v", event.ProviderEventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	if result.Duplicate {
		_ = counter.AddWebhookDuplicate()
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if result.Ignored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true, "reason": result.IgnoreReason})
	}
	if result.Order != nil {
		_ = counter.AddOrderCreated()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
