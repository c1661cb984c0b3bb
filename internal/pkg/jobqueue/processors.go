package jobqueue

import (
	"context"
	"fmt"

	"github.com/HenrikVollan/KakaoBoks/internal/pkg/database"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/env"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/mail"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/subscription"
	"github.com/gofiber/fiber/v2/log"
)

// processReprocessEventJob re-runs a stored ledger event whose transition
// previously failed (e.g. transient storage error after admit).
func (q *Queue) processReprocessEventJob(ctx context.Context, job *Job) error {
	payload, err := ReprocessEventJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reprocess payload: %w", err)
	}
	if payload.EventID == 0 {
		return fmt.Errorf("reprocess payload missing event_id")
	}

	svc := subscription.NewServiceFromDB(database.GetDB(), NewQueueNotifier(q))
	result, err := svc.ReprocessEvent(ctx, payload.EventID)
	if err != nil {
		return err
	}
	if result.Ignored {
		log.Warnf("[JobQueue] Event %d reprocessed as stale: %s", payload.EventID, result.IgnoreReason)
	}
	return nil
}

// processDunningMailJob sends a dunning/cancellation notice to the ops
// mailbox. Mail failures are retried by the queue, never by the pipeline.
func (q *Queue) processDunningMailJob(job *Job) error {
	payload, err := DunningMailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid dunning payload: %w", err)
	}

	to := env.GetEnv("DUNNING_NOTIFY_EMAIL", "")
	if to == "" {
		log.Warn("[JobQueue] DUNNING_NOTIFY_EMAIL not set, dropping dunning notice")
		return nil
	}

	subject := fmt.Sprintf("Subscription %s is %s", payload.SubscriptionUUID, payload.Status)
	body := fmt.Sprintf("<p>Subscription <b>%s</b> moved to status <b>%s</b>. See the admin panel for details.</p>",
		payload.SubscriptionUUID, payload.Status)
	return mail.SendMail(to, subject, body)
}
