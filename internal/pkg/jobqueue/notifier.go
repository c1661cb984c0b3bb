package jobqueue

import (
	"github.com/HenrikVollan/KakaoBoks/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// QueueNotifier implements subscription.Notifier by enqueueing dunning mail
// jobs, keeping mail delivery out of the webhook transaction.
type QueueNotifier struct {
	queue *Queue
}

// NewQueueNotifier creates a notifier backed by the job queue.
func NewQueueNotifier(q *Queue) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) SubscriptionPastDue(sub *models.Subscription) {
	n.enqueue(sub, models.SubscriptionStatusPastDue)
}

func (n *QueueNotifier) SubscriptionCancelled(sub *models.Subscription) {
	n.enqueue(sub, models.SubscriptionStatusCancelled)
}

func (n *QueueNotifier) enqueue(sub *models.Subscription, status string) {
	if n.queue == nil || sub == nil {
		return
	}
	payload := DunningMailJobPayload{SubscriptionUUID: sub.UUID, Status: status}
	if _, err := n.queue.EnqueueJob(JobTypeDunningMail, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue] Failed to enqueue dunning mail for %s: %v", sub.UUID, err)
	}
}
