package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/vipps"
	"github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// Bounded internal retry for per-subscription lock contention. Conflicts
	// are never surfaced to the provider as permanent failures.
	maxConflictRetries = 3
	conflictRetryDelay = 50 * time.Millisecond
	pastDueSweepBatch  = 100
)

// Service drives the subscription state machine. Every mutation, whether
// webhook-driven or an admin command, goes through here; there is no side
// channel that can produce an invariant-violating state.
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates a subscription service.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// NewServiceFromDB creates a subscription service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, notifier Notifier) *Service {
	return NewService(NewStore(db), notifier)
}

// CreateCheckout materializes a PENDING subscription for a submitted
// checkout. The plan price is snapshotted onto the subscription; later plan
// changes never affect it.
func (s *Service) CreateCheckout(ctx context.Context, customerID uint, plan *models.Plan, agreementID string) (*models.Subscription, error) {
	if customerID == 0 || plan == nil || agreementID == "" {
		return nil, errors.New("customer, plan and agreement id are required")
	}
	if !models.ValidFrequency(plan.Frequency) {
		return nil, fmt.Errorf("unsupported billing frequency %q", plan.Frequency)
	}

	sub := &models.Subscription{
		UUID:                uuid.NewString(),
		CustomerID:          customerID,
		PlanID:              plan.ID,
		ProviderAgreementID: agreementID,
		Frequency:           plan.Frequency,
		UnitPriceMinor:      plan.UnitPriceMinor,
		Status:              models.SubscriptionStatusPending,
	}
	err := s.store.WithinTransaction(ctx, func(tx Store) error {
		return tx.CreateSubscription(sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ProcessEvent runs one normalized webhook event through the pipeline:
// ledger admit, locked state transition and order generation in a single
// transaction. Duplicate deliveries succeed as no-ops. Lock contention is
// retried internally with bounded backoff.
func (s *Service) ProcessEvent(ctx context.Context, ev *vipps.WebhookEvent, rawPayload []byte) (*Result, error) {
	var result *Result
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err = s.processEventOnce(ctx, ev, rawPayload)
		if err == nil || !isLockConflict(err) {
			return result, err
		}
		log.Warnf("[Subscription] lock conflict on agreement %s (attempt %d/%d), retrying", ev.AgreementID, attempt+1, maxConflictRetries)
		time.Sleep(conflictRetryDelay << attempt)
	}
	return result, err
}

func (s *Service) processEventOnce(ctx context.Context, ev *vipps.WebhookEvent, rawPayload []byte) (*Result, error) {
	record := &models.WebhookEvent{
		ProviderEventID:     ev.ProviderEventID,
		ProviderAgreementID: ev.AgreementID,
		Kind:                ev.Kind,
		AmountMinor:         ev.AmountMinor,
		OccurredAt:          ev.OccurredAt,
		ReceivedAt:          time.Now().UTC(),
		PayloadJSON:         string(rawPayload),
	}

	result := &Result{}
	err := s.store.WithinTransaction(ctx, func(tx Store) error {
		fresh, err := tx.AdmitEvent(record)
		if err != nil {
			return err
		}
		if !fresh {
			result.Duplicate = true
			return nil
		}
		return s.applyEvent(tx, record, ev, result)
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		log.Infof("[Subscription] duplicate event %s, no-op", ev.ProviderEventID)
		return result, nil
	}
	if result.Ignored {
		log.Warnf("[Subscription] stale event %s (%s): %s", ev.ProviderEventID, ev.Kind, result.IgnoreReason)
		return result, nil
	}

	s.notifyAfterTransition(result.Subscription)
	return result, nil
}

// applyEvent applies one fresh event to its subscription under the row lock.
// Stale references are recorded on the ledger row and acked, not failed.
func (s *Service) applyEvent(tx Store, record *models.WebhookEvent, ev *vipps.WebhookEvent, result *Result) error {
	sub, err := tx.GetSubscriptionForUpdate(ev.AgreementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Ignored = true
			result.IgnoreReason = "no subscription for agreement"
			return tx.MarkEventProcessed(record.ID, ErrStaleReference.Error())
		}
		return err
	}
	if sub.IsTerminal() {
		result.Ignored = true
		result.IgnoreReason = "subscription already cancelled"
		return tx.MarkEventProcessed(record.ID, ErrStaleReference.Error())
	}

	switch ev.Kind {
	case models.EventKindChargeSucceeded:
		if err := s.applyChargeSucceeded(tx, sub, ev, result); err != nil {
			return err
		}
	case models.EventKindChargeFailed:
		s.applyChargeFailed(sub, ev)
	case models.EventKindAgreementCancelled, models.EventKindAgreementExpired:
		cancel(sub, ev.OccurredAt)
	default:
		result.Ignored = true
		result.IgnoreReason = fmt.Sprintf("unhandled event kind %q", ev.Kind)
		return tx.MarkEventProcessed(record.ID, finalIgnore(result.IgnoreReason))
	}

	if result.Ignored {
		return tx.MarkEventProcessed(record.ID, finalIgnore(result.IgnoreReason))
	}

	if err := tx.SaveSubscription(sub); err != nil {
		return err
	}
	result.Subscription = sub
	return tx.MarkEventProcessed(record.ID, "")
}

func (s *Service) applyChargeSucceeded(tx Store, sub *models.Subscription, ev *vipps.WebhookEvent, result *Result) error {
	switch sub.Status {
	case models.SubscriptionStatusPending, models.SubscriptionStatusActive, models.SubscriptionStatusPastDue:
	default:
		// Paused agreements are not charged by the merchant; a success here
		// is a provider replay or operator mistake. No-op, keep the row.
		result.Ignored = true
		result.IgnoreReason = fmt.Sprintf("charge success in state %q", sub.Status)
		return nil
	}

	if ev.AmountMinor != sub.UnitPriceMinor {
		log.Warnf("[Subscription] charge amount %d differs from subscription price %d on %s",
			ev.AmountMinor, sub.UnitPriceMinor, sub.UUID)
	}

	// The cycle key is the pre-transition scheduled period start. A first
	// charge has no schedule yet and anchors the cycle on the charge time.
	periodStart := ev.OccurredAt
	if sub.NextBillingAt != nil {
		periodStart = *sub.NextBillingAt
	}

	created, order, err := tx.CreateOrderIfAbsent(&models.RecurringOrder{
		UUID:           uuid.NewString(),
		SubscriptionID: sub.ID,
		PeriodStart:    periodStart.UTC(),
		AmountMinor:    sub.UnitPriceMinor,
		Status:         models.OrderStatusCreated,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Infof("[Subscription] cycle %s/%s already billed, reusing order %s",
			sub.UUID, periodStart.UTC().Format(time.RFC3339), order.UUID)
	}
	result.Order = order

	next := NextFromSchedule(sub.Frequency, periodStart)
	sub.Status = models.SubscriptionStatusActive
	sub.NextBillingAt = &next
	sub.PastDueSince = nil
	return nil
}

func (s *Service) applyChargeFailed(sub *models.Subscription, ev *vipps.WebhookEvent) {
	if sub.Status != models.SubscriptionStatusActive {
		// Failed charges outside ACTIVE leave the schedule untouched; the
		// retry window is already open or the subscription never started.
		return
	}
	sub.Status = models.SubscriptionStatusPastDue
	since := ev.OccurredAt.UTC()
	sub.PastDueSince = &since
	// nextBillingAt is deliberately unchanged: a later success resumes the
	// original schedule without drift.
}

func cancel(sub *models.Subscription, at time.Time) {
	when := at.UTC()
	sub.Status = models.SubscriptionStatusCancelled
	sub.NextBillingAt = nil
	sub.CancelledAt = &when
}

// Pause suspends an active subscription. The schedule anchor is retained but
// not actioned while paused.
func (s *Service) Pause(ctx context.Context, subUUID string) (*models.Subscription, error) {
	return s.applyCommand(ctx, subUUID, "pause", func(sub *models.Subscription) error {
		if sub.Status != models.SubscriptionStatusActive {
			return &InvalidTransitionError{Command: "pause", Status: sub.Status}
		}
		sub.Status = models.SubscriptionStatusPaused
		return nil
	})
}

// Resume reactivates a paused subscription with the schedule recomputed from
// the resume time.
func (s *Service) Resume(ctx context.Context, subUUID string) (*models.Subscription, error) {
	return s.applyCommand(ctx, subUUID, "resume", func(sub *models.Subscription) error {
		if sub.Status != models.SubscriptionStatusPaused {
			return &InvalidTransitionError{Command: "resume", Status: sub.Status}
		}
		next := NextFromSchedule(sub.Frequency, time.Now().UTC())
		sub.Status = models.SubscriptionStatusActive
		sub.NextBillingAt = &next
		return nil
	})
}

// Cancel terminates a subscription from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, subUUID string) (*models.Subscription, error) {
	sub, err := s.applyCommand(ctx, subUUID, "cancel", func(sub *models.Subscription) error {
		cancel(sub, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.SubscriptionCancelled(sub)
	}
	return sub, nil
}

func (s *Service) applyCommand(ctx context.Context, subUUID, command string, mutate func(*models.Subscription) error) (*models.Subscription, error) {
	if subUUID == "" {
		return nil, errors.New("subscription uuid is required")
	}

	var sub *models.Subscription
	err := s.store.WithinTransaction(ctx, func(tx Store) error {
		var err error
		sub, err = tx.GetSubscriptionByUUIDForUpdate(subUUID)
		if err != nil {
			return err
		}
		if sub.IsTerminal() {
			return &InvalidTransitionError{Command: command, Status: sub.Status}
		}
		if err := mutate(sub); err != nil {
			return err
		}
		return tx.SaveSubscription(sub)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Subscription] admin %s applied to %s -> %s", command, sub.UUID, sub.Status)
	return sub, nil
}

// AcknowledgeRefund marks an order as failed after a provider-side refund and
// records the acknowledging admin. Orders are never deleted.
func (s *Service) AcknowledgeRefund(ctx context.Context, orderUUID, adminName string) (*models.RecurringOrder, error) {
	if orderUUID == "" {
		return nil, errors.New("order uuid is required")
	}

	var order *models.RecurringOrder
	err := s.store.WithinTransaction(ctx, func(tx Store) error {
		var err error
		order, err = tx.GetOrderByUUIDForUpdate(orderUUID)
		if err != nil {
			return err
		}
		order.Status = models.OrderStatusFailed
		order.RefundAckBy = adminName
		return tx.SaveOrder(order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkOrderFulfilled records that an order was handed to shipping.
func (s *Service) MarkOrderFulfilled(ctx context.Context, orderUUID string) (*models.RecurringOrder, error) {
	if orderUUID == "" {
		return nil, errors.New("order uuid is required")
	}

	var order *models.RecurringOrder
	err := s.store.WithinTransaction(ctx, func(tx Store) error {
		var err error
		order, err = tx.GetOrderByUUIDForUpdate(orderUUID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusCreated {
			return &InvalidTransitionError{Command: "fulfill", Status: order.Status}
		}
		now := time.Now().UTC()
		order.Status = models.OrderStatusFulfilled
		order.FulfilledAt = &now
		return tx.SaveOrder(order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SweepPastDue cancels subscriptions whose dunning retry window has elapsed
// without a successful charge. The window is a policy parameter, not a
// constant. Returns the number of subscriptions cancelled.
func (s *Service) SweepPastDue(ctx context.Context, retryWindow time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-retryWindow).UTC()
	overdue, err := s.store.ListPastDueSince(cutoff, pastDueSweepBatch)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range overdue {
		subUUID := overdue[i].UUID
		err := s.store.WithinTransaction(ctx, func(tx Store) error {
			sub, err := tx.GetSubscriptionByUUIDForUpdate(subUUID)
			if err != nil {
				return err
			}
			// Re-check under the lock: a charge success may have raced the sweep.
			if sub.Status != models.SubscriptionStatusPastDue || sub.PastDueSince == nil || sub.PastDueSince.After(cutoff) {
				return nil
			}
			cancel(sub, now)
			if err := tx.SaveSubscription(sub); err != nil {
				return err
			}
			swept++
			if s.notifier != nil {
				s.notifier.SubscriptionCancelled(sub)
			}
			return nil
		})
		if err != nil {
			log.Errorf("[Subscription] sweep failed for %s: %v", subUUID, err)
		}
	}
	return swept, nil
}

// ReprocessEvent re-runs a stored ledger event whose transition previously
// failed, bypassing the admit step (the event is already admitted).
func (s *Service) ReprocessEvent(ctx context.Context, eventID uint) (*Result, error) {
	result := &Result{}
	err := s.store.WithinTransaction(ctx, func(tx Store) error {
		record, err := tx.GetEventByID(eventID)
		if err != nil {
			return err
		}
		if record.ProcessedAt != nil && record.ProcessingError == "" {
			result.Duplicate = true
			return nil
		}
		if IsFinalProcessingError(record.ProcessingError) {
			// The ignore was decided against the state at delivery time;
			// applying it now would bill an uncharged cycle.
			result.Ignored = true
			result.IgnoreReason = record.ProcessingError
			return nil
		}
		ev := &vipps.WebhookEvent{
			ProviderEventID: record.ProviderEventID,
			AgreementID:     record.ProviderAgreementID,
			Kind:            record.Kind,
			AmountMinor:     record.AmountMinor,
			OccurredAt:      record.OccurredAt,
		}
		return s.applyEvent(tx, record, ev, result)
	})
	if err != nil {
		return nil, err
	}
	if result.Subscription != nil {
		s.notifyAfterTransition(result.Subscription)
	}
	return result, nil
}

func (s *Service) notifyAfterTransition(sub *models.Subscription) {
	if s.notifier == nil || sub == nil {
		return
	}
	switch sub.Status {
	case models.SubscriptionStatusPastDue:
		s.notifier.SubscriptionPastDue(sub)
	case models.SubscriptionStatusCancelled:
		s.notifier.SubscriptionCancelled(sub)
	}
}

// isLockConflict reports whether err is MySQL lock contention (deadlock or
// lock wait timeout), which is safe to retry from the top.
func isLockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	return false
}
