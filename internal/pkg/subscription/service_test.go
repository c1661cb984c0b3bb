package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"github.com/HenrikVollan/KakaoBoks/internal/pkg/vipps"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// fakeStore is an in-memory Store with the same atomicity guarantees the
// GORM store gets from unique indexes and row locks.
type fakeStore struct {
	mu           sync.Mutex
	events       map[string]*models.WebhookEvent
	subsByAgr    map[string]*models.Subscription
	subsByUUID   map[string]*models.Subscription
	orders       map[string]*models.RecurringOrder
	ordersByUUID map[string]*models.RecurringOrder
	nextEventID  uint
	nextSubID    uint
	nextOrderID  uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:       map[string]*models.WebhookEvent{},
		subsByAgr:    map[string]*models.Subscription{},
		subsByUUID:   map[string]*models.Subscription{},
		orders:       map[string]*models.RecurringOrder{},
		ordersByUUID: map[string]*models.RecurringOrder{},
	}
}

func (f *fakeStore) WithinTransaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(f)
}

func (f *fakeStore) AdmitEvent(event *models.WebhookEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.events[event.ProviderEventID]; ok {
		*event = *stored
		return false, nil
	}
	f.nextEventID++
	event.ID = f.nextEventID
	cp := *event
	f.events[event.ProviderEventID] = &cp
	return true, nil
}

func (f *fakeStore) MarkEventProcessed(eventID uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == eventID {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeStore) CreateSubscription(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubID++
	sub.ID = f.nextSubID
	f.subsByAgr[sub.ProviderAgreementID] = sub
	f.subsByUUID[sub.UUID] = sub
	return nil
}

func (f *fakeStore) GetSubscriptionForUpdate(agreementID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subsByAgr[agreementID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) GetSubscriptionByUUIDForUpdate(uuid string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subsByUUID[uuid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) SaveSubscription(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subsByAgr[sub.ProviderAgreementID] = &cp
	f.subsByUUID[sub.UUID] = &cp
	return nil
}

func cycleKey(subscriptionID uint, periodStart time.Time) string {
	return fmt.Sprintf("%d|%s", subscriptionID, periodStart.UTC().Format(time.RFC3339))
}

func (f *fakeStore) CreateOrderIfAbsent(order *models.RecurringOrder) (bool, *models.RecurringOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cycleKey(order.SubscriptionID, order.PeriodStart)
	if existing, ok := f.orders[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	f.nextOrderID++
	order.ID = f.nextOrderID
	cp := *order
	f.orders[key] = &cp
	f.ordersByUUID[order.UUID] = &cp
	return true, order, nil
}

func (f *fakeStore) GetOrderByUUIDForUpdate(uuid string) (*models.RecurringOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.ordersByUUID[uuid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeStore) SaveOrder(order *models.RecurringOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *order
	f.orders[cycleKey(order.SubscriptionID, order.PeriodStart)] = &cp
	f.ordersByUUID[order.UUID] = &cp
	return nil
}

func (f *fakeStore) ListPastDueSince(cutoff time.Time, limit int) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, sub := range f.subsByUUID {
		if sub.Status == models.SubscriptionStatusPastDue && sub.PastDueSince != nil && !sub.PastDueSince.After(cutoff) {
			out = append(out, *sub)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetEventByID(eventID uint) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == eventID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) eventByProviderID(id string) *models.WebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.events[id]
	return &cp
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func testPlan() *models.Plan {
	return &models.Plan{
		ID:             1,
		Code:           "dark-classic",
		Name:           "Dark Classic Box",
		Frequency:      models.FrequencyMonthly,
		UnitPriceMinor: 12990,
	}
}

func chargeEvent(id, agreement string, amount int64, occurred time.Time) *vipps.WebhookEvent {
	return &vipps.WebhookEvent{
		ProviderEventID: id,
		AgreementID:     agreement,
		Kind:            models.EventKindChargeSucceeded,
		AmountMinor:     amount,
		OccurredAt:      occurred,
	}
}

func mustCheckout(t *testing.T, svc *Service, agreement string) *models.Subscription {
	t.Helper()
	sub, err := svc.CreateCheckout(context.Background(), 42, testPlan(), agreement)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	return sub
}

func TestFirstChargeActivatesAndCreatesOrder(t *testing.T) {
	// Scenario A: PENDING + CHARGE_SUCCEEDED on 2024-01-01 -> ACTIVE,
	// next billing 2024-02-01, one order at the subscription price.
	store := newFakeStore()
	svc := NewService(store, nil)
	sub := mustCheckout(t, svc, "agr-1")
	assert.Equal(t, models.SubscriptionStatusPending, sub.Status)
	assert.Nil(t, sub.NextBillingAt)

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	res, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, occurred), []byte(`{}`))
	assert.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.NotNil(t, res.Order)
	assert.Equal(t, int64(12990), res.Order.AmountMinor)
	assert.Equal(t, occurred, res.Order.PeriodStart)

	got := res.Subscription
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	if assert.NotNil(t, got.NextBillingAt) {
		assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), got.NextBillingAt.UTC())
	}
	assert.Equal(t, 1, store.orderCount())
}

func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	// Scenario B: identical payload delivered twice -> success, no second
	// order, no second transition.
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := chargeEvent("evt-1", "agr-1", 12990, occurred)

	first, err := svc.ProcessEvent(context.Background(), ev, []byte(`{}`))
	assert.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.ProcessEvent(context.Background(), ev, []byte(`{}`))
	assert.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 1, store.orderCount())

	sub, _ := store.GetSubscriptionForUpdate("agr-1")
	assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), sub.NextBillingAt.UTC())
}

func TestChargeFailedOpensRetryWindowWithoutDrift(t *testing.T) {
	// Scenario C: ACTIVE -> PAST_DUE keeps the schedule; the recovery charge
	// advances from the prior scheduled date, not from the recovery time.
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, start), []byte(`{}`))
	assert.NoError(t, err)

	failedAt := time.Date(2024, 2, 1, 9, 5, 0, 0, time.UTC)
	res, err := svc.ProcessEvent(context.Background(), &vipps.WebhookEvent{
		ProviderEventID: "evt-2",
		AgreementID:     "agr-1",
		Kind:            models.EventKindChargeFailed,
		OccurredAt:      failedAt,
	}, []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, res.Subscription.Status)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), res.Subscription.NextBillingAt.UTC())

	// Recovery three days later.
	recoveredAt := time.Date(2024, 2, 4, 16, 0, 0, 0, time.UTC)
	res, err = svc.ProcessEvent(context.Background(), chargeEvent("evt-3", "agr-1", 12990, recoveredAt), []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, res.Subscription.Status)
	// Advanced exactly one interval from the prior scheduled value.
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), res.Subscription.NextBillingAt.UTC())
	// The recovered cycle is keyed on the prior scheduled period start.
	assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), res.Order.PeriodStart.UTC())
	assert.Equal(t, 2, store.orderCount())
}

func TestAgreementCancelledIsTerminal(t *testing.T) {
	// Scenario D: AGREEMENT_CANCELLED on ACTIVE -> CANCELLED with null
	// schedule; a stale later CHARGE_SUCCEEDED is discarded.
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, start), []byte(`{}`))
	assert.NoError(t, err)

	res, err := svc.ProcessEvent(context.Background(), &vipps.WebhookEvent{
		ProviderEventID: "evt-2",
		AgreementID:     "agr-1",
		Kind:            models.EventKindAgreementCancelled,
		OccurredAt:      start.AddDate(0, 0, 10),
	}, []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, res.Subscription.Status)
	assert.Nil(t, res.Subscription.NextBillingAt)
	assert.NotNil(t, res.Subscription.CancelledAt)

	stale, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-3", "agr-1", 12990, start.AddDate(0, 1, 0)), []byte(`{}`))
	assert.NoError(t, err)
	assert.True(t, stale.Ignored)
	assert.Equal(t, 1, store.orderCount())

	sub, _ := store.GetSubscriptionForUpdate("agr-1")
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func TestUnknownAgreementIsStaleNotFatal(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	res, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-missing", 100, time.Now()), []byte(`{}`))
	assert.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, 0, store.orderCount())
}

func TestConcurrentDistinctSubscriptions(t *testing.T) {
	// Scenario E: events for different subscriptions process independently.
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")
	mustCheckout(t, svc, "agr-2")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, agr := range []string{"agr-1", "agr-2"} {
		wg.Add(1)
		go func(i int, agr string) {
			defer wg.Done()
			_, errs[i] = svc.ProcessEvent(context.Background(), chargeEvent("evt-"+agr, agr, 12990, occurred), []byte(`{}`))
		}(i, agr)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 2, store.orderCount())
	for _, agr := range []string{"agr-1", "agr-2"} {
		sub, _ := store.GetSubscriptionForUpdate(agr)
		assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	}
}

func TestConcurrentDuplicateAdmitFreshOnce(t *testing.T) {
	// For one event id, exactly one concurrent caller observes Fresh.
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	const n = 8
	results := make([]*Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = svc.ProcessEvent(context.Background(), chargeEvent("evt-dup", "agr-1", 12990, occurred), []byte(`{}`))
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, res := range results {
		if res != nil && !res.Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, store.orderCount())
}

func TestPauseResumeCycle(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	sub := mustCheckout(t, svc, "agr-1")

	// Pause requires ACTIVE.
	_, err := svc.Pause(context.Background(), sub.UUID)
	var invalid *InvalidTransitionError
	if assert.ErrorAs(t, err, &invalid) {
		assert.Equal(t, models.SubscriptionStatusPending, invalid.Status)
	}

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err = svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, occurred), []byte(`{}`))
	assert.NoError(t, err)

	paused, err := svc.Pause(context.Background(), sub.UUID)
	assert.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPaused, paused.Status)
	// Schedule anchor retained while paused.
	assert.NotNil(t, paused.NextBillingAt)

	resumed, err := svc.Resume(context.Background(), sub.UUID)
	assert.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, resumed.Status)
	// Recomputed from resume time, so strictly after the old anchor.
	assert.True(t, resumed.NextBillingAt.After(*paused.NextBillingAt))
}

func TestPausedChargeIgnoreIsFinal(t *testing.T) {
	// A charge success delivered while paused is a provider replay: the
	// merchant does not charge paused agreements. The ledger row must record
	// a permanent ignore, and re-running it after a resume must not mint an
	// order for an uncharged cycle or move the billing anchor.
	store := newFakeStore()
	svc := NewService(store, nil)
	sub := mustCheckout(t, svc, "agr-1")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, occurred), []byte(`{}`))
	assert.NoError(t, err)

	_, err = svc.Pause(context.Background(), sub.UUID)
	assert.NoError(t, err)

	res, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-2", "agr-1", 12990, occurred.AddDate(0, 1, 0)), []byte(`{}`))
	assert.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, 1, store.orderCount())

	record := store.eventByProviderID("evt-2")
	assert.True(t, IsFinalProcessingError(record.ProcessingError))

	resumed, err := svc.Resume(context.Background(), sub.UUID)
	assert.NoError(t, err)

	// Replay after resume stays a no-op.
	replayed, err := svc.ReprocessEvent(context.Background(), record.ID)
	assert.NoError(t, err)
	assert.True(t, replayed.Ignored)
	assert.Nil(t, replayed.Order)
	assert.Equal(t, 1, store.orderCount())

	got, _ := store.GetSubscriptionForUpdate("agr-1")
	assert.Equal(t, resumed.NextBillingAt.UTC(), got.NextBillingAt.UTC())
}

func TestStaleRowsAreFinal(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	_, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-missing", 100, time.Now()), []byte(`{}`))
	assert.NoError(t, err)

	record := store.eventByProviderID("evt-1")
	assert.True(t, IsFinalProcessingError(record.ProcessingError))
}

func TestCancelIsTerminalForCommands(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	sub := mustCheckout(t, svc, "agr-1")

	cancelled, err := svc.Cancel(context.Background(), sub.UUID)
	assert.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextBillingAt)

	// No transition exists out of CANCELLED.
	for name, cmd := range map[string]func(context.Context, string) (*models.Subscription, error){
		"pause":  svc.Pause,
		"resume": svc.Resume,
		"cancel": svc.Cancel,
	} {
		_, err := cmd(context.Background(), sub.UUID)
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s on cancelled subscription: got %v, want InvalidTransitionError", name, err)
		}
		assert.Equal(t, models.SubscriptionStatusCancelled, invalid.Status)
	}
}

func TestSweepPastDue(t *testing.T) {
	// The retry window is a policy parameter; sweep honors whatever is set.
	for _, window := range []time.Duration{7 * 24 * time.Hour, 14 * 24 * time.Hour} {
		store := newFakeStore()
		svc := NewService(store, nil)
		mustCheckout(t, svc, "agr-1")

		start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		_, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, start), []byte(`{}`))
		assert.NoError(t, err)

		failedAt := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		_, err = svc.ProcessEvent(context.Background(), &vipps.WebhookEvent{
			ProviderEventID: "evt-2",
			AgreementID:     "agr-1",
			Kind:            models.EventKindChargeFailed,
			OccurredAt:      failedAt,
		}, []byte(`{}`))
		assert.NoError(t, err)

		// Within the window: untouched.
		swept, err := svc.SweepPastDue(context.Background(), window, failedAt.Add(window-time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 0, swept)

		// Past the window: cancelled.
		swept, err = svc.SweepPastDue(context.Background(), window, failedAt.Add(window+time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 1, swept)

		sub, _ := store.GetSubscriptionForUpdate("agr-1")
		assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
		assert.Nil(t, sub.NextBillingAt)
	}
}

func TestRefundAckMarksOrderFailed(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	res, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, occurred), []byte(`{}`))
	assert.NoError(t, err)

	order, err := svc.AcknowledgeRefund(context.Background(), res.Order.UUID, "henrik")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Equal(t, "henrik", order.RefundAckBy)
}

func TestMarkOrderFulfilled(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	mustCheckout(t, svc, "agr-1")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	res, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, occurred), []byte(`{}`))
	assert.NoError(t, err)

	order, err := svc.MarkOrderFulfilled(context.Background(), res.Order.UUID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusFulfilled, order.Status)
	assert.NotNil(t, order.FulfilledAt)

	// Fulfilling twice is a transition the order no longer admits.
	_, err = svc.MarkOrderFulfilled(context.Background(), order.UUID)
	var transitionErr *InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.OrderStatusFulfilled, transitionErr.Status)
}

type recordingNotifier struct {
	mu        sync.Mutex
	pastDue   int
	cancelled int
}

func (n *recordingNotifier) SubscriptionPastDue(*models.Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pastDue++
}

func (n *recordingNotifier) SubscriptionCancelled(*models.Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}

func TestNotifierReceivesLifecycleEvents(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier)
	sub := mustCheckout(t, svc, "agr-1")

	occurred := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.ProcessEvent(context.Background(), chargeEvent("evt-1", "agr-1", 12990, occurred), []byte(`{}`))
	assert.NoError(t, err)

	_, err = svc.ProcessEvent(context.Background(), &vipps.WebhookEvent{
		ProviderEventID: "evt-2",
		AgreementID:     "agr-1",
		Kind:            models.EventKindChargeFailed,
		OccurredAt:      occurred.AddDate(0, 1, 0),
	}, []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, 1, notifier.pastDue)

	_, err = svc.Cancel(context.Background(), sub.UUID)
	assert.NoError(t, err)
	assert.Equal(t, 1, notifier.cancelled)
}
