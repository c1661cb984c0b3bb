package subscription

import (
	"context"
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store provides the transactional DB operations the subscription service
// relies on. Admit, transition and order generation for one event run inside
// a single WithinTransaction scope: a failed transition rolls the ledger row
// back so a provider retry can still make progress.
type Store interface {
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
	AdmitEvent(event *models.WebhookEvent) (bool, error)
	MarkEventProcessed(eventID uint, processingError string) error
	CreateSubscription(sub *models.Subscription) error
	GetSubscriptionForUpdate(agreementID string) (*models.Subscription, error)
	GetSubscriptionByUUIDForUpdate(uuid string) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error
	CreateOrderIfAbsent(order *models.RecurringOrder) (bool, *models.RecurringOrder, error)
	GetOrderByUUIDForUpdate(uuid string) (*models.RecurringOrder, error)
	SaveOrder(order *models.RecurringOrder) error
	ListPastDueSince(cutoff time.Time, limit int) ([]models.Subscription, error)
	GetEventByID(eventID uint) (*models.WebhookEvent, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a subscription store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) WithinTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// AdmitEvent inserts the ledger row if the provider event id is unseen.
// The unique index makes this a single atomic insert-if-absent: exactly one
// concurrent caller observes fresh=true.
func (s *gormStore) AdmitEvent(event *models.WebhookEvent) (bool, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	// Duplicate: load the stored row so callers see the original record.
	var stored models.WebhookEvent
	if err := s.db.Where("provider_event_id = ?", event.ProviderEventID).First(&stored).Error; err != nil {
		return false, err
	}
	*event = stored
	return false, nil
}

func (s *gormStore) MarkEventProcessed(eventID uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return s.db.Model(&models.WebhookEvent{}).Where("id = ?", eventID).Updates(updates).Error
}

func (s *gormStore) CreateSubscription(sub *models.Subscription) error {
	return s.db.Create(sub).Error
}

// GetSubscriptionForUpdate loads the subscription row under a FOR UPDATE
// lock. This serializes concurrent events per subscription; events for
// different subscriptions never contend.
func (s *gormStore) GetSubscriptionForUpdate(agreementID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_agreement_id = ?", agreementID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) GetSubscriptionByUUIDForUpdate(uuid string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", uuid).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) SaveSubscription(sub *models.Subscription) error {
	return s.db.Save(sub).Error
}

// CreateOrderIfAbsent inserts the order unless its billing cycle key already
// exists. Returns the stored order either way.
func (s *gormStore) CreateOrderIfAbsent(order *models.RecurringOrder) (bool, *models.RecurringOrder, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "period_start"}},
		DoNothing: true,
	}).Create(order)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.RecurringOrder
	if err := s.db.Where("subscription_id = ? AND period_start = ?", order.SubscriptionID, order.PeriodStart).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) GetOrderByUUIDForUpdate(uuid string) (*models.RecurringOrder, error) {
	var order models.RecurringOrder
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", uuid).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *gormStore) SaveOrder(order *models.RecurringOrder) error {
	return s.db.Save(order).Error
}

func (s *gormStore) ListPastDueSince(cutoff time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.Where("status = ? AND past_due_since <= ?", models.SubscriptionStatusPastDue, cutoff).
		Order("past_due_since ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (s *gormStore) GetEventByID(eventID uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := s.db.First(&event, eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
