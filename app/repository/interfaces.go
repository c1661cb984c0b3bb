package repository

import (
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
)

// UserRepository defines the interface for admin user database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

// PlanRepository defines the interface for plan catalog operations
type PlanRepository interface {
	Create(plan *models.Plan) error
	GetByID(id uint) (*models.Plan, error)
	GetByCode(code string) (*models.Plan, error)
	ListActive() ([]models.Plan, error)
}

// SubscriptionRepository defines the read-model interface for subscriptions.
// All writes go through the subscription service's transactional store.
type SubscriptionRepository interface {
	GetByID(id uint) (*models.Subscription, error)
	GetByUUID(uuid string) (*models.Subscription, error)
	GetByAgreementID(agreementID string) (*models.Subscription, error)
	List(offset, limit int) ([]models.Subscription, error)
	ListByStatus(status string, offset, limit int) ([]models.Subscription, error)
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
}

// RecurringOrderRepository defines the read-model interface for orders
type RecurringOrderRepository interface {
	GetByUUID(uuid string) (*models.RecurringOrder, error)
	List(offset, limit int) ([]models.RecurringOrder, error)
	ListBySubscription(subscriptionID uint) ([]models.RecurringOrder, error)
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
	CountCreatedSince(since time.Time) (int64, error)
}

// WebhookEventRepository defines the read-model interface for the ledger
type WebhookEventRepository interface {
	GetByID(id uint) (*models.WebhookEvent, error)
	List(offset, limit int) ([]models.WebhookEvent, error)
	ListByAgreement(agreementID string) ([]models.WebhookEvent, error)
	ListFailed(limit int) ([]models.WebhookEvent, error)
	Count() (int64, error)
}
