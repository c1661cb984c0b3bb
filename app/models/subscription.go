package models

import "time"

// Subscription lifecycle states. CANCELLED is terminal and retained for audit.
const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusPaused    = "paused"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription is the authoritative recurring-billing entity. Provider webhook
// events and admin commands mutate it exclusively through the state machine;
// rows are never deleted.
type Subscription struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UUID                string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	CustomerID          uint       `gorm:"not null;index" json:"customer_id"`
	PlanID              uint       `gorm:"not null;index" json:"plan_id"`
	ProviderAgreementID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_agreement" json:"provider_agreement_id"`
	Frequency           string     `gorm:"type:varchar(16);not null" json:"frequency"`
	UnitPriceMinor      int64      `gorm:"not null" json:"unit_price_minor"`
	Status              string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	NextBillingAt       *time.Time `gorm:"type:timestamp;default:null;index" json:"next_billing_at,omitempty"`
	PastDueSince        *time.Time `gorm:"type:timestamp;default:null" json:"past_due_since,omitempty"`
	CancelledAt         *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription reached its final state.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCancelled
}
