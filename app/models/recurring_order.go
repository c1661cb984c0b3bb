package models

import "time"

const (
	OrderStatusCreated   = "created"
	OrderStatusFulfilled = "fulfilled"
	OrderStatusFailed    = "failed"
)

// RecurringOrder is one materialized charge cycle of a subscription. The
// unique (subscription_id, period_start) index is the second idempotency
// layer: the generator can be invoked concurrently or replayed and at most
// one order per cycle ever exists. The amount is snapshotted from the
// subscription at generation time, so later plan price changes never touch
// historical orders. Orders are never retracted, only marked failed.
type RecurringOrder struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UUID           string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	SubscriptionID uint       `gorm:"not null;index;uniqueIndex:ux_recurring_orders_cycle,priority:1" json:"subscription_id"`
	PeriodStart    time.Time  `gorm:"type:timestamp;not null;uniqueIndex:ux_recurring_orders_cycle,priority:2" json:"period_start"`
	AmountMinor    int64      `gorm:"not null" json:"amount_minor"`
	Status         string     `gorm:"type:varchar(32);not null;default:'created';index" json:"status"`
	RefundAckBy    string     `gorm:"type:varchar(150);default:''" json:"refund_ack_by,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	FulfilledAt    *time.Time `gorm:"type:timestamp;default:null" json:"fulfilled_at,omitempty"`
}

// CycleKey renders the billing cycle key used in logs and admin views.
func (o *RecurringOrder) CycleKey() string {
	return o.PeriodStart.UTC().Format(time.RFC3339)
}
