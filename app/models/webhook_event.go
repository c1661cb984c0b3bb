package models

import "time"

// Normalized provider event kinds derived from Vipps recurring callbacks.
const (
	EventKindChargeSucceeded    = "CHARGE_SUCCEEDED"
	EventKindChargeFailed       = "CHARGE_FAILED"
	EventKindAgreementCancelled = "AGREEMENT_CANCELLED"
	EventKindAgreementExpired   = "AGREEMENT_EXPIRED"
)

// WebhookEvent is the idempotency ledger: one row per provider event id,
// guarded by a unique index so a replayed delivery can never be admitted
// twice. Rows are retained for audit and never purged synchronously with
// processing.
type WebhookEvent struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ProviderEventID     string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider_event_id"`
	ProviderAgreementID string     `gorm:"type:varchar(191);not null;index" json:"provider_agreement_id"`
	Kind                string     `gorm:"type:varchar(32);not null;index" json:"kind"`
	AmountMinor         int64      `gorm:"not null;default:0" json:"amount_minor"`
	OccurredAt          time.Time  `gorm:"type:timestamp;not null" json:"occurred_at"`
	ReceivedAt          time.Time  `gorm:"type:timestamp;not null" json:"received_at"`
	PayloadJSON         string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt         *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError     string     `gorm:"type:text" json:"processing_error"`
	CreatedAt           time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
