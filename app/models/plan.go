package models

import "time"

// Billing frequency constants shared by plans and subscriptions.
const (
	FrequencyWeekly   = "WEEKLY"
	FrequencyBiweekly = "BIWEEKLY"
	FrequencyMonthly  = "MONTHLY"
)

// Plan is a priced chocolate-box offering customers subscribe to. The plan
// price is a snapshot source only: subscriptions copy it at checkout and
// keep their own copy afterwards.
type Plan struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Code           string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code" validate:"required,min=2,max=50"`
	Name           string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Description    string    `gorm:"type:text" json:"description"`
	Frequency      string    `gorm:"type:varchar(16);not null;default:'MONTHLY'" json:"frequency" validate:"oneof=WEEKLY BIWEEKLY MONTHLY"`
	UnitPriceMinor int64     `gorm:"not null" json:"unit_price_minor" validate:"gte=0"`
	IsActive       bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidFrequency reports whether f is one of the supported billing frequencies.
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}
