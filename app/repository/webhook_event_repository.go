package repository

import (
	"github.com/HenrikVollan/KakaoBoks/app/models"
	"gorm.io/gorm"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event read repository
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) GetByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) List(offset, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&events).Error
	return events, err
}

func (r *webhookEventRepository) ListByAgreement(agreementID string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("provider_agreement_id = ?", agreementID).Order("occurred_at ASC").Find(&events).Error
	return events, err
}

// ListFailed returns events that were admitted but stored a processing error,
// candidates for the background retry ticker.
func (r *webhookEventRepository) ListFailed(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("processing_error <> ''").Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *webhookEventRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.WebhookEvent{}).Count(&count).Error
	return count, err
}
