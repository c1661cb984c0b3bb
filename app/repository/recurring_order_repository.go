package repository

import (
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
	"gorm.io/gorm"
)

type recurringOrderRepository struct {
	db *gorm.DB
}

// NewRecurringOrderRepository creates a new recurring order read repository
func NewRecurringOrderRepository(db *gorm.DB) RecurringOrderRepository {
	return &recurringOrderRepository{db: db}
}

func (r *recurringOrderRepository) GetByUUID(uuid string) (*models.RecurringOrder, error) {
	var order models.RecurringOrder
	if err := r.db.Where("uuid = ?", uuid).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *recurringOrderRepository) List(offset, limit int) ([]models.RecurringOrder, error) {
	var orders []models.RecurringOrder
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *recurringOrderRepository) ListBySubscription(subscriptionID uint) ([]models.RecurringOrder, error) {
	var orders []models.RecurringOrder
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("period_start DESC").Find(&orders).Error
	return orders, err
}

func (r *recurringOrderRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.RecurringOrder{}).Count(&count).Error
	return count, err
}

func (r *recurringOrderRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.RecurringOrder{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *recurringOrderRepository) CountCreatedSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.RecurringOrder{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}
