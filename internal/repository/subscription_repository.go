package repository

import (
	"english_exam_backend/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository struct {
	DB *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{DB: db}
}

func (r *SubscriptionRepository) FindByUserID(userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.DB.Where("user_id = ?", userID).First(&sub).Error
	return &sub, err
}

// HasActive 用户当前是否有生效中的订阅。无记录不算错误。
func (r *SubscriptionRepository) HasActive(userID uint, now time.Time) (bool, error) {
	sub, err := r.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.IsActive(now), nil
}

// Upsert 每个用户至多一条订阅记录，续费覆盖原有周期。
func (r *SubscriptionRepository) Upsert(sub *model.Subscription) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_code", "status", "starts_at", "expires_at", "updated_at",
		}),
	}).Create(sub).Error
}

func (r *SubscriptionRepository) CreateOrder(order *model.PaymentOrder) error {
	return r.DB.Create(order).Error
}

func (r *SubscriptionRepository) FindOrderByID(id string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	err := r.DB.First(&order, "id = ?", id).Error
	return &order, err
}

func (r *SubscriptionRepository) FindOrderByGatewayRef(ref string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	err := r.DB.Where("gateway_ref = ?", ref).First(&order).Error
	return &order, err
}

func (r *SubscriptionRepository) UpdateOrder(order *model.PaymentOrder) error {
	return r.DB.Save(order).Error
}

func (r *SubscriptionRepository) ListOrdersByUser(userID uint) ([]model.PaymentOrder, error) {
	var orders []model.PaymentOrder
	err := r.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&orders).Error
	return orders, err
}
