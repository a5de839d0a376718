package model

import "time"

// swagger:model Subscription
type Subscription struct {
	BaseModel
	UserID    uint      `gorm:"uniqueIndex;type:bigint unsigned" json:"userId"`
	PlanCode  string    `gorm:"size:50" json:"planCode"`
	Status    string    `gorm:"size:20;default:'active'" json:"status"` // active, expired, canceled
	StartsAt  time.Time `json:"startsAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == "active" && now.Before(s.ExpiresAt)
}

// PaymentOrder 支付网关的订单镜像，webhook 回调按 GatewayRef 定位。
type PaymentOrder struct {
	UUIDBase
	UserID      uint       `gorm:"index;type:bigint unsigned" json:"userId"`
	PlanCode    string     `gorm:"size:50" json:"planCode"`
	AmountCents int64      `gorm:"default:0" json:"amountCents"`
	Currency    string     `gorm:"size:10" json:"currency"`
	Status      string     `gorm:"size:20;default:'pending'" json:"status"` // pending, paid, failed
	GatewayRef  string     `gorm:"size:100;index" json:"gatewayRef"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}
