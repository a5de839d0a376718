package service

import (
	"english_exam_backend/internal/config"
	"english_exam_backend/internal/model"
	"english_exam_backend/internal/repository"
	"english_exam_backend/internal/util"
	"english_exam_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubscriptionService struct {
	SubRepo *repository.SubscriptionRepository
	Gateway *PaymentGateway
	Cfg     *config.Config
}

func NewSubscriptionService(subRepo *repository.SubscriptionRepository, gateway *PaymentGateway, cfg *config.Config) *SubscriptionService {
	return &SubscriptionService{
		SubRepo: subRepo,
		Gateway: gateway,
		Cfg:     cfg,
	}
}

func (s *SubscriptionService) Plans() []config.PlanConfig {
	return s.Cfg.Payment.Plans
}

func (s *SubscriptionService) findPlan(code string) (*config.PlanConfig, error) {
	for i := range s.Cfg.Payment.Plans {
		if s.Cfg.Payment.Plans[i].Code == code {
			return &s.Cfg.Payment.Plans[i], nil
		}
	}
	return nil, util.ErrUnknownPlan
}

// GetStatus 用户当前订阅状态，无记录返回 nil。
func (s *SubscriptionService) GetStatus(userID uint) (*model.Subscription, error) {
	sub, err := s.SubRepo.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// Checkout 按套餐开支付单，返回收银台链接。订阅的实际生效在 webhook 里。
func (s *SubscriptionService) Checkout(ctx context.Context, userID uint, planCode string) (*model.PaymentOrder, string, error) {
	plan, err := s.findPlan(planCode)
	if err != nil {
		return nil, "", err
	}

	order := &model.PaymentOrder{
		UserID:      userID,
		PlanCode:    plan.Code,
		AmountCents: plan.AmountCents,
		Currency:    s.Cfg.Payment.Currency,
		Status:      "pending",
	}
	if err := s.SubRepo.CreateOrder(order); err != nil {
		return nil, "", err
	}

	checkout, err := s.Gateway.CreateCheckout(ctx, &CheckoutRequest{
		OrderID:     order.ID,
		AmountCents: plan.AmountCents,
		Currency:    s.Cfg.Payment.Currency,
		Description: fmt.Sprintf("Subscription plan: %s", plan.Name),
	})
	if err != nil {
		order.Status = "failed"
		s.SubRepo.UpdateOrder(order)
		return nil, "", err
	}

	order.GatewayRef = checkout.Ref
	if err := s.SubRepo.UpdateOrder(order); err != nil {
		return nil, "", err
	}
	return order, checkout.CheckoutURL, nil
}

// HandleWebhook 网关回调。验签失败直接拒绝；重复回调按已处理订单短路，
// 支付成功则激活（或顺延）订阅。
func (s *SubscriptionService) HandleWebhook(body []byte, signature string) error {
	if !s.Gateway.VerifySignature(body, signature) {
		return util.ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return err
	}

	order, err := s.SubRepo.FindOrderByGatewayRef(event.Ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrOrderNotFound
		}
		return err
	}

	// 网关可能重发回调，已处理过的订单直接返回成功
	if order.Status != "pending" {
		return nil
	}

	switch event.Type {
	case "payment.succeeded":
		return s.activate(order)
	case "payment.failed":
		order.Status = "failed"
		return s.SubRepo.UpdateOrder(order)
	default:
		logger.Log.Warn("Unknown payment webhook event", zap.String("type", event.Type))
		return nil
	}
}

func (s *SubscriptionService) activate(order *model.PaymentOrder) error {
	plan, err := s.findPlan(order.PlanCode)
	if err != nil {
		return err
	}

	now := time.Now()
	order.Status = "paid"
	order.PaidAt = &now
	if err := s.SubRepo.UpdateOrder(order); err != nil {
		return err
	}

	// 续费在现有到期日上顺延，否则从当前时间起算
	starts := now
	expires := now.AddDate(0, 0, plan.DurationDays)
	if existing, err := s.SubRepo.FindByUserID(order.UserID); err == nil && existing.IsActive(now) {
		starts = existing.StartsAt
		expires = existing.ExpiresAt.AddDate(0, 0, plan.DurationDays)
	}

	sub := &model.Subscription{
		UserID:    order.UserID,
		PlanCode:  order.PlanCode,
		Status:    "active",
		StartsAt:  starts,
		ExpiresAt: expires,
	}
	if err := s.SubRepo.Upsert(sub); err != nil {
		return err
	}

	logger.Log.Info("Subscription activated",
		zap.Uint("userId", order.UserID),
		zap.String("plan", order.PlanCode),
		zap.Time("expiresAt", expires))
	return nil
}
