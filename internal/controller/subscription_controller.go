package controller

import (
	"english_exam_backend/internal/service"
	"english_exam_backend/internal/util"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SubscriptionController struct {
	SubscriptionService *service.SubscriptionService
}

func NewSubscriptionController(subscriptionService *service.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{SubscriptionService: subscriptionService}
}

// ListPlans godoc
// @Summary 订阅套餐列表
// @Tags 订阅
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/subscription/plans [get]
func (c *SubscriptionController) ListPlans(ctx *gin.Context) {
	util.Success(ctx, c.SubscriptionService.Plans())
}

// GetStatus godoc
// @Summary 我的订阅状态
// @Tags 订阅
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.Subscription}
// @Router /api/subscription [get]
func (c *SubscriptionController) GetStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	sub, err := c.SubscriptionService.GetStatus(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// swagger:model CheckoutRequestBody
type CheckoutRequestBody struct {
	PlanCode string `json:"planCode" binding:"required"`
}

// Checkout godoc
// @Summary 发起订阅支付
// @Description 在支付网关开单并返回托管收银台链接
// @Tags 订阅
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CheckoutRequestBody true "套餐"
// @Success 201 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "未知套餐"
// @Router /api/subscription/checkout [post]
func (c *SubscriptionController) Checkout(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CheckoutRequestBody
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	order, checkoutURL, err := c.SubscriptionService.Checkout(ctx.Request.Context(), claims.UserID, req.PlanCode)
	if err != nil {
		if errors.Is(err, util.ErrUnknownPlan) {
			util.BadRequest(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, gin.H{
		"orderId":     order.ID,
		"checkoutUrl": checkoutURL,
	})
}

// Webhook godoc
// @Summary 支付网关回调
// @Description 签名校验失败返回 401，重复回调幂等
// @Tags 订阅
// @Accept json
// @Produce json
// @Param X-Signature header string true "HMAC-SHA256 签名"
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response "签名非法"
// @Router /api/subscription/webhook [post]
func (c *SubscriptionController) Webhook(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 1<<20))
	if err != nil {
		util.BadRequest(ctx, "cannot read body")
		return
	}

	err = c.SubscriptionService.HandleWebhook(body, ctx.GetHeader("X-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidSignature):
			util.Error(ctx, http.StatusUnauthorized, err.Error())
		case errors.Is(err, util.ErrOrderNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, nil)
}
