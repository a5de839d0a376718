package util

import "errors"

var (
	ErrUserNotFound         = errors.New("用户不存在")
	ErrEmailRegistered      = errors.New("该邮箱已被注册")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamNotPublished     = errors.New("exam not published")
	ErrExamNotAccessible    = errors.New("exam not accessible for this account")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrSessionNotFound      = errors.New("session not found or expired")
	ErrSessionNotYours      = errors.New("session belongs to another user")
	ErrAttemptNotCompleted  = errors.New("attempt not completed yet")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrOrderNotFound        = errors.New("payment order not found")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrUnknownPlan          = errors.New("unknown subscription plan")
)
