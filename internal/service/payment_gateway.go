package service

import (
	"english_exam_backend/internal/config"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentGateway 第三方支付网关客户端。创建支付单拿到托管收银台链接，
// 支付结果通过 webhook 回调，签名为整个请求体的 HMAC-SHA256。
type PaymentGateway struct {
	Cfg    *config.PaymentConfig
	client *http.Client
}

func NewPaymentGateway(cfg *config.PaymentConfig) *PaymentGateway {
	return &PaymentGateway{
		Cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type CheckoutRequest struct {
	OrderID     string `json:"orderId"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type CheckoutResponse struct {
	Ref         string `json:"ref"`         // 网关侧单号
	CheckoutURL string `json:"checkoutUrl"` // 托管收银台
}

// CreateCheckout 在网关侧开单。
func (g *PaymentGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Cfg.BaseURL+"/v1/checkouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.Cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(data))
	}

	var out CheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Ref == "" {
		return nil, fmt.Errorf("payment gateway response missing ref")
	}
	return &out, nil
}

// WebhookEvent 网关回调载荷。
type WebhookEvent struct {
	Type string `json:"type"` // payment.succeeded, payment.failed
	Ref  string `json:"ref"`
}

// VerifySignature 用常量时间比较校验回调签名，签名是十六进制的 HMAC-SHA256。
func (g *PaymentGateway) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.Cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
