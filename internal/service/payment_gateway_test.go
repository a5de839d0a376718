package service

import (
	"english_exam_backend/internal/config"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	g := NewPaymentGateway(&config.PaymentConfig{WebhookSecret: "test-secret"})
	body := []byte(`{"type":"payment.succeeded","ref":"gw-123"}`)

	assert.True(t, g.VerifySignature(body, signBody("test-secret", body)))
	assert.False(t, g.VerifySignature(body, signBody("wrong-secret", body)))
	assert.False(t, g.VerifySignature(body, "not-a-signature"))
	assert.False(t, g.VerifySignature([]byte(`tampered`), signBody("test-secret", body)))
}

func TestCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req CheckoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-1", req.OrderID)
		assert.Equal(t, int64(990), req.AmountCents)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CheckoutResponse{
			Ref:         "gw-123",
			CheckoutURL: "https://pay.example.com/c/gw-123",
		})
	}))
	defer srv.Close()

	g := NewPaymentGateway(&config.PaymentConfig{BaseURL: srv.URL, APIKey: "test-key"})
	resp, err := g.CreateCheckout(context.Background(), &CheckoutRequest{
		OrderID:     "order-1",
		AmountCents: 990,
		Currency:    "USD",
		Description: "Monthly plan",
	})
	require.NoError(t, err)
	assert.Equal(t, "gw-123", resp.Ref)
	assert.Equal(t, "https://pay.example.com/c/gw-123", resp.CheckoutURL)
}

func TestCreateCheckoutGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewPaymentGateway(&config.PaymentConfig{BaseURL: srv.URL, APIKey: "bad-key"})
	_, err := g.CreateCheckout(context.Background(), &CheckoutRequest{OrderID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCreateCheckoutMissingRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CheckoutResponse{CheckoutURL: "https://pay.example.com/c/x"})
	}))
	defer srv.Close()

	g := NewPaymentGateway(&config.PaymentConfig{BaseURL: srv.URL})
	_, err := g.CreateCheckout(context.Background(), &CheckoutRequest{OrderID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing ref")
}
