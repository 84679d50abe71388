package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/integration/stripe"
	"github.com/creatorlane/billing-service/pkg/logger"
)

const testWebhookSecret = "whsec_handler_test"

// fakeWebhookService перехватывает события вместо настоящей обработки
type fakeWebhookService struct {
	processed []*domain.ProcessorEvent
	err       error
}

func (f *fakeWebhookService) ProcessEvent(ctx context.Context, event *domain.ProcessorEvent) error {
	if f.err != nil {
		return f.err
	}
	f.processed = append(f.processed, event)
	return nil
}

func setupWebhookRouter(svc *fakeWebhookService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.New(logger.ERROR)
	h := NewWebhookHandler(stripe.NewWebhookVerifier(testWebhookSecret, log), svc, log)

	router := gin.New()
	router.POST("/webhooks/stripe", h.HandleStripeWebhook)
	return router
}

func stripeSignature(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(router *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func subscriptionEventPayload(eventID, subID, status string) []byte {
	now := time.Now().Unix()
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {
			"object": {
				"id": %q,
				"status": %q,
				"current_period_start": %d,
				"current_period_end": %d
			}
		}
	}`, eventID, now, subID, status, now, now+2592000))
}

func TestHandleStripeWebhook_Accepted(t *testing.T) {
	svc := &fakeWebhookService{}
	router := setupWebhookRouter(svc)

	payload := subscriptionEventPayload("evt_1", "sub_abc", "active")
	w := postWebhook(router, payload, stripeSignature(payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.processed, 1)
	assert.Equal(t, "evt_1", svc.processed[0].EventID)
	assert.Equal(t, "sub_abc", svc.processed[0].ExternalSubscriptionID)
}

func TestHandleStripeWebhook_MissingSignature(t *testing.T) {
	svc := &fakeWebhookService{}
	router := setupWebhookRouter(svc)

	w := postWebhook(router, subscriptionEventPayload("evt_1", "sub_abc", "active"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.processed)
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	svc := &fakeWebhookService{}
	router := setupWebhookRouter(svc)

	payload := subscriptionEventPayload("evt_1", "sub_abc", "active")
	w := postWebhook(router, payload, stripeSignature(payload, "whsec_wrong"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.processed)
}

func TestHandleStripeWebhook_MalformedEvent(t *testing.T) {
	svc := &fakeWebhookService{}
	router := setupWebhookRouter(svc)

	payload := []byte(`{"id":"evt_1"}`)
	w := postWebhook(router, payload, stripeSignature(payload, testWebhookSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStripeWebhook_UnsupportedTypeAcknowledged(t *testing.T) {
	svc := &fakeWebhookService{}
	router := setupWebhookRouter(svc)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_misc",
		"type": "charge.succeeded",
		"created": %d,
		"data": {"object": {"id": "ch_1"}}
	}`, time.Now().Unix()))
	w := postWebhook(router, payload, stripeSignature(payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.processed, "unsupported events are acknowledged without processing")
}

func TestHandleStripeWebhook_ProcessingErrorTriggersRetry(t *testing.T) {
	svc := &fakeWebhookService{err: errors.New("db down")}
	router := setupWebhookRouter(svc)

	payload := subscriptionEventPayload("evt_1", "sub_abc", "active")
	w := postWebhook(router, payload, stripeSignature(payload, testWebhookSecret))

	// 500 заставляет процессор повторить доставку
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
