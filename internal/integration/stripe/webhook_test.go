package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
)

const testWebhookKey = "whsec_test_secret"

func newTestVerifier(now time.Time) *WebhookVerifier {
	v := NewWebhookVerifier(testWebhookKey, logger.New(logger.ERROR))
	v.now = func() time.Time { return now }
	return v
}

// signPayload формирует заголовок Stripe-Signature для тела запроса
func signPayload(payload []byte, timestamp time.Time, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%d.%s", timestamp.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature_Valid(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	v := newTestVerifier(now)

	err := v.VerifySignature(payload, signPayload(payload, now, testWebhookKey))
	assert.NoError(t, err)
}

func TestVerifySignature_WrongKey(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	v := newTestVerifier(now)

	err := v.VerifySignature(payload, signPayload(payload, now, "whsec_other_key"))
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	v := newTestVerifier(now)

	header := signPayload(payload, now, testWebhookKey)
	err := v.VerifySignature([]byte(`{"id":"evt_2"}`), header)
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}

func TestVerifySignature_ExpiredTimestamp(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	v := newTestVerifier(now)

	stale := now.Add(-6 * time.Minute)
	err := v.VerifySignature(payload, signPayload(payload, stale, testWebhookKey))
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	v := newTestVerifier(time.Now())
	err := v.VerifySignature([]byte(`{}`), "")
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	v := newTestVerifier(time.Now())
	err := v.VerifySignature([]byte(`{}`), "v1=abc")
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}

func TestVerifySignature_MultipleSignatures(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	v := newTestVerifier(now)

	// Stripe присылает несколько подписей при ротации ключа,
	// достаточно совпадения любой из них
	mac := hmac.New(sha256.New, []byte(testWebhookKey))
	fmt.Fprintf(mac, "%d.%s", now.Unix(), payload)
	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), hex.EncodeToString(mac.Sum(nil)))
	err := v.VerifySignature(payload, header)
	assert.NoError(t, err)
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	periodStart := created
	periodEnd := created.AddDate(0, 1, 0)
	payload := fmt.Sprintf(`{
		"id": "evt_123",
		"object": "event",
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_abc",
				"status": "active",
				"cancel_at_period_end": false,
				"current_period_start": %d,
				"current_period_end": %d
			}
		}
	}`, created.Unix(), periodStart.Unix(), periodEnd.Unix())

	v := newTestVerifier(created)
	event, err := v.ParseEvent([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, "evt_123", event.EventID)
	assert.Equal(t, domain.WebhookEventTypeSubscriptionUpdated, event.Type)
	assert.Equal(t, "sub_abc", event.ExternalSubscriptionID)
	assert.Equal(t, "active", event.ProcessorStatus)
	assert.True(t, event.CurrentPeriodStart.Equal(periodStart))
	assert.True(t, event.CurrentPeriodEnd.Equal(periodEnd))
	assert.True(t, event.OccurredAt.Equal(created))
	assert.Nil(t, event.CancelledAt)
}

func TestParseEvent_MissingPeriodsStayZero(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{
		"id": "evt_zero",
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_abc",
				"status": "incomplete"
			}
		}
	}`, created.Unix())

	v := newTestVerifier(created)
	event, err := v.ParseEvent([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event)

	// Нулевые границы периода не должны превратиться в эпоху
	assert.True(t, event.CurrentPeriodStart.IsZero())
	assert.True(t, event.CurrentPeriodEnd.IsZero())
}

func TestParseEvent_SubscriptionDeletedForcesCancelled(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{
		"id": "evt_del",
		"type": "customer.subscription.deleted",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_abc",
				"status": "active",
				"canceled_at": %d,
				"current_period_start": %d,
				"current_period_end": %d
			}
		}
	}`, created.Unix(), created.Unix(), created.Unix(), created.AddDate(0, 1, 0).Unix())

	v := newTestVerifier(created)
	event, err := v.ParseEvent([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event)

	// Deleted всегда означает отмену независимо от статуса в объекте
	assert.Equal(t, "canceled", event.ProcessorStatus)
	require.NotNil(t, event.CancelledAt)
	assert.True(t, event.CancelledAt.Equal(created))
}

func TestParseEvent_InvoicePaymentFailed(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{
		"id": "evt_inv",
		"type": "invoice.payment_failed",
		"created": %d,
		"data": {
			"object": {
				"id": "in_123",
				"subscription": "sub_abc"
			}
		}
	}`, created.Unix())

	v := newTestVerifier(created)
	event, err := v.ParseEvent([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, domain.WebhookEventTypeInvoicePaymentFailed, event.Type)
	assert.Equal(t, "sub_abc", event.ExternalSubscriptionID)
	assert.Equal(t, "past_due", event.ProcessorStatus)
}

func TestParseEvent_InvoiceWithoutSubscriptionIgnored(t *testing.T) {
	payload := `{
		"id": "evt_inv",
		"type": "invoice.payment_failed",
		"created": 1750000000,
		"data": {"object": {"id": "in_123"}}
	}`

	v := newTestVerifier(time.Now())
	event, err := v.ParseEvent([]byte(payload))
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseEvent_UnsupportedTypeIgnored(t *testing.T) {
	payload := `{
		"id": "evt_misc",
		"type": "payment_intent.succeeded",
		"created": 1750000000,
		"data": {"object": {"id": "pi_123"}}
	}`

	v := newTestVerifier(time.Now())
	event, err := v.ParseEvent([]byte(payload))
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseEvent_InvalidPayload(t *testing.T) {
	v := newTestVerifier(time.Now())

	_, err := v.ParseEvent([]byte("not json"))
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)

	_, err = v.ParseEvent([]byte(`{"type":"customer.subscription.updated"}`))
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)

	_, err = v.ParseEvent([]byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"status":"active"}}}`))
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}
