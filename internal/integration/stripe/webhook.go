package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// Допустимое расхождение между временем подписи и текущим временем
const signatureTolerance = 5 * time.Minute

// WebhookEvent представляет сырое событие от Stripe Webhook
type WebhookEvent struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
	Livemode bool `json:"livemode"`
}

// WebhookVerifier проверяет подписи и разбирает события Stripe
type WebhookVerifier struct {
	webhookKey string
	log        *logger.Logger

	// now подменяется в тестах
	now func() time.Time
}

// NewWebhookVerifier создает верификатор событий
func NewWebhookVerifier(webhookKey string, log *logger.Logger) *WebhookVerifier {
	return &WebhookVerifier{
		webhookKey: webhookKey,
		log:        log,
		now:        time.Now,
	}
}

// VerifySignature проверяет заголовок Stripe-Signature для тела запроса.
// Формат заголовка: t=<timestamp>,v1=<hex hmac>,... где подписывается
// строка "<timestamp>.<payload>" ключом эндпоинта.
func (v *WebhookVerifier) VerifySignature(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return fmt.Errorf("%w: no Stripe signature in request", domain.ErrWebhookValidationFailed)
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: invalid signature timestamp", domain.ErrWebhookValidationFailed)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed signature header", domain.ErrWebhookValidationFailed)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: signature timestamp outside tolerance", domain.ErrWebhookValidationFailed)
	}

	mac := hmac.New(sha256.New, []byte(v.webhookKey))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", domain.ErrWebhookValidationFailed)
}

// subscriptionObject это часть объекта subscription из payload события
type subscriptionObject struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         *int64 `json:"canceled_at"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

// invoiceObject это часть объекта invoice из payload события
type invoiceObject struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

// ParseEvent разбирает проверенное тело вебхука в доменное событие.
// Для неподдерживаемых типов возвращает (nil, nil), такие события
// подтверждаются без обработки.
func (v *WebhookVerifier) ParseEvent(payload []byte) (*domain.ProcessorEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: failed to parse event payload", domain.ErrWebhookValidationFailed)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: event id or type missing", domain.ErrWebhookValidationFailed)
	}

	occurredAt := time.Unix(event.Created, 0).UTC()

	switch domain.WebhookEventType(event.Type) {
	case domain.WebhookEventTypeSubscriptionCreated,
		domain.WebhookEventTypeSubscriptionUpdated,
		domain.WebhookEventTypeSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: failed to parse subscription object", domain.ErrWebhookValidationFailed)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: subscription id missing in event data", domain.ErrWebhookValidationFailed)
		}

		pe := &domain.ProcessorEvent{
			EventID:                event.ID,
			Type:                   domain.WebhookEventType(event.Type),
			ExternalSubscriptionID: obj.ID,
			ProcessorStatus:        obj.Status,
			CurrentPeriodStart:     unixTime(obj.CurrentPeriodStart),
			CurrentPeriodEnd:       unixTime(obj.CurrentPeriodEnd),
			OccurredAt:             occurredAt,
		}
		if domain.WebhookEventType(event.Type) == domain.WebhookEventTypeSubscriptionDeleted {
			pe.ProcessorStatus = "canceled"
		}
		if obj.CanceledAt != nil {
			t := time.Unix(*obj.CanceledAt, 0).UTC()
			pe.CancelledAt = &t
		}
		return pe, nil

	case domain.WebhookEventTypeInvoicePaymentFailed:
		var obj invoiceObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: failed to parse invoice object", domain.ErrWebhookValidationFailed)
		}
		if obj.Subscription == "" {
			// Разовый инвойс без подписки, нам не интересен
			v.log.Debugw("Ignoring invoice event without subscription", "eventID", event.ID)
			return nil, nil
		}
		return &domain.ProcessorEvent{
			EventID:                event.ID,
			Type:                   domain.WebhookEventTypeInvoicePaymentFailed,
			ExternalSubscriptionID: obj.Subscription,
			ProcessorStatus:        "past_due",
			OccurredAt:             occurredAt,
		}, nil

	default:
		v.log.Debugw("Ignoring unsupported webhook event type", "eventID", event.ID, "type", event.Type)
		return nil, nil
	}
}
