package domain

import (
	"time"
)

// WebhookEventType тип события вебхука платежного процессора
type WebhookEventType string

const (
	WebhookEventTypeSubscriptionCreated  WebhookEventType = "customer.subscription.created"
	WebhookEventTypeSubscriptionUpdated  WebhookEventType = "customer.subscription.updated"
	WebhookEventTypeSubscriptionDeleted  WebhookEventType = "customer.subscription.deleted"
	WebhookEventTypeInvoicePaymentFailed WebhookEventType = "invoice.payment_failed"
)

// ProcessorEvent нормализованное событие от платежного процессора.
// Поля периода и отмены заполняются из полезной нагрузки события;
// OccurredAt используется для отбрасывания устаревших событий.
type ProcessorEvent struct {
	EventID                string           `json:"event_id"`
	Type                   WebhookEventType `json:"type"`
	ExternalSubscriptionID string           `json:"external_subscription_id"`
	ProcessorStatus        string           `json:"processor_status"`
	CurrentPeriodStart     time.Time        `json:"current_period_start"`
	CurrentPeriodEnd       time.Time        `json:"current_period_end"`
	CancelledAt            *time.Time       `json:"cancelled_at,omitempty"`
	OccurredAt             time.Time        `json:"occurred_at"`
}

// WebhookEventRecord запись об обработанном событии вебхука.
// Служит исключительно для дедупликации: повторная доставка события
// с тем же EventID не производит никаких эффектов.
type WebhookEventRecord struct {
	EventID     string           `db:"event_id" json:"event_id"`
	EventType   WebhookEventType `db:"event_type" json:"event_type"`
	ReceivedAt  time.Time        `db:"received_at" json:"received_at"`
	ProcessedAt time.Time        `db:"processed_at" json:"processed_at"`
}
