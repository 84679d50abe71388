package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusPending            SubscriptionStatus = "pending"
	SubscriptionStatusActive             SubscriptionStatus = "active"
	SubscriptionStatusPastDue            SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled          SubscriptionStatus = "cancelled"
	SubscriptionStatusReactivatedPending SubscriptionStatus = "reactivated_pending"
)

// IsOpen сообщает, числится ли подписка действующей или ожидающей подтверждения.
// Такие записи участвуют в проверке дубликатов и в сверке с процессором.
func (s SubscriptionStatus) IsOpen() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusActive,
		SubscriptionStatusPastDue, SubscriptionStatusReactivatedPending:
		return true
	}
	return false
}

// SubscriptionKind вид подписки: обеспеченная платежным процессором или синтетическая
// (демо-подписка, которая никогда не синхронизируется с процессором)
type SubscriptionKind string

const (
	SubscriptionKindProcessorBacked SubscriptionKind = "processor_backed"
	SubscriptionKindSynthetic       SubscriptionKind = "synthetic"
)

// Subscription представляет собой запись подписки в локальном леджере.
// Денежные суммы хранятся в минимальных единицах валюты (центах);
// инвариант PlatformFee + CreatorEarnings == TotalAmount держится всегда.
type Subscription struct {
	ID                     uuid.UUID          `db:"id" json:"id"`
	SubscriberID           uuid.UUID          `db:"subscriber_id" json:"subscriber_id"`
	CreatorID              uuid.UUID          `db:"creator_id" json:"creator_id"`
	TierID                 uuid.UUID          `db:"tier_id" json:"tier_id"`
	Kind                   SubscriptionKind   `db:"kind" json:"kind"`
	Status                 SubscriptionStatus `db:"status" json:"status"`
	TotalAmount            int64              `db:"total_amount" json:"total_amount"`
	PlatformFee            int64              `db:"platform_fee" json:"platform_fee"`
	CreatorEarnings        int64              `db:"creator_earnings" json:"creator_earnings"`
	ExternalSubscriptionID string             `db:"external_subscription_id" json:"external_subscription_id,omitempty"`
	CurrentPeriodStart     time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `db:"current_period_end" json:"current_period_end"`
	CancelledAt            *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// SplitConsistent проверяет финансовый инвариант распределения суммы
func (s *Subscription) SplitConsistent() bool {
	return s.PlatformFee+s.CreatorEarnings == s.TotalAmount
}

// SubscriptionRequest представляет запрос на создание подписки
type SubscriptionRequest struct {
	CreatorID uuid.UUID `json:"creator_id" binding:"required"`
	TierID    uuid.UUID `json:"tier_id" binding:"required"`
	// PaymentCustomerID ссылка на клиента в платежном процессоре;
	// обязателен для обычных подписок, игнорируется для синтетических
	PaymentCustomerID string `json:"payment_customer_id,omitempty"`
	Synthetic         bool   `json:"synthetic,omitempty"`
}

// SubscriptionStats сводка по подпискам для операторских дашбордов
type SubscriptionStats struct {
	Total                   int64 `db:"total" json:"total"`
	Active                  int64 `db:"active" json:"active"`
	Cancelled               int64 `db:"cancelled" json:"cancelled"`
	MonthlyRecurringRevenue int64 `db:"mrr" json:"monthly_recurring_revenue"`
}
