package service

import (
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
)

// MapProcessorStatus переводит статус подписки у процессора в локальный.
// Неизвестный статус возвращает ok=false, такие события не применяются.
func MapProcessorStatus(processorStatus string) (domain.SubscriptionStatus, bool) {
	switch processorStatus {
	case "active", "trialing":
		return domain.SubscriptionStatusActive, true
	case "past_due", "unpaid":
		return domain.SubscriptionStatusPastDue, true
	case "canceled", "incomplete_expired":
		return domain.SubscriptionStatusCancelled, true
	case "incomplete":
		return domain.SubscriptionStatusPending, true
	default:
		return "", false
	}
}

// applyRemoteState переносит состояние процессора в локальную запись.
// Возвращает true, если запись изменилась и требует сохранения.
func applyRemoteState(sub *domain.Subscription, status domain.SubscriptionStatus, periodStart, periodEnd time.Time, cancelledAt *time.Time) bool {
	changed := false

	if sub.Status != status {
		sub.Status = status
		changed = true
	}
	if !periodStart.IsZero() && !sub.CurrentPeriodStart.Equal(periodStart) {
		sub.CurrentPeriodStart = periodStart
		changed = true
	}
	if !periodEnd.IsZero() && !sub.CurrentPeriodEnd.Equal(periodEnd) {
		sub.CurrentPeriodEnd = periodEnd
		changed = true
	}
	if cancelledAt != nil && (sub.CancelledAt == nil || !sub.CancelledAt.Equal(*cancelledAt)) {
		sub.CancelledAt = cancelledAt
		changed = true
	}
	if status == domain.SubscriptionStatusCancelled && sub.CancelledAt == nil {
		now := time.Now().UTC()
		sub.CancelledAt = &now
		changed = true
	}

	return changed
}
