package repository

import (
	"context"

	"github.com/creatorlane/billing-service/internal/domain"
)

// WebhookEventRepository журнал обработанных вебхук-событий для дедупликации.
type WebhookEventRepository interface {
	// Seen сообщает, было ли событие с данным ID уже обработано.
	Seen(ctx context.Context, eventID string) (bool, error)

	// RecordProcessed атомарно фиксирует событие как обработанное и, если
	// sub не nil, применяет обновление подписки в той же транзакции.
	// Возвращает ErrDuplicate при повторной записи того же eventID и
	// ErrStaleData, если подписка была изменена конкурентно.
	RecordProcessed(ctx context.Context, event domain.WebhookEventRecord, sub *domain.Subscription) error
}

// SyncAuditRepository журнал прогонов сверки; только дополняется.
type SyncAuditRepository interface {
	Create(ctx context.Context, record *domain.SyncAuditRecord) error
	List(ctx context.Context, limit int) ([]domain.SyncAuditRecord, error)
}
