package repository

import (
	"context"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/google/uuid"
)

// SubscriptionRepository определяет методы для работы с хранилищем подписок.
type SubscriptionRepository interface {
	// Create сохраняет новую подписку. Возвращает ErrDuplicate, если для тройки
	// (подписчик, автор, уровень) уже есть незакрытая запись.
	Create(ctx context.Context, sub *domain.Subscription) error

	// GetByID возвращает подписку по ее ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)

	// GetBySubscriberID возвращает все подписки пользователя.
	GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error)

	// GetByExternalID возвращает подписку по ID ресурса в платежном процессоре.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error)

	// FindOpenByTriple ищет незакрытую подписку для тройки (подписчик, автор, уровень).
	FindOpenByTriple(ctx context.Context, subscriberID, creatorID, tierID uuid.UUID) (*domain.Subscription, error)

	// Update обновляет изменяемые поля подписки. Запись перезаписывается только
	// если ее updated_at совпадает с прочитанным значением в sub; при конкурентном
	// изменении возвращается ErrStaleData, и вызывающий должен перечитать запись.
	Update(ctx context.Context, sub *domain.Subscription) error

	// ListOpenProcessorBacked возвращает кандидатов на сверку: незакрытые
	// подписки, обеспеченные процессором.
	ListOpenProcessorBacked(ctx context.Context) ([]domain.Subscription, error)

	// GetStats возвращает сводку по подпискам для мониторинга.
	GetStats(ctx context.Context) (*domain.SubscriptionStats, error)
}

// TierRepository доступ на чтение к уровням подписки.
// Таблицей владеет внешний инструментарий управления авторами.
type TierRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tier, error)
}
