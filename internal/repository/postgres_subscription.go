package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const pgUniqueViolation = "23505"

const subscriptionColumns = `
        id, subscriber_id, creator_id, tier_id, kind, status,
        total_amount, platform_fee, creator_earnings,
        external_subscription_id, current_period_start, current_period_end,
        cancelled_at, created_at, updated_at`

// postgresSubscriptionRepo реализует SubscriptionRepository для PostgreSQL.
type postgresSubscriptionRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{
		db:  db,
		log: log,
	}
}

// Create сохраняет новую подписку в базе данных.
// Частичный уникальный индекс по (subscriber_id, creator_id, tier_id) для
// незакрытых статусов превращает гонку двух одновременных созданий в ErrDuplicate.
func (r *postgresSubscriptionRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
        INSERT INTO subscriptions (
            id, subscriber_id, creator_id, tier_id, kind, status,
            total_amount, platform_fee, creator_earnings,
            external_subscription_id, current_period_start, current_period_end,
            cancelled_at, created_at, updated_at
        ) VALUES (
            :id, :subscriber_id, :creator_id, :tier_id, :kind, :status,
            :total_amount, :platform_fee, :creator_earnings,
            :external_subscription_id, :current_period_start, :current_period_end,
            :cancelled_at, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			r.log.Warnw("Duplicate open subscription rejected by index",
				"subscriberID", sub.SubscriberID, "creatorID", sub.CreatorID, "tierID", sub.TierID)
			return ErrDuplicate
		}
		r.log.Errorw("Failed to create subscription in DB", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("repository: failed to create subscription: %w", err)
	}

	r.log.Debugw("Successfully created subscription in DB", "subscriptionID", sub.ID, "subscriberID", sub.SubscriberID)
	return nil
}

// GetByID возвращает подписку по ее ID.
func (r *postgresSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	err := r.db.GetContext(ctx, &sub, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by ID from DB", "error", err, "subscriptionID", id)
		return nil, fmt.Errorf("repository: failed to get subscription by ID: %w", err)
	}

	return &sub, nil
}

// GetBySubscriberID возвращает все подписки пользователя.
func (r *postgresSubscriptionRepo) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	subs := []domain.Subscription{}
	query := `SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE subscriber_id = $1
        ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &subs, query, subscriberID)
	if err != nil {
		r.log.Errorw("Failed to get subscriptions by subscriber ID from DB", "error", err, "subscriberID", subscriberID)
		return nil, fmt.Errorf("repository: failed to get subscriptions by subscriber ID: %w", err)
	}

	return subs, nil
}

// GetByExternalID возвращает подписку по ID ресурса в платежном процессоре.
func (r *postgresSubscriptionRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_subscription_id = $1`

	err := r.db.GetContext(ctx, &sub, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by external ID from DB", "error", err, "externalID", externalID)
		return nil, fmt.Errorf("repository: failed to get subscription by external ID: %w", err)
	}

	return &sub, nil
}

// FindOpenByTriple ищет незакрытую подписку для тройки (подписчик, автор, уровень).
func (r *postgresSubscriptionRepo) FindOpenByTriple(ctx context.Context, subscriberID, creatorID, tierID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE subscriber_id = $1 AND creator_id = $2 AND tier_id = $3
          AND status IN ('pending', 'active', 'past_due', 'reactivated_pending')
        LIMIT 1`

	err := r.db.GetContext(ctx, &sub, query, subscriberID, creatorID, tierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to find open subscription by triple", "error", err, "subscriberID", subscriberID)
		return nil, fmt.Errorf("repository: failed to find open subscription: %w", err)
	}

	return &sub, nil
}

// Update обновляет изменяемые поля подписки с оптимистической проверкой версии.
// Запись перезаписывается только если updated_at в базе совпадает с прочитанным;
// ноль затронутых строк означает конкурентное изменение (ErrStaleData).
func (r *postgresSubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	prevUpdatedAt := sub.UpdatedAt
	now := time.Now()

	query := `
        UPDATE subscriptions SET
            status = $1,
            external_subscription_id = $2,
            current_period_start = $3,
            current_period_end = $4,
            cancelled_at = $5,
            updated_at = $6
        WHERE id = $7 AND updated_at = $8`

	result, err := r.db.ExecContext(ctx, query,
		sub.Status, sub.ExternalSubscriptionID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelledAt, now, sub.ID, prevUpdatedAt)
	if err != nil {
		r.log.Errorw("Failed to update subscription in DB", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("repository: failed to update subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		r.log.Errorw("Failed to get rows affected after update", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("repository: failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.log.Warnw("Subscription update rejected, record changed concurrently",
			"subscriptionID", sub.ID, "readUpdatedAt", prevUpdatedAt)
		return ErrStaleData
	}

	sub.UpdatedAt = now
	r.log.Debugw("Successfully updated subscription in DB", "subscriptionID", sub.ID, "status", sub.Status)
	return nil
}

// ListOpenProcessorBacked возвращает кандидатов на сверку с процессором.
func (r *postgresSubscriptionRepo) ListOpenProcessorBacked(ctx context.Context) ([]domain.Subscription, error) {
	subs := []domain.Subscription{}
	query := `SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status IN ('pending', 'active', 'past_due', 'reactivated_pending')
          AND kind = 'processor_backed'
        ORDER BY created_at`

	err := r.db.SelectContext(ctx, &subs, query)
	if err != nil {
		r.log.Errorw("Failed to list reconciliation candidates", "error", err)
		return nil, fmt.Errorf("repository: failed to list reconciliation candidates: %w", err)
	}

	return subs, nil
}

// GetStats возвращает сводку по подпискам одним запросом, без предварительной
// агрегации: значения отражают состояние леджера на момент вызова.
func (r *postgresSubscriptionRepo) GetStats(ctx context.Context) (*domain.SubscriptionStats, error) {
	var stats domain.SubscriptionStats
	query := `
        SELECT
            count(*) AS total,
            count(*) FILTER (WHERE status = 'active') AS active,
            count(*) FILTER (WHERE status = 'cancelled') AS cancelled,
            COALESCE((
                SELECT sum(s.total_amount)
                FROM subscriptions s
                JOIN tiers t ON t.id = s.tier_id
                WHERE s.status = 'active' AND t.billing_period = 'monthly'
            ), 0) AS mrr
        FROM subscriptions`

	err := r.db.GetContext(ctx, &stats, query)
	if err != nil {
		r.log.Errorw("Failed to compute subscription stats", "error", err)
		return nil, fmt.Errorf("repository: failed to compute subscription stats: %w", err)
	}

	return &stats, nil
}

// postgresTierRepo реализует TierRepository для PostgreSQL.
type postgresTierRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresTierRepository создает репозиторий уровней подписки (только чтение).
func NewPostgresTierRepository(db *sqlx.DB, log *logger.Logger) TierRepository {
	return &postgresTierRepo{db: db, log: log}
}

// GetByID возвращает уровень подписки по ID.
func (r *postgresTierRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tier, error) {
	var tier domain.Tier
	query := `
        SELECT id, creator_id, price, billing_period, external_price_id,
               is_active, created_at, updated_at
        FROM tiers
        WHERE id = $1`

	err := r.db.GetContext(ctx, &tier, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get tier from DB", "error", err, "tierID", id)
		return nil, fmt.Errorf("repository: failed to get tier: %w", err)
	}

	return &tier, nil
}
