package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/jmoiron/sqlx"
)

// postgresWebhookEventRepo реализует WebhookEventRepository для PostgreSQL.
type postgresWebhookEventRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresWebhookEventRepository создает журнал вебхук-событий в PostgreSQL.
func NewPostgresWebhookEventRepository(db *sqlx.DB, log *logger.Logger) WebhookEventRepository {
	return &postgresWebhookEventRepo{db: db, log: log}
}

// Seen сообщает, было ли событие с данным ID уже обработано.
func (r *postgresWebhookEventRepo) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`

	if err := r.db.GetContext(ctx, &exists, query, eventID); err != nil {
		r.log.Errorw("Failed to check webhook event for duplicate", "error", err, "eventID", eventID)
		return false, fmt.Errorf("repository: failed to check webhook event: %w", err)
	}

	return exists, nil
}

// RecordProcessed фиксирует событие и обновление подписки в одной транзакции.
// Вставка события и запись состояния коммитятся вместе, поэтому сбой между
// ними невозможен: либо событие учтено вместе с эффектом, либо ни то ни другое,
// и повторная доставка безопасно повторит обработку.
func (r *postgresWebhookEventRepo) RecordProcessed(ctx context.Context, event domain.WebhookEventRecord, sub *domain.Subscription) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.log.Errorw("Failed to begin webhook transaction", "error", err, "eventID", event.EventID)
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
        INSERT INTO webhook_events (event_id, event_type, received_at, processed_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (event_id) DO NOTHING`

	result, err := tx.ExecContext(ctx, insertQuery,
		event.EventID, event.EventType, event.ReceivedAt, event.ProcessedAt)
	if err != nil {
		r.log.Errorw("Failed to insert webhook event", "error", err, "eventID", event.EventID)
		return fmt.Errorf("repository: failed to insert webhook event: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		// Событие уже учтено конкурентной доставкой
		return ErrDuplicate
	}

	if sub != nil {
		prevUpdatedAt := sub.UpdatedAt
		now := time.Now()

		updateQuery := `
            UPDATE subscriptions SET
                status = $1,
                external_subscription_id = $2,
                current_period_start = $3,
                current_period_end = $4,
                cancelled_at = $5,
                updated_at = $6
            WHERE id = $7 AND updated_at = $8`

		result, err = tx.ExecContext(ctx, updateQuery,
			sub.Status, sub.ExternalSubscriptionID,
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
			sub.CancelledAt, now, sub.ID, prevUpdatedAt)
		if err != nil {
			r.log.Errorw("Failed to update subscription from webhook", "error", err,
				"eventID", event.EventID, "subscriptionID", sub.ID)
			return fmt.Errorf("repository: failed to update subscription from webhook: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("repository: failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			r.log.Warnw("Webhook update rejected, subscription changed concurrently",
				"eventID", event.EventID, "subscriptionID", sub.ID)
			return ErrStaleData
		}

		sub.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		r.log.Errorw("Failed to commit webhook transaction", "error", err, "eventID", event.EventID)
		return fmt.Errorf("repository: failed to commit webhook transaction: %w", err)
	}

	r.log.Debugw("Webhook event recorded", "eventID", event.EventID, "eventType", event.EventType)
	return nil
}
