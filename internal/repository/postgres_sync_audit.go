package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// postgresSyncAuditRepo реализует SyncAuditRepository для PostgreSQL.
// Список расхождений хранится как JSONB в той же строке.
type postgresSyncAuditRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSyncAuditRepository создает журнал сверки в PostgreSQL.
func NewPostgresSyncAuditRepository(db *sqlx.DB, log *logger.Logger) SyncAuditRepository {
	return &postgresSyncAuditRepo{db: db, log: log}
}

// Create записывает итог одного прогона сверки.
func (r *postgresSyncAuditRepo) Create(ctx context.Context, record *domain.SyncAuditRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.RunAt.IsZero() {
		record.RunAt = time.Now()
	}

	mismatches, err := json.Marshal(record.Mismatches)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal mismatches: %w", err)
	}

	query := `
        INSERT INTO sync_audit (id, run_at, checked_count, synced_count, mismatches)
        VALUES ($1, $2, $3, $4, $5)`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.RunAt, record.CheckedCount, record.SyncedCount, mismatches)
	if err != nil {
		r.log.Errorw("Failed to create sync audit record", "error", err, "auditID", record.ID)
		return fmt.Errorf("repository: failed to create sync audit record: %w", err)
	}

	r.log.Debugw("Sync audit record created", "auditID", record.ID,
		"checked", record.CheckedCount, "synced", record.SyncedCount)
	return nil
}

// List возвращает последние прогоны сверки, новые в начале.
func (r *postgresSyncAuditRepo) List(ctx context.Context, limit int) ([]domain.SyncAuditRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows := []struct {
		ID           uuid.UUID `db:"id"`
		RunAt        time.Time `db:"run_at"`
		CheckedCount int       `db:"checked_count"`
		SyncedCount  int       `db:"synced_count"`
		Mismatches   []byte    `db:"mismatches"`
	}{}

	query := `
        SELECT id, run_at, checked_count, synced_count, mismatches
        FROM sync_audit
        ORDER BY run_at DESC
        LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		r.log.Errorw("Failed to list sync audit records", "error", err)
		return nil, fmt.Errorf("repository: failed to list sync audit records: %w", err)
	}

	records := make([]domain.SyncAuditRecord, 0, len(rows))
	for _, row := range rows {
		record := domain.SyncAuditRecord{
			ID:           row.ID,
			RunAt:        row.RunAt,
			CheckedCount: row.CheckedCount,
			SyncedCount:  row.SyncedCount,
		}
		if len(row.Mismatches) > 0 {
			if err := json.Unmarshal(row.Mismatches, &record.Mismatches); err != nil {
				return nil, fmt.Errorf("repository: failed to unmarshal mismatches: %w", err)
			}
		}
		records = append(records, record)
	}

	return records, nil
}
