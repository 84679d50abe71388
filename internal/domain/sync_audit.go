package domain

import (
	"time"

	"github.com/google/uuid"
)

// Классификация расхождений, обнаруживаемых при сверке с процессором
const (
	MismatchIssueStatusDrift     = "status_drift"
	MismatchIssueResourceMissing = "processor_resource_missing"
	MismatchIssueRetrieveFailed  = "retrieve_failed"
	MismatchIssueMissingExternal = "missing_external_id"
	MismatchResolutionNone       = "none"
	MismatchResolutionCancelled  = "marked_cancelled"
)

// MismatchEntry одно расхождение, найденное прогоном сверки.
// После записи в аудит не изменяется.
type MismatchEntry struct {
	ExternalSubscriptionID string `json:"external_subscription_id"`
	Issue                  string `json:"issue"`
	ResolutionAction       string `json:"resolution_action"`
}

// SyncAuditRecord итог одного прогона сверки; журнал только дополняется.
// SyncedCount считает записи, которые прогон фактически привел
// в соответствие с процессором, а не записи без расхождений.
type SyncAuditRecord struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	RunAt        time.Time       `db:"run_at" json:"run_at"`
	CheckedCount int             `db:"checked_count" json:"checked_count"`
	SyncedCount  int             `db:"synced_count" json:"synced_count"`
	Mismatches   []MismatchEntry `json:"mismatches"`
}

// CorrectedTo формирует действие по исправлению для дрейфа статуса
func CorrectedTo(status SubscriptionStatus) string {
	return "corrected_to_" + string(status)
}
